package layout

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileEntry describes one node of the install-time file tree. Path is
// slash-separated and relative to the layout's root/ directory, so
// "usr/bin/tool" installs to /usr/bin/tool.
type FileEntry struct {
	Path     string
	Mode     os.FileMode
	Size     int64
	Linkname string
	IsDir    bool
}

// Walk collects the file tree under root into a path-sorted list.
// Directories come first on equal prefixes because sorting is by full
// path, which matches the order archive writers need (parents before
// children).
func Walk(root string) ([]FileEntry, error) {
	var entries []FileEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		entry := FileEntry{
			Path:  rel,
			Mode:  info.Mode(),
			IsDir: d.IsDir(),
		}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			entry.Linkname = target
		case info.Mode().IsRegular():
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// TotalSize sums the regular-file bytes of a tree, the figure package
// managers report as installed size
func TotalSize(entries []FileEntry) int64 {
	var total int64
	for _, e := range entries {
		if !e.IsDir && e.Linkname == "" {
			total += e.Size
		}
	}
	return total
}

// CleanInstallPath normalizes an archive member name to a
// root-relative install path, rejecting escapes above the root
func CleanInstallPath(name string) (string, bool) {
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	name = filepath.ToSlash(filepath.Clean(name))
	if name == "." || name == "" {
		return "", false
	}
	if name == ".." || strings.HasPrefix(name, "../") {
		return "", false
	}
	return name, true
}
