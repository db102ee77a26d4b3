// Package pacman reads and writes Arch Linux packages: zstd (or xz)
// compressed tarballs with .PKGINFO, .MTREE and optional .INSTALL
// metadata members ahead of the file tree.
package pacman

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/emufarm/pkgcross/internal/layout"
	"github.com/emufarm/pkgcross/internal/models"
	"github.com/emufarm/pkgcross/internal/utils"
)

// installFuncs maps .INSTALL function names onto universal events
var installFuncs = map[string]models.Event{
	"pre_install":  models.EventPreInstall,
	"post_install": models.EventPostInstall,
	"pre_upgrade":  models.EventPreUpgrade,
	"post_upgrade": models.EventPostUpgrade,
	"pre_remove":   models.EventPreRemove,
	"post_remove":  models.EventPostRemove,
}

// Extractor reads pacman packages
type Extractor struct{}

// NewExtractor creates a pacman extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Meta reads .PKGINFO without extracting the file tree. Metadata
// members lead the archive, so scanning stops at the first tree member.
func (e *Extractor) Meta(path string) (*models.Intermediate, error) {
	im := &models.Intermediate{SourceFormat: models.FormatPacman}
	if err := e.scan(context.Background(), path, im, ""); err != nil {
		return nil, err
	}
	return im, nil
}

// Extract reads metadata and writes the file tree into workDir/root
func (e *Extractor) Extract(ctx context.Context, path, workDir string) (*models.Intermediate, error) {
	im := &models.Intermediate{SourceFormat: models.FormatPacman}
	rootDir := filepath.Join(workDir, "root")
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, err
	}

	if err := e.scan(ctx, path, im, rootDir); err != nil {
		return nil, err
	}

	if err := layout.Save(im, workDir); err != nil {
		return nil, err
	}
	return im, nil
}

// scan walks the package tarball. With rootDir empty only the leading
// metadata members are read; otherwise tree members are materialized.
func (e *Extractor) scan(ctx context.Context, path string, im *models.Intermediate, rootDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dr, closeDr, err := utils.Decompressor(f, path)
	if err != nil {
		return models.NewError(models.ErrMalformedPackage, filepath.Base(path), err)
	}
	defer closeDr()

	tr := tar.NewReader(dr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.NewError(models.ErrMalformedPackage, filepath.Base(path),
				fmt.Errorf("reading archive: %w", err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		name := strings.TrimPrefix(header.Name, "./")
		if strings.HasPrefix(name, ".") {
			switch name {
			case ".PKGINFO":
				data, err := io.ReadAll(tr)
				if err != nil {
					return err
				}
				parsePkginfo(data, im)
			case ".INSTALL":
				data, err := io.ReadAll(tr)
				if err != nil {
					return err
				}
				parseInstall(data, im)
			}
			continue
		}

		if rootDir == "" {
			break
		}
		if err := layout.WriteTarEntry(rootDir, header, tr); err != nil {
			return err
		}
	}

	if im.Name == "" || im.Version == "" {
		return models.Errorf(models.ErrMalformedPackage, filepath.Base(path),
			"%s lacks a usable .PKGINFO", filepath.Base(path))
	}
	return nil
}

// parsePkginfo reads the `key = value` lines makepkg writes
func parsePkginfo(data []byte, im *models.Intermediate) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "pkgname":
			im.Name = value
		case "pkgver":
			im.Version = value
		case "pkgdesc":
			im.Description = value
		case "packager":
			im.Maintainer = value
		case "arch":
			im.Arch = models.NormalizeArch(value)
		case "depend":
			im.Depends = append(im.Depends, stripConstraint(value))
		case "provides":
			im.Provides = append(im.Provides, stripConstraint(value))
		case "conflict":
			im.Conflicts = append(im.Conflicts, stripConstraint(value))
		case "replaces":
			im.Replaces = append(im.Replaces, stripConstraint(value))
		case "backup":
			im.Conffiles = append(im.Conffiles, "/"+strings.TrimPrefix(value, "/"))
		}
	}
}

// stripConstraint reduces `name>=1.2` style entries to the bare name
func stripConstraint(s string) string {
	if i := strings.IndexAny(s, "<>="); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

var funcHeaderRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*\(\)\s*(\{)?\s*$`)

// parseInstall collects shell function bodies out of a .INSTALL file
// by brace counting. Function names outside the known set are scanned
// past so their braces cannot derail the next header.
func parseInstall(data []byte, im *models.Intermediate) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		inFunc  bool
		pending string
		event   models.Event
		known   bool
		depth   int
		body    []string
	)

	finish := func() {
		if known {
			if text := strings.TrimRight(strings.Join(body, "\n"), " \t\n"); strings.TrimSpace(text) != "" {
				im.SetScript(event, text)
			}
		}
		inFunc, known, depth, body = false, false, 0, nil
	}

	for scanner.Scan() {
		line := scanner.Text()

		if pending != "" {
			if strings.TrimSpace(line) == "{" {
				event, known = installFuncs[pending]
				inFunc, depth = true, 1
			}
			pending = ""
			continue
		}

		if inFunc {
			depth += strings.Count(line, "{") - strings.Count(line, "}")
			if depth <= 0 {
				if rest := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), "}")); rest != "" {
					body = append(body, rest)
				}
				finish()
				continue
			}
			body = append(body, line)
			continue
		}

		if m := funcHeaderRe.FindStringSubmatch(line); m != nil {
			if m[2] == "{" {
				event, known = installFuncs[m[1]]
				inFunc, depth = true, 1
			} else {
				pending = m[1]
			}
		}
	}
}
