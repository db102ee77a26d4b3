// Package deb reads and writes Debian binary packages: ar archives
// holding a debian-binary marker, a control.tar and a data.tar member.
package deb

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/emufarm/pkgcross/internal/layout"
	"github.com/emufarm/pkgcross/internal/models"
	"github.com/emufarm/pkgcross/internal/utils"
)

// scriptEvents maps deb maintainer script names onto the universal
// events their bodies are stored under
var scriptEvents = map[string]models.Event{
	"preinst":  models.EventPreInstall,
	"postinst": models.EventPostInstall,
	"prerm":    models.EventPreRemove,
	"postrm":   models.EventPostRemove,
}

// Extractor parses .deb archives
type Extractor struct{}

// NewExtractor creates a deb extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Meta reads the control block without touching the payload
func (e *Extractor) Meta(path string) (*models.Intermediate, error) {
	im := newIntermediate()

	found := false
	err := walkAr(path, func(name string, size int64, r io.Reader) (bool, error) {
		if !strings.HasPrefix(name, "control.tar") {
			return true, nil
		}
		found = true
		if err := e.readControlArchive(r, name, im); err != nil {
			return false, err
		}
		return false, nil
	})
	if err != nil {
		return nil, models.NewError(models.ErrMalformedPackage, filepath.Base(path), err)
	}
	if !found {
		return nil, models.Errorf(models.ErrMalformedPackage, filepath.Base(path),
			"control.tar not found in %s", filepath.Base(path))
	}
	if im.Name == "" || im.Version == "" {
		return nil, models.Errorf(models.ErrMalformedPackage, filepath.Base(path),
			"control block of %s lacks Package or Version", filepath.Base(path))
	}

	return im, nil
}

// Extract reads the control block and unpacks the payload into
// workDir/root
func (e *Extractor) Extract(ctx context.Context, path, workDir string) (*models.Intermediate, error) {
	im := newIntermediate()

	var haveControl, haveData bool
	err := walkAr(path, func(name string, size int64, r io.Reader) (bool, error) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		switch {
		case strings.HasPrefix(name, "control.tar"):
			haveControl = true
			return true, e.readControlArchive(r, name, im)
		case strings.HasPrefix(name, "data.tar"):
			haveData = true
			return true, extractPayload(r, name, filepath.Join(workDir, "root"))
		default:
			return true, nil
		}
	})
	if err != nil {
		return nil, models.NewError(models.ErrMalformedPackage, filepath.Base(path), err)
	}
	if !haveControl || !haveData {
		return nil, models.Errorf(models.ErrMalformedPackage, filepath.Base(path),
			"%s is missing control.tar or data.tar", filepath.Base(path))
	}
	if im.Name == "" || im.Version == "" {
		return nil, models.Errorf(models.ErrMalformedPackage, filepath.Base(path),
			"control block of %s lacks Package or Version", filepath.Base(path))
	}

	if err := layout.Save(im, workDir); err != nil {
		return nil, err
	}
	return im, nil
}

func newIntermediate() *models.Intermediate {
	return &models.Intermediate{SourceFormat: models.FormatDeb}
}

// walkAr iterates the members of an ar archive. The callback gets a
// reader limited to the member's bytes and returns whether to
// continue.
func walkAr(path string, fn func(name string, size int64, r io.Reader) (bool, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// Global header: "!<arch>\n"
	magic := make([]byte, 8)
	if _, err := io.ReadFull(f, magic); err != nil {
		return fmt.Errorf("reading ar magic: %w", err)
	}
	if string(magic) != "!<arch>\n" {
		return fmt.Errorf("not an ar archive")
	}

	for {
		// Member header is 60 bytes: name[16] mtime[12] uid[6] gid[6]
		// mode[8] size[10] end[2]
		header := make([]byte, 60)
		if _, err := io.ReadFull(f, header); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("reading ar member header: %w", err)
		}

		name := strings.TrimRight(strings.TrimSpace(string(header[0:16])), "/")
		size, err := strconv.ParseInt(strings.TrimSpace(string(header[48:58])), 10, 64)
		if err != nil {
			return fmt.Errorf("bad ar member size for %q: %w", name, err)
		}

		start, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}

		cont, err := fn(name, size, io.LimitReader(f, size))
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}

		// The callback may not have consumed the whole member; seek
		// to its end. Members are 2-byte aligned.
		next := start + size
		if size%2 != 0 {
			next++
		}
		if _, err := f.Seek(next, io.SeekStart); err != nil {
			return err
		}
	}
}

// readControlArchive parses control.tar members: the control block,
// conffiles and the four maintainer scripts
func (e *Extractor) readControlArchive(r io.Reader, name string, im *models.Intermediate) error {
	dr, closeDr, err := utils.Decompressor(r, name)
	if err != nil {
		return err
	}
	defer closeDr()

	tr := tar.NewReader(dr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}

		member := strings.TrimPrefix(header.Name, "./")
		switch {
		case member == "control":
			data, err := io.ReadAll(tr)
			if err != nil {
				return err
			}
			parseControl(data, im)
		case member == "conffiles":
			data, err := io.ReadAll(tr)
			if err != nil {
				return err
			}
			for _, line := range strings.Split(string(data), "\n") {
				if line = strings.TrimSpace(line); line != "" {
					im.Conffiles = append(im.Conffiles, line)
				}
			}
		default:
			if event, ok := scriptEvents[member]; ok {
				data, err := io.ReadAll(tr)
				if err != nil {
					return err
				}
				im.SetScript(event, string(data))
			}
		}
	}
}

// parseControl parses the Debian control file format with its
// continuation lines
func parseControl(data []byte, im *models.Intermediate) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var currentKey string
	var currentValue strings.Builder

	flush := func() {
		if currentKey != "" {
			setField(im, currentKey, currentValue.String())
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		// Continuation lines start with space or tab
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			currentValue.WriteString("\n")
			currentValue.WriteString(strings.TrimSpace(line))
			continue
		}

		flush()
		currentKey = ""

		if strings.Contains(line, ":") {
			parts := strings.SplitN(line, ":", 2)
			currentKey = strings.TrimSpace(parts[0])
			currentValue.Reset()
			currentValue.WriteString(strings.TrimSpace(parts[1]))
		}
	}
	flush()
}

// setField sets an intermediate field from a control key
func setField(im *models.Intermediate, key, value string) {
	switch key {
	case "Package":
		im.Name = value
	case "Version":
		im.Version = value
	case "Architecture":
		im.Arch = models.NormalizeArch(value)
	case "Description":
		im.Description = value
	case "Maintainer":
		im.Maintainer = value
	case "Depends", "Pre-Depends":
		im.Depends = append(im.Depends, splitRelations(value)...)
	case "Provides":
		im.Provides = append(im.Provides, splitRelations(value)...)
	case "Conflicts":
		im.Conflicts = append(im.Conflicts, splitRelations(value)...)
	case "Replaces":
		im.Replaces = append(im.Replaces, splitRelations(value)...)
	}
}

// splitRelations turns a deb relationship field into bare names:
// comma-separated entries, first choice of each |-alternative,
// version constraints in parentheses dropped
func splitRelations(value string) []string {
	var out []string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if i := strings.Index(entry, "|"); i >= 0 {
			entry = strings.TrimSpace(entry[:i])
		}
		if i := strings.Index(entry, "("); i >= 0 {
			entry = strings.TrimSpace(entry[:i])
		}
		// Architecture qualifiers like libc6:amd64 stay meaningful
		// only on multiarch dpkg; strip to the bare name
		if i := strings.Index(entry, ":"); i >= 0 {
			entry = entry[:i]
		}
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// extractPayload unpacks data.tar members under rootDir
func extractPayload(r io.Reader, name, rootDir string) error {
	dr, closeDr, err := utils.Decompressor(r, name)
	if err != nil {
		return err
	}
	defer closeDr()

	return layout.Untar(tar.NewReader(dr), rootDir)
}
