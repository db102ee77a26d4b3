package layout

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Untar writes a tar stream's members as an install tree under rootDir
func Untar(tr *tar.Reader, rootDir string) error {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return err
	}

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading payload: %w", err)
		}
		if err := WriteTarEntry(rootDir, header, tr); err != nil {
			return err
		}
	}
}

// WriteTarEntry materializes a single tar member under rootDir.
// Members that are not directories, files or links are skipped.
func WriteTarEntry(rootDir string, header *tar.Header, r io.Reader) error {
	rel, ok := CleanInstallPath(header.Name)
	if !ok {
		return nil
	}
	dest := filepath.Join(rootDir, filepath.FromSlash(rel))

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dest, header.FileInfo().Mode().Perm())
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, header.FileInfo().Mode().Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, r); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		if err := os.Symlink(header.Linkname, dest); err != nil && !os.IsExist(err) {
			return err
		}
		return nil
	case tar.TypeLink:
		linkRel, ok := CleanInstallPath(header.Linkname)
		if !ok {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		return os.Link(filepath.Join(rootDir, filepath.FromSlash(linkRel)), dest)
	default:
		logrus.Debugf("Skipping payload member %s (type %c)", header.Name, header.Typeflag)
		return nil
	}
}
