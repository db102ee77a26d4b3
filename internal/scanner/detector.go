package scanner

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/emufarm/pkgcross/internal/models"
)

// Magic bytes for package detection
var (
	// Debian packages start with "!<arch>\ndebian"
	debMagic = []byte("!<arch>\ndebian")

	// RPM packages start with 0xED 0xAB 0xEE 0xDB
	rpmMagic = []byte{0xED, 0xAB, 0xEE, 0xDB}

	// Gzip magic bytes (.pkg.tar.gz)
	gzipMagic = []byte{0x1F, 0x8B}

	// Zstandard magic bytes (.pkg.tar.zst)
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

	// XZ magic bytes (.pkg.tar.xz)
	xzMagic = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}
)

// DetectFormat determines the package format based on magic bytes and
// file extension
func DetectFormat(path string) (models.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.FormatUnknown, err
	}
	defer f.Close()

	// Read first 512 bytes for magic byte detection
	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil && n == 0 {
		return models.FormatUnknown, err
	}
	header = header[:n]

	ext := filepath.Ext(path)
	basename := filepath.Base(path)

	if bytes.HasPrefix(header, debMagic) || ext == ".deb" {
		return models.FormatDeb, nil
	}

	if bytes.HasPrefix(header, rpmMagic) || ext == ".rpm" {
		return models.FormatRpm, nil
	}

	// Pacman package (.pkg.tar.zst, .pkg.tar.xz, .pkg.tar.gz, .pkg.tar)
	if strings.Contains(basename, ".pkg.tar") {
		if bytes.HasPrefix(header, zstdMagic) || strings.HasSuffix(basename, ".pkg.tar.zst") {
			return models.FormatPacman, nil
		}
		if bytes.HasPrefix(header, xzMagic) || strings.HasSuffix(basename, ".pkg.tar.xz") {
			return models.FormatPacman, nil
		}
		if bytes.HasPrefix(header, gzipMagic) && strings.HasSuffix(basename, ".pkg.tar.gz") {
			return models.FormatPacman, nil
		}
		if strings.HasSuffix(basename, ".pkg.tar") {
			return models.FormatPacman, nil
		}
	}

	return models.FormatUnknown, nil
}
