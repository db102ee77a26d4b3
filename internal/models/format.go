package models

// Format identifies a native package format
type Format int

const (
	FormatUnknown Format = iota
	FormatDeb
	FormatRpm
	FormatPacman
)

// String returns the canonical name of the format
func (f Format) String() string {
	switch f {
	case FormatDeb:
		return "deb"
	case FormatRpm:
		return "rpm"
	case FormatPacman:
		return "pacman"
	default:
		return "unknown"
	}
}

// ParseFormat maps a user-facing name to a Format
func ParseFormat(s string) (Format, error) {
	switch s {
	case "deb", "debian":
		return FormatDeb, nil
	case "rpm":
		return FormatRpm, nil
	case "pacman", "arch", "pkg.tar.zst":
		return FormatPacman, nil
	default:
		return FormatUnknown, Errorf(ErrUnsupportedFormat, "", "unknown package format %q", s)
	}
}

// Formats lists the supported formats in a stable order
func Formats() []Format {
	return []Format{FormatDeb, FormatRpm, FormatPacman}
}
