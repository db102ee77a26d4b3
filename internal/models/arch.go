package models

import "strings"

// Arch is a normalized CPU architecture name. The canonical values follow
// the rpm/pacman convention; format-specific spellings are derived on
// emission.
type Arch string

const (
	ArchAarch64 Arch = "aarch64"
	ArchX86_64  Arch = "x86_64"
	ArchArmhf   Arch = "armhf"
	ArchAny     Arch = "any"
)

// NormalizeArch maps format-specific architecture tokens onto the
// canonical set. Unrecognized tokens pass through unchanged so exotic
// architectures are preserved rather than mangled. Idempotent.
func NormalizeArch(s string) Arch {
	switch t := strings.ToLower(strings.TrimSpace(s)); {
	case t == "arm64" || t == "aarch64":
		return ArchAarch64
	case t == "amd64" || t == "x86_64":
		return ArchX86_64
	case t == "armhf" || strings.HasPrefix(t, "armv7h"):
		return ArchArmhf
	case t == "all" || t == "any" || t == "noarch":
		return ArchAny
	default:
		return Arch(t)
	}
}

// DebName returns the Debian spelling of the architecture
func (a Arch) DebName() string {
	switch a {
	case ArchAarch64:
		return "arm64"
	case ArchX86_64:
		return "amd64"
	case ArchArmhf:
		return "armhf"
	case ArchAny:
		return "all"
	default:
		return string(a)
	}
}

// RpmName returns the RPM spelling of the architecture
func (a Arch) RpmName() string {
	switch a {
	case ArchArmhf:
		return "armv7hl"
	case ArchAny:
		return "noarch"
	default:
		return string(a)
	}
}

// PacmanName returns the pacman spelling of the architecture
func (a Arch) PacmanName() string {
	switch a {
	case ArchArmhf:
		return "armv7h"
	default:
		return string(a)
	}
}
