package models

import "strings"

// SplitVersion breaks a universal [epoch:]upstream[-revision] version
// string into its parts. The last hyphen separates the revision, the
// first colon the epoch; either may be absent.
func SplitVersion(v string) (epoch, upstream, revision string) {
	if i := strings.Index(v, ":"); i >= 0 {
		epoch, v = v[:i], v[i+1:]
	}
	if i := strings.LastIndex(v, "-"); i >= 0 {
		v, revision = v[:i], v[i+1:]
	}
	return epoch, v, revision
}

// StripEpochRevision reduces a version to its bare upstream part
func StripEpochRevision(v string) string {
	_, upstream, _ := SplitVersion(v)
	return upstream
}

// DebFileVersion legalizes a version for use in a .deb file name.
// The control Version field keeps the original string; only the file
// name drops the epoch and any +suffix, both unsafe in some
// filesystem contexts.
func DebFileVersion(v string) string {
	if i := strings.Index(v, ":"); i >= 0 {
		v = v[i+1:]
	}
	if i := strings.Index(v, "+"); i >= 0 {
		v = v[:i]
	}
	return v
}

// RpmVersion legalizes a version for an rpm Version field, which
// allows neither ':' nor '-'
func RpmVersion(v string) string {
	if i := strings.Index(v, ":"); i >= 0 {
		v = v[i+1:]
	}
	return strings.ReplaceAll(v, "-", ".")
}

// PacmanVersion legalizes a version for a pacman pkgver and appends
// the fixed package release
func PacmanVersion(v string) string {
	return RpmVersion(v) + "-1"
}
