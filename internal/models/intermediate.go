package models

import (
	"fmt"
	"path/filepath"
)

// Intermediate is the format-agnostic pivot every conversion passes
// through. It is created by exactly one extractor, mutated in place by
// transform passes (rename, relocation, script translation), and
// consumed by exactly one emitter.
type Intermediate struct {
	// Core metadata
	Name        string
	Version     string // [epoch:]upstream[-revision]
	Arch        Arch
	Description string
	Maintainer  string

	// Relationship sets, in the source format's naming convention,
	// version constraints already stripped
	Depends   []string
	Provides  []string
	Conflicts []string
	Replaces  []string

	// Absolute paths the target package manager must treat as
	// user-editable configuration
	Conffiles []string

	// Lifecycle script bodies in the source dialect
	Scripts map[Event]string

	// Provenance; selects translation rules, never emitted
	SourceFormat Format
	SourceDistro string

	// Dir is the on-disk layout root. The install tree lives under
	// Dir/root, metadata under Dir/meta.
	Dir string
}

// Root returns the directory holding the install-time file tree
func (im *Intermediate) Root() string {
	return filepath.Join(im.Dir, "root")
}

// Script returns the body stored for an event, empty when absent
func (im *Intermediate) Script(e Event) string {
	if im.Scripts == nil {
		return ""
	}
	return im.Scripts[e]
}

// SetScript stores a script body, allocating the map on first use
func (im *Intermediate) SetScript(e Event, body string) {
	if im.Scripts == nil {
		im.Scripts = make(map[Event]string)
	}
	im.Scripts[e] = body
}

// HasScripts reports whether any lifecycle script is present
func (im *Intermediate) HasScripts() bool {
	return len(im.Scripts) > 0
}

// Validate checks the fields every emitter requires
func (im *Intermediate) Validate() error {
	if im.Name == "" {
		return Errorf(ErrBuildFailed, im.Name, "intermediate has no name")
	}
	if im.Version == "" {
		return Errorf(ErrBuildFailed, im.Name, "package %s has no version", im.Name)
	}
	if im.Arch == "" {
		return Errorf(ErrBuildFailed, im.Name, "package %s has no architecture", im.Name)
	}
	return nil
}

// Rename gives the package a new name and records that it still
// satisfies dependencies on the old one
func (im *Intermediate) Rename(newName string) {
	if newName == im.Name {
		return
	}
	old := im.Name
	im.Name = newName
	for _, p := range im.Provides {
		if p == old {
			return
		}
	}
	im.Provides = append(im.Provides, old)
}

// Clone returns a deep copy sharing no mutable state with the
// original. The copy points at the same layout directory; callers
// re-extract when they need an independent file tree.
func (im *Intermediate) Clone() *Intermediate {
	dup := *im
	dup.Depends = append([]string(nil), im.Depends...)
	dup.Provides = append([]string(nil), im.Provides...)
	dup.Conflicts = append([]string(nil), im.Conflicts...)
	dup.Replaces = append([]string(nil), im.Replaces...)
	dup.Conffiles = append([]string(nil), im.Conffiles...)
	if im.Scripts != nil {
		dup.Scripts = make(map[Event]string, len(im.Scripts))
		for e, s := range im.Scripts {
			dup.Scripts[e] = s
		}
	}
	return &dup
}

// String identifies the package in logs
func (im *Intermediate) String() string {
	return fmt.Sprintf("%s %s (%s)", im.Name, im.Version, im.Arch)
}
