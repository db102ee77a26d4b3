// Package relocate rewrites library install paths between the
// multiarch, lib64 and plain libdir conventions so converted trees
// land where the target distribution's loader and tooling look.
package relocate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/emufarm/pkgcross/internal/models"
)

// tripletDirs is the Debian multiarch directory per architecture
var tripletDirs = map[models.Arch]string{
	models.ArchAarch64: "aarch64-linux-gnu",
	models.ArchX86_64:  "x86_64-linux-gnu",
	models.ArchArmhf:   "arm-linux-gnueabihf",
}

// allTriplets are the multiarch directories recognized as merge
// sources regardless of the package's own architecture
var allTriplets = []string{
	"aarch64-linux-gnu",
	"arm-linux-gnueabihf",
	"x86_64-linux-gnu",
	"i386-linux-gnu",
}

// keepInLib are /lib subtrees that stay put under merged-usr because
// they are paths, not libraries
var keepInLib = map[string]bool{
	"firmware": true,
	"modules":  true,
	"udev":     true,
}

// TargetLibDir returns the target format's library directory for an
// architecture, slash-relative to the install root
func TargetLibDir(target models.Format, arch models.Arch) string {
	switch target {
	case models.FormatDeb:
		if triplet, ok := tripletDirs[arch]; ok {
			return "usr/lib/" + triplet
		}
		return "usr/lib"
	case models.FormatRpm:
		if arch == models.ArchAarch64 || arch == models.ArchX86_64 {
			return "usr/lib64"
		}
		return "usr/lib"
	default:
		return "usr/lib"
	}
}

// Apply moves the intermediate's library directories to the target
// format's convention. Vacated directories become relative symlinks
// into the new location so embedded paths keep resolving. Running it
// again, for the same or another target, is safe.
func Apply(im *models.Intermediate, target models.Format) error {
	root := im.Root()
	libdir := TargetLibDir(target, im.Arch)
	moved := false

	// merged-usr normalization first so lib/<triplet> becomes
	// usr/lib/<triplet> before the multiarch pass
	m, err := mergeTop(root, "lib", "usr/lib", keepInLib)
	if err != nil {
		return err
	}
	moved = moved || m

	m, err = mergeTop(root, "lib64", "usr/lib64", nil)
	if err != nil {
		return err
	}
	moved = moved || m

	sources := make([]string, 0, len(allTriplets)+1)
	for _, triplet := range allTriplets {
		sources = append(sources, "usr/lib/"+triplet)
	}
	sources = append(sources, "usr/lib64")

	for _, src := range sources {
		if src == libdir {
			continue
		}
		m, err := mergeInto(root, src, libdir)
		if err != nil {
			return err
		}
		moved = moved || m
	}

	if moved {
		logrus.Infof("Relocated libraries of %s to /%s", im.Name, libdir)
	}
	return nil
}

// mergeInto folds the contents of src into libdir and leaves a
// relative symlink at src. Absent sources and sources already turned
// into symlinks are skipped.
func mergeInto(root, src, libdir string) (bool, error) {
	absSrc := filepath.Join(root, filepath.FromSlash(src))
	fi, err := os.Lstat(absSrc)
	if err != nil || !fi.IsDir() {
		return false, nil
	}

	absDst := filepath.Join(root, filepath.FromSlash(libdir))
	// a leftover compat symlink at the target would make the merge
	// chase itself
	if di, err := os.Lstat(absDst); err == nil && di.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(absDst); err != nil {
			return false, err
		}
	}

	if err := mergeDir(absSrc, absDst); err != nil {
		return false, fmt.Errorf("merging %s into %s: %w", src, libdir, err)
	}

	rel, err := filepath.Rel(filepath.Dir(src), libdir)
	if err != nil {
		return false, err
	}
	if err := os.Symlink(filepath.FromSlash(rel), absSrc); err != nil && !os.IsExist(err) {
		return false, err
	}
	return true, nil
}

// mergeTop moves a top-level directory's entries under its merged-usr
// home, leaving a directory symlink when everything moved out
func mergeTop(root, src, dst string, exclude map[string]bool) (bool, error) {
	absSrc := filepath.Join(root, src)
	fi, err := os.Lstat(absSrc)
	if err != nil || !fi.IsDir() {
		return false, nil
	}

	entries, err := os.ReadDir(absSrc)
	if err != nil {
		return false, err
	}

	absDst := filepath.Join(root, filepath.FromSlash(dst))
	moved := false
	for _, ent := range entries {
		if exclude[ent.Name()] {
			continue
		}
		s := filepath.Join(absSrc, ent.Name())
		d := filepath.Join(absDst, ent.Name())

		if ent.IsDir() {
			if di, err := os.Lstat(d); err == nil && di.IsDir() {
				if err := mergeDir(s, d); err != nil {
					return moved, err
				}
				moved = true
				continue
			}
		}
		if err := os.MkdirAll(absDst, 0755); err != nil {
			return moved, err
		}
		if _, err := os.Lstat(d); err == nil {
			logrus.Debugf("Dropping %s, %s already exists", s, d)
			if err := os.RemoveAll(s); err != nil {
				return moved, err
			}
			moved = true
			continue
		}
		if err := os.Rename(s, d); err != nil {
			return moved, err
		}
		moved = true
	}

	if rest, err := os.ReadDir(absSrc); err == nil && len(rest) == 0 {
		if err := os.Remove(absSrc); err != nil {
			return moved, err
		}
		if err := os.Symlink(filepath.FromSlash(dst), absSrc); err != nil && !os.IsExist(err) {
			return moved, err
		}
	}
	return moved, nil
}

// mergeDir recursively folds src into dst and removes src. On name
// collisions the destination entry wins.
func mergeDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		s := filepath.Join(src, ent.Name())
		d := filepath.Join(dst, ent.Name())

		if ent.IsDir() {
			if di, err := os.Lstat(d); err == nil && di.IsDir() {
				if err := mergeDir(s, d); err != nil {
					return err
				}
				continue
			}
		}
		if _, err := os.Lstat(d); err == nil {
			logrus.Debugf("Dropping %s, %s already exists", s, d)
			if err := os.RemoveAll(s); err != nil {
				return err
			}
			continue
		}
		if err := os.Rename(s, d); err != nil {
			return err
		}
	}

	return os.Remove(src)
}
