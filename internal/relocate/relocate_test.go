package relocate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/emufarm/pkgcross/internal/models"
)

func stageFile(t *testing.T, root, path, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		t.Fatalf("Failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func stageIntermediate(t *testing.T, dir string) *models.Intermediate {
	t.Helper()
	work := filepath.Join(dir, "layout")
	if err := os.MkdirAll(filepath.Join(work, "root"), 0755); err != nil {
		t.Fatalf("Failed to create layout: %v", err)
	}
	return &models.Intermediate{
		Name:    "ctool",
		Version: "1.0-1",
		Arch:    models.ArchX86_64,
		Dir:     work,
	}
}

func TestTargetLibDir(t *testing.T) {
	cases := []struct {
		target models.Format
		arch   models.Arch
		want   string
	}{
		{models.FormatDeb, models.ArchX86_64, "usr/lib/x86_64-linux-gnu"},
		{models.FormatDeb, models.ArchAarch64, "usr/lib/aarch64-linux-gnu"},
		{models.FormatDeb, models.ArchAny, "usr/lib"},
		{models.FormatRpm, models.ArchX86_64, "usr/lib64"},
		{models.FormatRpm, models.ArchAarch64, "usr/lib64"},
		{models.FormatRpm, models.ArchArmhf, "usr/lib"},
		{models.FormatPacman, models.ArchX86_64, "usr/lib"},
	}
	for _, c := range cases {
		if got := TargetLibDir(c.target, c.arch); got != c.want {
			t.Errorf("TargetLibDir(%v, %v) = %q, want %q", c.target, c.arch, got, c.want)
		}
	}
}

func TestApplyMultiarchToLib64(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pkgcross-relocate-test-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	im := stageIntermediate(t, tmpDir)
	root := im.Root()
	stageFile(t, root, "usr/lib/x86_64-linux-gnu/libctool.so.1", "elf1")
	stageFile(t, root, "usr/lib/ctool/plugin.so", "plugin")
	stageFile(t, root, "lib/systemd/system/ctool.service", "[Unit]\n")
	stageFile(t, root, "lib/firmware/blob.bin", "fw")

	if err := Apply(im, models.FormatRpm); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// The multiarch directory folded into lib64 and left a pointer
	if data, err := os.ReadFile(filepath.Join(root, "usr/lib64/libctool.so.1")); err != nil || string(data) != "elf1" {
		t.Errorf("Library did not move to lib64: %q %v", data, err)
	}
	link, err := os.Readlink(filepath.Join(root, "usr/lib/x86_64-linux-gnu"))
	if err != nil || link != filepath.FromSlash("../lib64") {
		t.Errorf("Multiarch dir symlink = %q, %v", link, err)
	}

	// Plain usr/lib content is not a multiarch source and stays
	if _, err := os.Stat(filepath.Join(root, "usr/lib/ctool/plugin.so")); err != nil {
		t.Errorf("usr/lib content moved away: %v", err)
	}

	// merged-usr moved the unit; the firmware path stayed under /lib
	if _, err := os.Stat(filepath.Join(root, "usr/lib/systemd/system/ctool.service")); err != nil {
		t.Errorf("Unit did not move under /usr: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "lib/systemd")); !os.IsNotExist(err) {
		t.Errorf("lib/systemd still present: %v", err)
	}
	if fi, err := os.Lstat(filepath.Join(root, "lib")); err != nil || !fi.IsDir() {
		t.Errorf("lib should remain a real directory while firmware stays: %v %v", fi, err)
	}
	if _, err := os.Stat(filepath.Join(root, "lib/firmware/blob.bin")); err != nil {
		t.Errorf("Firmware moved away: %v", err)
	}

	// A second pass over the finished tree changes nothing
	if err := Apply(im, models.FormatRpm); err != nil {
		t.Fatalf("Second Apply failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "usr/lib64/libctool.so.1")); err != nil {
		t.Errorf("Second pass lost the library: %v", err)
	}
	if fi, err := os.Lstat(filepath.Join(root, "usr/lib/x86_64-linux-gnu")); err != nil || fi.Mode()&os.ModeSymlink == 0 {
		t.Errorf("Second pass broke the symlink: %v %v", fi, err)
	}
}

func TestApplyLib64ToMultiarch(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pkgcross-relocate-test-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	im := stageIntermediate(t, tmpDir)
	root := im.Root()
	stageFile(t, root, "lib64/libctool.so.2", "elf2")

	if err := Apply(im, models.FormatDeb); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	moved := filepath.Join(root, "usr/lib/x86_64-linux-gnu/libctool.so.2")
	if data, err := os.ReadFile(moved); err != nil || string(data) != "elf2" {
		t.Errorf("Library did not reach the multiarch dir: %q %v", data, err)
	}

	// Both vacated locations keep resolving through symlinks
	if link, err := os.Readlink(filepath.Join(root, "lib64")); err != nil || link != filepath.FromSlash("usr/lib64") {
		t.Errorf("lib64 symlink = %q, %v", link, err)
	}
	if link, err := os.Readlink(filepath.Join(root, "usr/lib64")); err != nil || link != filepath.FromSlash("lib/x86_64-linux-gnu") {
		t.Errorf("usr/lib64 symlink = %q, %v", link, err)
	}
	if data, err := os.ReadFile(filepath.Join(root, "lib64/libctool.so.2")); err != nil || string(data) != "elf2" {
		t.Errorf("Old path stopped resolving: %q %v", data, err)
	}
}

func TestApplyCollisionKeepsDestination(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pkgcross-relocate-test-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	im := stageIntermediate(t, tmpDir)
	root := im.Root()
	stageFile(t, root, "usr/lib/x86_64-linux-gnu/dup.conf", "from source")
	stageFile(t, root, "usr/lib64/dup.conf", "already there")

	if err := Apply(im, models.FormatRpm); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "usr/lib64/dup.conf"))
	if err != nil || string(data) != "already there" {
		t.Errorf("Collision overwrote the destination: %q %v", data, err)
	}
}
