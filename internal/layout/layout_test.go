package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/emufarm/pkgcross/internal/models"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pkgcross-layout-test-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	im := &models.Intermediate{
		Name:         "htop",
		Version:      "3.2.2-2",
		Arch:         models.ArchX86_64,
		Description:  "interactive process viewer",
		Maintainer:   "Someone <someone@example.com>",
		Depends:      []string{"libc6", "libncursesw6"},
		Provides:     []string{"top-replacement"},
		Conffiles:    []string{"/etc/htoprc"},
		SourceFormat: models.FormatDeb,
		SourceDistro: "bookworm",
	}
	im.SetScript(models.EventPostInstall, "#!/bin/sh\nldconfig\n")

	if err := Save(im, tmpDir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Name != im.Name || loaded.Version != im.Version || loaded.Arch != im.Arch {
		t.Errorf("identity fields lost: %s", loaded)
	}
	if loaded.SourceFormat != models.FormatDeb {
		t.Errorf("source format = %v, want deb", loaded.SourceFormat)
	}
	if loaded.SourceDistro != "bookworm" {
		t.Errorf("source distro = %q", loaded.SourceDistro)
	}
	if len(loaded.Depends) != 2 || loaded.Depends[0] != "libc6" {
		t.Errorf("depends lost: %v", loaded.Depends)
	}
	if len(loaded.Conffiles) != 1 || loaded.Conffiles[0] != "/etc/htoprc" {
		t.Errorf("conffiles lost: %v", loaded.Conffiles)
	}
	if loaded.Script(models.EventPostInstall) != "#!/bin/sh\nldconfig\n" {
		t.Errorf("script body changed: %q", loaded.Script(models.EventPostInstall))
	}
	if loaded.Script(models.EventPreRemove) != "" {
		t.Error("phantom script appeared")
	}
}

func TestSaveDropsEmptiedLists(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pkgcross-layout-test-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	im := &models.Intermediate{
		Name:    "tool",
		Version: "1.0",
		Arch:    models.ArchAny,
		Depends: []string{"libfoo"},
	}
	if err := Save(im, tmpDir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// A transform pass clears the list; re-saving must remove the file
	im.Depends = nil
	if err := Save(im, tmpDir); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "meta", "depends")); !os.IsNotExist(err) {
		t.Error("meta/depends still present after the list was cleared")
	}
}

func TestLoadRejectsIncompleteLayout(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pkgcross-layout-test-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	// meta exists but holds no identity fields
	if err := os.MkdirAll(filepath.Join(tmpDir, "meta"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	_, err = Load(tmpDir)
	if err == nil {
		t.Fatal("Load accepted a layout without name/version/arch")
	}
	if !models.IsType(err, models.ErrMalformedPackage) {
		t.Errorf("error has wrong type: %v", err)
	}
}

func TestWalkAndTotalSize(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pkgcross-tree-test-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	root := filepath.Join(tmpDir, "root")
	if err := os.MkdirAll(filepath.Join(root, "usr", "bin"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "usr", "bin", "tool"), []byte("binary"), 0755); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.Symlink("tool", filepath.Join(root, "usr", "bin", "tool-alias")); err != nil {
		t.Fatalf("symlink failed: %v", err)
	}

	entries, err := Walk(root)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	// usr, usr/bin, usr/bin/tool, usr/bin/tool-alias
	if len(entries) != 4 {
		t.Fatalf("Walk returned %d entries, want 4", len(entries))
	}
	if entries[0].Path != "usr" || !entries[0].IsDir {
		t.Errorf("first entry = %+v, want usr dir", entries[0])
	}
	if entries[2].Path != "usr/bin/tool" || entries[2].Size != 6 {
		t.Errorf("tool entry = %+v", entries[2])
	}
	if entries[3].Linkname != "tool" {
		t.Errorf("symlink target = %q, want tool", entries[3].Linkname)
	}

	// Symlinks contribute no bytes to installed size
	if got := TotalSize(entries); got != 6 {
		t.Errorf("TotalSize = %d, want 6", got)
	}
}

func TestCleanInstallPath(t *testing.T) {
	cases := map[string]string{
		"./usr/bin/tool": "usr/bin/tool",
		"/etc/passwd":    "etc/passwd",
		"usr//lib":       "usr/lib",
	}
	for in, want := range cases {
		got, ok := CleanInstallPath(in)
		if !ok || got != want {
			t.Errorf("CleanInstallPath(%q) = (%q, %v), want %q", in, got, ok, want)
		}
	}

	for _, in := range []string{".", "./", "../etc/passwd", "foo/../../bar"} {
		if got, ok := CleanInstallPath(in); ok {
			t.Errorf("CleanInstallPath(%q) accepted as %q", in, got)
		}
	}
}
