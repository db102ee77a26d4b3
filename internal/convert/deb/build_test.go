package deb

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/emufarm/pkgcross/internal/models"
	"github.com/emufarm/pkgcross/internal/scripts"
)

// stageIntermediate writes a small install tree under dir/root and
// returns an intermediate describing it
func stageIntermediate(t *testing.T, dir string) *models.Intermediate {
	t.Helper()

	root := filepath.Join(dir, "root")
	for _, sub := range []string{"usr/bin", "etc"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0755); err != nil {
			t.Fatalf("Failed to create tree: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "usr/bin/ctool"), []byte("#!/bin/sh\necho ctool\n"), 0755); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "etc/ctool.conf"), []byte("answer=42\n"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := os.Symlink("ctool", filepath.Join(root, "usr/bin/ctool-compat")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	return &models.Intermediate{
		Name:         "ctool",
		Version:      "1.4.2-2",
		Arch:         models.ArchX86_64,
		Description:  "Converts things\nLonger text about converting things.",
		Maintainer:   "Test <test@example.com>",
		Depends:      []string{"libc6", "zlib1g"},
		Conffiles:    []string{"/etc/ctool.conf"},
		SourceFormat: models.FormatDeb,
		Dir:          dir,
	}
}

func TestBuildAndExtractRoundTrip(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pkgcross-deb-test-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	im := stageIntermediate(t, filepath.Join(tmpDir, "layout"))
	im.SetScript(models.EventPostInstall, "#!/bin/sh\nset -e\necho configured\n")

	outDir := filepath.Join(tmpDir, "out")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		t.Fatalf("Failed to create output dir: %v", err)
	}

	artifact, err := NewBuilder().Build(context.Background(), im, outDir, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := filepath.Base(artifact); got != "ctool_1.4.2-2_amd64.deb" {
		t.Errorf("Unexpected archive name %s", got)
	}

	workDir := filepath.Join(tmpDir, "extracted")
	got, err := NewExtractor().Extract(context.Background(), artifact, workDir)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got.Name != "ctool" || got.Version != "1.4.2-2" {
		t.Errorf("Round trip changed identity: %s %s", got.Name, got.Version)
	}
	if got.Arch != models.ArchX86_64 {
		t.Errorf("Round trip changed arch: %s", got.Arch)
	}
	if !reflect.DeepEqual(got.Depends, []string{"libc6", "zlib1g"}) {
		t.Errorf("Round trip changed depends: %v", got.Depends)
	}
	if !reflect.DeepEqual(got.Conffiles, []string{"/etc/ctool.conf"}) {
		t.Errorf("Round trip changed conffiles: %v", got.Conffiles)
	}
	if !strings.Contains(got.Script(models.EventPostInstall), "echo configured") {
		t.Errorf("Round trip lost the postinst body: %q", got.Script(models.EventPostInstall))
	}

	// Payload files come back with content and mode intact
	bin := filepath.Join(workDir, "root", "usr/bin/ctool")
	data, err := os.ReadFile(bin)
	if err != nil {
		t.Fatalf("Payload file missing: %v", err)
	}
	if !strings.Contains(string(data), "echo ctool") {
		t.Errorf("Payload content mangled: %q", data)
	}
	if fi, err := os.Stat(bin); err != nil || fi.Mode().Perm() != 0755 {
		t.Errorf("Payload mode not preserved: %v %v", fi, err)
	}
	if target, err := os.Readlink(filepath.Join(workDir, "root", "usr/bin/ctool-compat")); err != nil || target != "ctool" {
		t.Errorf("Symlink not preserved: %q %v", target, err)
	}
}

func TestMetaReadsControlOnly(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pkgcross-deb-test-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	im := stageIntermediate(t, filepath.Join(tmpDir, "layout"))
	artifact, err := NewBuilder().Build(context.Background(), im, tmpDir, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	meta, err := NewExtractor().Meta(artifact)
	if err != nil {
		t.Fatalf("Meta failed: %v", err)
	}
	if meta.Name != "ctool" || meta.Version != "1.4.2-2" {
		t.Errorf("Meta misread control: %s %s", meta.Name, meta.Version)
	}
	if len(meta.Depends) != 2 {
		t.Errorf("Meta misread depends: %v", meta.Depends)
	}
}

func TestControlBlockFields(t *testing.T) {
	im := &models.Intermediate{
		Name:        "ctool",
		Version:     "2:3.1-4",
		Arch:        models.ArchX86_64,
		Maintainer:  "Test <test@example.com>",
		Depends:     []string{"liba", "libb"},
		Description: "First line\n\nAfter a blank.",
	}

	control := controlBlock(im, nil, 3000)

	for _, want := range []string{
		"Package: ctool\n",
		"Version: 2:3.1-4\n",
		"Architecture: amd64\n",
		"Installed-Size: 3\n",
		"Depends: liba, libb\n",
		"Description: First line\n .\n After a blank.\n",
	} {
		if !strings.Contains(control, want) {
			t.Errorf("Control block lacks %q:\n%s", want, control)
		}
	}
}

func TestAssembleScriptsFromRpmSource(t *testing.T) {
	im := &models.Intermediate{
		Name:         "ctool",
		Version:      "1.0",
		Arch:         models.ArchX86_64,
		SourceFormat: models.FormatRpm,
	}
	im.SetScript(models.EventPreInstall, "if [ $1 = 1 ]; then\necho fresh\nfi")
	im.SetScript(models.EventPostInstall, "echo done")

	tr := scripts.ForTarget(im, models.FormatDeb)
	out := assembleScripts(tr)

	preinst, ok := out["preinst"]
	if !ok {
		t.Fatalf("No preinst assembled: %v", out)
	}
	// The rpm body references $1, so the preamble computing rpm_arg
	// must come first and the body must use the variable
	if !strings.Contains(preinst, `if [ "$1" = "upgrade" ]; then rpm_arg=2; else rpm_arg=1; fi`) {
		t.Errorf("preinst lacks the rpm_arg preamble:\n%s", preinst)
	}
	if !strings.Contains(preinst, "${rpm_arg}") {
		t.Errorf("preinst body kept a raw $1:\n%s", preinst)
	}
	if !strings.Contains(preinst, "case \"$1\" in") || !strings.Contains(preinst, "install)") {
		t.Errorf("preinst not multiplexed:\n%s", preinst)
	}

	postinst, ok := out["postinst"]
	if !ok {
		t.Fatalf("No postinst assembled: %v", out)
	}
	if !strings.Contains(postinst, "configure)") || !strings.Contains(postinst, "echo done") {
		t.Errorf("postinst misassembled:\n%s", postinst)
	}
	if !strings.HasSuffix(postinst, "exit 0\n") {
		t.Errorf("postinst does not end in exit 0:\n%s", postinst)
	}
}

func TestAssembleScriptsNative(t *testing.T) {
	im := &models.Intermediate{
		Name:         "ctool",
		Version:      "1.0",
		Arch:         models.ArchX86_64,
		SourceFormat: models.FormatDeb,
	}
	im.SetScript(models.EventPreRemove, "#!/bin/sh\nset -e\ncase \"$1\" in\nremove) echo bye ;;\nesac\n")

	tr := scripts.ForTarget(im, models.FormatDeb)
	out := assembleScripts(tr)

	prerm, ok := out["prerm"]
	if !ok {
		t.Fatalf("No prerm assembled: %v", out)
	}
	// Native bodies keep their own multiplexing under a fresh wrapper
	if !strings.HasPrefix(prerm, "#!/bin/sh\nset -e\n") {
		t.Errorf("prerm lacks the wrapper:\n%s", prerm)
	}
	if !strings.Contains(prerm, "remove) echo bye ;;") {
		t.Errorf("prerm body altered:\n%s", prerm)
	}
	if strings.Count(prerm, "set -e") != 1 {
		t.Errorf("Wrapper duplicated:\n%s", prerm)
	}
}

func TestSplitRelations(t *testing.T) {
	got := splitRelations("libc6 (>= 2.17), debconf | debconf-2.0, libfoo:amd64, , bash")
	want := []string{"libc6", "debconf", "libfoo", "bash"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitRelations = %v, want %v", got, want)
	}
}
