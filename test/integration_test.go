package test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emufarm/pkgcross/internal/convert"
	"github.com/emufarm/pkgcross/internal/convert/deb"
	"github.com/emufarm/pkgcross/internal/convert/pacman"
	"github.com/emufarm/pkgcross/internal/depmap"
	"github.com/emufarm/pkgcross/internal/models"
)

const unitText = `[Unit]
Description=ctool daemon

[Service]
ExecStart=/usr/bin/ctool

[Install]
WantedBy=multi-user.target
`

// makeSourceDeb builds the .deb every chain starts from: a binary, a
// conffile, a systemd unit in the source distro's unit directory and
// two maintainer scripts
func makeSourceDeb(t *testing.T, dir string) string {
	t.Helper()

	work := filepath.Join(dir, "source-layout")
	root := filepath.Join(work, "root")
	for path, content := range map[string]string{
		"usr/bin/ctool":                    "#!/bin/sh\necho ctool\n",
		"etc/ctool.conf":                   "answer=42\n",
		"lib/systemd/system/ctool.service": unitText,
	} {
		abs := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			t.Fatalf("Failed to create fixture dir: %v", err)
		}
		mode := os.FileMode(0644)
		if strings.HasPrefix(path, "usr/bin/") {
			mode = 0755
		}
		if err := os.WriteFile(abs, []byte(content), mode); err != nil {
			t.Fatalf("Failed to write fixture file: %v", err)
		}
	}

	im := &models.Intermediate{
		Name:         "ctool",
		Version:      "1.4.2-2",
		Arch:         models.ArchX86_64,
		Description:  "Converts things",
		Maintainer:   "Test Maintainer <test@example.org>",
		Depends:      []string{"libc6"},
		Conffiles:    []string{"/etc/ctool.conf"},
		SourceFormat: models.FormatDeb,
		Dir:          work,
	}
	im.SetScript(models.EventPostInstall, "echo configured")
	im.SetScript(models.EventPreRemove, "echo leaving")

	path, err := deb.NewBuilder().Build(context.Background(), im, dir, nil)
	if err != nil {
		t.Fatalf("Failed to build source package: %v", err)
	}
	return path
}

func TestCrossFormatChains(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping conversion chains in short mode")
	}

	testDir, err := os.MkdirTemp("", "pkgcross-integration-")
	if err != nil {
		t.Fatalf("Failed to create test directory: %v", err)
	}
	defer os.RemoveAll(testDir)

	ctx := context.Background()
	debPath := makeSourceDeb(t, testDir)

	var pacmanPath string

	t.Run("DebToPacman", func(t *testing.T) {
		t.Log("Converting the source .deb to a pacman package...")
		outDir := filepath.Join(testDir, "pacman-out")
		artifact, err := convert.Convert(ctx, debPath, convert.Options{
			Target:    models.FormatPacman,
			OutputDir: outDir,
		})
		if err != nil {
			t.Fatalf("Conversion failed: %v", err)
		}
		if filepath.Base(artifact) != "ctool-1.4.2.2-1-x86_64.pkg.tar.zst" {
			t.Errorf("Unexpected artifact name: %s", filepath.Base(artifact))
		}
		pacmanPath = artifact

		workDir := filepath.Join(testDir, "pacman-extracted")
		im, err := pacman.NewExtractor().Extract(ctx, artifact, workDir)
		if err != nil {
			t.Fatalf("Failed to extract the converted package: %v", err)
		}

		if im.Name != "ctool" || im.Version != "1.4.2.2-1" || im.Arch != models.ArchX86_64 {
			t.Errorf("Metadata did not survive: %s", im)
		}
		if len(im.Depends) != 1 || im.Depends[0] != "libc6" {
			t.Errorf("Depends did not survive: %v", im.Depends)
		}
		if len(im.Conffiles) != 1 || im.Conffiles[0] != "/etc/ctool.conf" {
			t.Errorf("Conffiles did not survive: %v", im.Conffiles)
		}

		// Payload content and mode
		bin := filepath.Join(im.Root(), "usr/bin/ctool")
		data, err := os.ReadFile(bin)
		if err != nil {
			t.Fatalf("Payload missing: %v", err)
		}
		if string(data) != "#!/bin/sh\necho ctool\n" {
			t.Errorf("Payload content changed: %q", data)
		}
		if fi, err := os.Stat(bin); err != nil || fi.Mode().Perm() != 0755 {
			t.Errorf("Payload mode changed: %v %v", fi.Mode(), err)
		}

		// The unit moved out of the source distro's /lib convention
		unit := filepath.Join(im.Root(), "usr/lib/systemd/system/ctool.service")
		if _, err := os.Stat(unit); err != nil {
			t.Errorf("Unit file was not relocated: %v", err)
		}
		if fi, err := os.Lstat(filepath.Join(im.Root(), "lib")); err != nil || fi.Mode()&os.ModeSymlink == 0 {
			t.Errorf("Expected a lib compatibility symlink, got %v %v", fi, err)
		}

		// Scripts carried over and gained service management
		post := im.Script(models.EventPostInstall)
		if !strings.Contains(post, "echo configured") {
			t.Errorf("post_install lost the original body: %q", post)
		}
		if !strings.Contains(post, "systemctl daemon-reload") {
			t.Errorf("post_install has no service hook: %q", post)
		}
		pre := im.Script(models.EventPreRemove)
		if !strings.Contains(pre, "echo leaving") {
			t.Errorf("pre_remove lost the original body: %q", pre)
		}
		if !strings.Contains(pre, "systemctl disable --now ctool.service") {
			t.Errorf("pre_remove has no service hook: %q", pre)
		}

		t.Log("✓ deb to pacman chain passed")
	})

	t.Run("PacmanBackToDeb", func(t *testing.T) {
		if pacmanPath == "" {
			t.Skip("pacman artifact missing, first chain failed")
		}
		t.Log("Converting the pacman package back to .deb...")
		outDir := filepath.Join(testDir, "deb-out")
		artifact, err := convert.Convert(ctx, pacmanPath, convert.Options{
			Target:    models.FormatDeb,
			OutputDir: outDir,
		})
		if err != nil {
			t.Fatalf("Conversion failed: %v", err)
		}
		if filepath.Base(artifact) != "ctool_1.4.2.2-1_amd64.deb" {
			t.Errorf("Unexpected artifact name: %s", filepath.Base(artifact))
		}

		workDir := filepath.Join(testDir, "deb-extracted")
		im, err := deb.NewExtractor().Extract(ctx, artifact, workDir)
		if err != nil {
			t.Fatalf("Failed to extract the converted package: %v", err)
		}

		if im.Name != "ctool" || im.Version != "1.4.2.2-1" {
			t.Errorf("Metadata did not survive the round trip: %s", im)
		}
		if len(im.Depends) != 1 || im.Depends[0] != "libc6" {
			t.Errorf("Depends did not survive the round trip: %v", im.Depends)
		}
		if len(im.Conffiles) != 1 || im.Conffiles[0] != "/etc/ctool.conf" {
			t.Errorf("Conffiles did not survive the round trip: %v", im.Conffiles)
		}

		data, err := os.ReadFile(filepath.Join(im.Root(), "usr/bin/ctool"))
		if err != nil || string(data) != "#!/bin/sh\necho ctool\n" {
			t.Errorf("Payload did not survive the round trip: %q %v", data, err)
		}
		conf, err := os.ReadFile(filepath.Join(im.Root(), "etc/ctool.conf"))
		if err != nil || string(conf) != "answer=42\n" {
			t.Errorf("Conffile payload did not survive: %q %v", conf, err)
		}
		if !strings.Contains(im.Script(models.EventPostInstall), "echo configured") {
			t.Errorf("Script did not survive the round trip: %q", im.Script(models.EventPostInstall))
		}

		t.Log("✓ pacman back to deb chain passed")
	})

	t.Run("RenameWithDependencyTable", func(t *testing.T) {
		t.Log("Converting with a rename and a dependency name table...")
		dm := depmap.New()
		dm.AddPair("libc6", "sid-libc6")

		outDir := filepath.Join(testDir, "renamed-out")
		artifact, err := convert.Convert(ctx, debPath, convert.Options{
			Target:    models.FormatPacman,
			OutputDir: outDir,
			NewName:   "sid-ctool",
			DepMap:    dm,
		})
		if err != nil {
			t.Fatalf("Conversion failed: %v", err)
		}
		if filepath.Base(artifact) != "sid-ctool-1.4.2.2-1-x86_64.pkg.tar.zst" {
			t.Errorf("Unexpected artifact name: %s", filepath.Base(artifact))
		}

		im, err := pacman.NewExtractor().Meta(artifact)
		if err != nil {
			t.Fatalf("Failed to read the renamed package: %v", err)
		}
		if im.Name != "sid-ctool" {
			t.Errorf("Rename did not apply: %s", im.Name)
		}
		aliased := false
		for _, p := range im.Provides {
			if p == "ctool" {
				aliased = true
			}
		}
		if !aliased {
			t.Errorf("Renamed package does not provide its original name: %v", im.Provides)
		}
		translated := false
		for _, d := range im.Depends {
			if d == "sid-libc6" {
				translated = true
			}
		}
		if !translated {
			t.Errorf("Dependency name was not translated: %v", im.Depends)
		}

		t.Log("✓ rename and dependency table chain passed")
	})
}
