package pacman

import (
	"reflect"
	"strings"
	"testing"

	"github.com/emufarm/pkgcross/internal/models"
)

func TestParsePkginfo(t *testing.T) {
	data := []byte(`# Generated by makepkg 6.0.2
pkgname = htop
pkgver = 3.2.2-1
pkgdesc = Interactive process viewer
builddate = 1670000000
packager = Someone <someone@archlinux.org>
size = 512000
arch = x86_64
depend = ncurses
depend = libnl>=3.0
provides = htop-vi
conflict = htop-git
backup = etc/htoprc
`)

	im := &models.Intermediate{}
	parsePkginfo(data, im)

	if im.Name != "htop" || im.Version != "3.2.2-1" {
		t.Errorf("Identity misparsed: %s %s", im.Name, im.Version)
	}
	if im.Arch != models.ArchX86_64 {
		t.Errorf("Arch misparsed: %s", im.Arch)
	}
	if !reflect.DeepEqual(im.Depends, []string{"ncurses", "libnl"}) {
		t.Errorf("Depends misparsed (constraints must be stripped): %v", im.Depends)
	}
	if !reflect.DeepEqual(im.Provides, []string{"htop-vi"}) {
		t.Errorf("Provides misparsed: %v", im.Provides)
	}
	if !reflect.DeepEqual(im.Conffiles, []string{"/etc/htoprc"}) {
		t.Errorf("Backup entries must become absolute conffiles: %v", im.Conffiles)
	}
	if im.Maintainer != "Someone <someone@archlinux.org>" {
		t.Errorf("Packager misparsed: %q", im.Maintainer)
	}
}

func TestStripConstraint(t *testing.T) {
	cases := map[string]string{
		"glibc":        "glibc",
		"libnl>=3.0":   "libnl",
		"gcc-libs<13":  "gcc-libs",
		"openssl=3.0":  "openssl",
		" spaced >= 1": "spaced",
	}
	for in, want := range cases {
		if got := stripConstraint(in); got != want {
			t.Errorf("stripConstraint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseInstall(t *testing.T) {
	data := []byte(`post_install() {
	echo installed
	update-desktop-database -q
}

pre_upgrade()
{
	echo upgrading
}

helper_func() {
	if true; then
		echo never captured
	fi
}

post_remove() {
	echo removed; }
`)

	im := &models.Intermediate{}
	parseInstall(data, im)

	if got := im.Script(models.EventPostInstall); got != "\techo installed\n\tupdate-desktop-database -q" {
		t.Errorf("post_install misparsed: %q", got)
	}
	// Brace on the line after the name
	if got := im.Script(models.EventPreUpgrade); got != "\techo upgrading" {
		t.Errorf("pre_upgrade misparsed: %q", got)
	}
	// Trailing body text on the closing line is kept
	if got := im.Script(models.EventPostRemove); got != "echo removed;" {
		t.Errorf("post_remove misparsed: %q", got)
	}
	// Unknown functions are skipped, including their braces
	for event, body := range im.Scripts {
		if event != models.EventPostInstall && event != models.EventPreUpgrade && event != models.EventPostRemove {
			t.Errorf("Unexpected script captured for %s: %q", event, body)
		}
	}
}

func TestParseInstallNestedBraces(t *testing.T) {
	data := []byte(`post_install() {
	if [ -x /usr/bin/update-ca-trust ]; then
		update-ca-trust
	fi
	case "$x" in
	a) { echo grouped; } ;;
	esac
}
`)

	im := &models.Intermediate{}
	parseInstall(data, im)

	body := im.Script(models.EventPostInstall)
	if body == "" {
		t.Fatalf("Nested braces derailed the parser")
	}
	if !strings.Contains(body, "update-ca-trust") || !strings.Contains(body, "echo grouped") {
		t.Errorf("Body truncated: %q", body)
	}
}
