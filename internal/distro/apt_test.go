package distro

import (
	"testing"

	"github.com/emufarm/pkgcross/internal/resolver"
)

func TestParseAptStanzas(t *testing.T) {
	out := []byte(`Package: libfoo
Version: 1.2.9-1
Installed-Size: 300
Maintainer: Debian Maintainers <team@example.org>
Architecture: amd64
Depends: libc6 (>= 2.17)
Size: 123456
Description: a foo library
 This continuation line mentions Size: 9999 and must be ignored.

Package: libbar
Version: 2.0-1
Size: 9876
`)

	found := make(map[string]resolver.Candidate)
	parsed := parseAptStanzas(out, found)

	if parsed != 2 {
		t.Errorf("Expected 2 parsed stanzas, got %d", parsed)
	}
	if c := found["libfoo"]; c.Version != "1.2.9-1" || c.Size != 123456 {
		t.Errorf("libfoo candidate = %+v", c)
	}
	if c := found["libbar"]; c.Version != "2.0-1" || c.Size != 9876 {
		t.Errorf("libbar candidate = %+v", c)
	}
}

func TestParseAptStanzasKeepsFirst(t *testing.T) {
	out := []byte(`Package: libfoo
Version: 2.0-1
Size: 10

Package: libfoo
Version: 1.0-1
Size: 20
`)

	found := make(map[string]resolver.Candidate)
	if parsed := parseAptStanzas(out, found); parsed != 1 {
		t.Errorf("Expected 1 parsed stanza, got %d", parsed)
	}
	if c := found["libfoo"]; c.Version != "2.0-1" {
		t.Errorf("Expected the first stanza to win, got %+v", c)
	}
}

func TestParseAptStanzasEmpty(t *testing.T) {
	found := make(map[string]resolver.Candidate)
	if parsed := parseAptStanzas([]byte("N: Unable to locate package ghost\n"), found); parsed != 0 {
		t.Errorf("Expected nothing parsed, got %d", parsed)
	}
	if len(found) != 0 {
		t.Errorf("Unexpected candidates: %v", found)
	}
}
