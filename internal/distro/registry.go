// Package distro implements resolver.Repository against real
// distributions, wrapping their native tools (apt, dnf, pacman) as
// black-box subprocesses.
package distro

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/emufarm/pkgcross/internal/resolver"
)

// queryBatchSize caps how many names one tool invocation carries so
// command lines stay well under the kernel argument limit
const queryBatchSize = 200

// Entry describes one distribution in the registry file
type Entry struct {
	// Name is the registry key, e.g. "bookworm" or "fedora40"
	Name string `yaml:"name"`

	// Family selects the tool wrapper: apt, dnf or pacman
	Family string `yaml:"family"`

	// Codename overrides Name as the release identifier
	Codename string `yaml:"codename"`

	// Args are extra arguments passed to every tool invocation, e.g.
	// apt -o options or dnf --releasever
	Args []string `yaml:"args"`
}

// Registry is the set of configured distributions, loaded from YAML:
//
//	distros:
//	  - name: bookworm
//	    family: apt
//	  - name: fedora40
//	    family: dnf
//	    args: ["--releasever", "40"]
type Registry struct {
	Distros []Entry `yaml:"distros"`
}

// LoadRegistry reads a registry file
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &reg, nil
}

// Open returns the Repository for a registered distribution
func (r *Registry) Open(name string) (resolver.Repository, error) {
	for _, e := range r.Distros {
		if e.Name == name {
			return openEntry(e)
		}
	}
	return nil, fmt.Errorf("distribution %q is not in the registry", name)
}

func openEntry(e Entry) (resolver.Repository, error) {
	if e.Codename == "" {
		e.Codename = e.Name
	}
	switch e.Family {
	case "apt":
		return NewAptRepository(e), nil
	case "dnf":
		return NewDnfRepository(e), nil
	case "pacman":
		return NewPacmanRepository(e), nil
	default:
		return nil, fmt.Errorf("unknown distribution family %q", e.Family)
	}
}

// chunks splits names into batches of at most n
func chunks(names []string, n int) [][]string {
	var out [][]string
	for len(names) > n {
		out = append(out, names[:n])
		names = names[n:]
	}
	if len(names) > 0 {
		out = append(out, names)
	}
	return out
}
