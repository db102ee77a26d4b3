package resolver

import (
	"context"

	"github.com/emufarm/pkgcross/internal/models"
)

// Candidate is the best package a distribution offers for one name
type Candidate struct {
	// Version as the distribution advertises it
	Version string

	// Size of the package artifact in bytes, 0 when the repository
	// does not report it
	Size int64
}

// Repository answers batched availability queries against one
// distribution and fetches individual packages from it
type Repository interface {
	// Codename identifies the distribution release, e.g. "bookworm"
	Codename() string

	// Format is the package format the distribution serves
	Format() models.Format

	// Available returns the candidate for every queried name that
	// exists; absent names have no map entry. One call covers a whole
	// resolution round.
	Available(ctx context.Context, names []string) (map[string]Candidate, error)

	// Fetch downloads one package into destDir and returns its path
	Fetch(ctx context.Context, name, destDir string) (string, error)
}
