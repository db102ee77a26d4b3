package distro

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/emufarm/pkgcross/internal/models"
	"github.com/emufarm/pkgcross/internal/resolver"
	"github.com/emufarm/pkgcross/internal/utils"
)

// DnfRepository wraps a dnf-based distribution
type DnfRepository struct {
	entry Entry
}

// NewDnfRepository creates the dnf wrapper
func NewDnfRepository(e Entry) *DnfRepository {
	return &DnfRepository{entry: e}
}

// Codename identifies the distribution release
func (r *DnfRepository) Codename() string {
	return r.entry.Codename
}

// Format is the package format the distribution serves
func (r *DnfRepository) Format() models.Format {
	return models.FormatRpm
}

// Available queries dnf repoquery in batches. Unknown names simply
// produce no output line.
func (r *DnfRepository) Available(ctx context.Context, names []string) (map[string]resolver.Candidate, error) {
	found := make(map[string]resolver.Candidate)

	for _, batch := range chunks(names, queryBatchSize) {
		args := append([]string{
			"repoquery",
			"--quiet",
			"--latest-limit", "1",
			"--queryformat", "%{name}|%{version}|%{size}\n",
		}, r.entry.Args...)
		args = append(args, batch...)

		out, err := utils.RunCommand(ctx, "", "dnf", args...)
		if err != nil {
			return nil, err
		}

		scanner := bufio.NewScanner(bytes.NewReader(out))
		for scanner.Scan() {
			fields := strings.Split(strings.TrimSpace(scanner.Text()), "|")
			if len(fields) != 3 || fields[0] == "" {
				continue
			}
			if _, dup := found[fields[0]]; dup {
				continue
			}
			size, _ := strconv.ParseInt(fields[2], 10, 64)
			found[fields[0]] = resolver.Candidate{Version: fields[1], Size: size}
		}
	}

	return found, nil
}

// Fetch downloads one package with dnf download into destDir
func (r *DnfRepository) Fetch(ctx context.Context, name, destDir string) (string, error) {
	args := append([]string{"download", "--destdir", destDir}, r.entry.Args...)
	args = append(args, name)

	if _, err := utils.RunCommand(ctx, "", "dnf", args...); err != nil {
		return "", models.NewError(models.ErrFetchFailed, name, err)
	}

	matches, err := filepath.Glob(filepath.Join(destDir, name+"-*.rpm"))
	if err != nil || len(matches) == 0 {
		return "", models.Errorf(models.ErrFetchFailed, name,
			"dnf download produced no .rpm for %s", name)
	}
	return matches[0], nil
}

var _ resolver.Repository = (*DnfRepository)(nil)

// String implements fmt.Stringer for log lines
func (r *DnfRepository) String() string {
	return fmt.Sprintf("dnf(%s)", r.entry.Codename)
}
