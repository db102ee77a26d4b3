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

// AptRepository wraps an apt-based distribution
type AptRepository struct {
	entry Entry
}

// NewAptRepository creates the apt wrapper
func NewAptRepository(e Entry) *AptRepository {
	return &AptRepository{entry: e}
}

// Codename identifies the distribution release
func (r *AptRepository) Codename() string {
	return r.entry.Codename
}

// Format is the package format the distribution serves
func (r *AptRepository) Format() models.Format {
	return models.FormatDeb
}

// Available queries apt-cache show in batches. apt-cache exits
// non-zero when any name is unknown while still printing stanzas for
// the rest, so output is parsed regardless and the error only
// propagates when nothing was answered.
func (r *AptRepository) Available(ctx context.Context, names []string) (map[string]resolver.Candidate, error) {
	found := make(map[string]resolver.Candidate)

	for _, batch := range chunks(names, queryBatchSize) {
		args := append([]string{"show", "--no-all-versions"}, r.entry.Args...)
		args = append(args, batch...)

		out, err := utils.RunCommand(ctx, "", "apt-cache", args...)
		parsed := parseAptStanzas(out, found)
		if err != nil && parsed == 0 && !bytes.Contains(out, []byte("Unable to locate package")) &&
			!bytes.Contains(out, []byte("No packages found")) {
			return nil, err
		}
	}

	return found, nil
}

// parseAptStanzas reads Package/Version/Size fields out of apt-cache
// show output, keeping the first stanza per package name
func parseAptStanzas(out []byte, found map[string]resolver.Candidate) int {
	parsed := 0
	var name string
	var cand resolver.Candidate

	flush := func() {
		if name != "" {
			if _, dup := found[name]; !dup {
				found[name] = cand
				parsed++
			}
		}
		name, cand = "", resolver.Candidate{}
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Package":
			flush()
			name = value
		case "Version":
			cand.Version = value
		case "Size":
			cand.Size, _ = strconv.ParseInt(value, 10, 64)
		}
	}
	flush()
	return parsed
}

// Fetch downloads one package with apt-get download, which writes the
// .deb into the working directory
func (r *AptRepository) Fetch(ctx context.Context, name, destDir string) (string, error) {
	args := append([]string{"download"}, r.entry.Args...)
	args = append(args, name)

	if _, err := utils.RunCommand(ctx, destDir, "apt-get", args...); err != nil {
		return "", models.NewError(models.ErrFetchFailed, name, err)
	}

	matches, err := filepath.Glob(filepath.Join(destDir, name+"_*.deb"))
	if err != nil || len(matches) == 0 {
		return "", models.Errorf(models.ErrFetchFailed, name,
			"apt-get download produced no .deb for %s", name)
	}
	return matches[0], nil
}

var _ resolver.Repository = (*AptRepository)(nil)

// String implements fmt.Stringer for log lines
func (r *AptRepository) String() string {
	return fmt.Sprintf("apt(%s)", r.entry.Codename)
}
