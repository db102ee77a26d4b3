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

// PacmanRepository wraps a pacman-based distribution
type PacmanRepository struct {
	entry Entry
}

// NewPacmanRepository creates the pacman wrapper
func NewPacmanRepository(e Entry) *PacmanRepository {
	return &PacmanRepository{entry: e}
}

// Codename identifies the distribution release
func (r *PacmanRepository) Codename() string {
	return r.entry.Codename
}

// Format is the package format the distribution serves
func (r *PacmanRepository) Format() models.Format {
	return models.FormatPacman
}

// Available queries pacman -Si in batches. pacman exits non-zero when
// any name is unknown while still printing the known ones, so output
// is parsed regardless and the error only propagates when nothing was
// answered.
func (r *PacmanRepository) Available(ctx context.Context, names []string) (map[string]resolver.Candidate, error) {
	found := make(map[string]resolver.Candidate)

	for _, batch := range chunks(names, queryBatchSize) {
		args := append([]string{"-Si"}, r.entry.Args...)
		args = append(args, batch...)

		out, err := utils.RunCommand(ctx, "", "pacman", args...)
		parsed := parsePacmanInfo(out, found)
		if err != nil && parsed == 0 && !bytes.Contains(out, []byte("was not found")) {
			return nil, err
		}
	}

	return found, nil
}

// parsePacmanInfo reads Name/Version/Download Size fields out of
// pacman -Si info blocks
func parsePacmanInfo(out []byte, found map[string]resolver.Candidate) int {
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
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "Name":
			flush()
			name = value
		case "Version":
			cand.Version = value
		case "Download Size":
			cand.Size = parseHumanSize(value)
		}
	}
	flush()
	return parsed
}

// parseHumanSize converts pacman's "6.50 KiB" style sizes to bytes
func parseHumanSize(s string) int64 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	unit := ""
	if len(fields) > 1 {
		unit = fields[1]
	}
	switch unit {
	case "KiB":
		value *= 1024
	case "MiB":
		value *= 1024 * 1024
	case "GiB":
		value *= 1024 * 1024 * 1024
	}
	return int64(value)
}

// Fetch resolves the package's mirror URL with pacman -Sp and
// downloads it into destDir
func (r *PacmanRepository) Fetch(ctx context.Context, name, destDir string) (string, error) {
	args := append([]string{"-Sp", "--print-format", "%l"}, r.entry.Args...)
	args = append(args, name)

	out, err := utils.RunCommand(ctx, "", "pacman", args...)
	if err != nil {
		return "", models.NewError(models.ErrFetchFailed, name, err)
	}

	url := lastLine(out)
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		path, err := fetchURL(ctx, url, destDir)
		if err != nil {
			return "", models.NewError(models.ErrFetchFailed, name, err)
		}
		return path, nil
	case strings.HasPrefix(url, "file://"):
		src := strings.TrimPrefix(url, "file://")
		dst := filepath.Join(destDir, filepath.Base(src))
		if err := utils.CopyFile(src, dst); err != nil {
			return "", models.NewError(models.ErrFetchFailed, name, err)
		}
		return dst, nil
	default:
		return "", models.Errorf(models.ErrFetchFailed, name,
			"pacman -Sp returned no usable URL for %s: %q", name, url)
	}
}

// lastLine returns the final non-empty output line, skipping any
// leading database chatter
func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

var _ resolver.Repository = (*PacmanRepository)(nil)

// String implements fmt.Stringer for log lines
func (r *PacmanRepository) String() string {
	return fmt.Sprintf("pacman(%s)", r.entry.Codename)
}
