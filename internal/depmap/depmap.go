// Package depmap translates dependency names between the naming
// conventions of the three package ecosystems and carries the
// original-to-prefixed pairs produced by dependency resolution.
package depmap

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/emufarm/pkgcross/internal/models"
)

// entry is one row of the name table: the same dependency concept
// under each format's name
type entry map[models.Format]string

// Map resolves dependency names for emission. Zero value is usable;
// unmapped names always pass through unchanged.
type Map struct {
	entries []entry
	pairs   map[string]string
}

// New returns an empty Map
func New() *Map {
	return &Map{pairs: make(map[string]string)}
}

// Load reads a name table file. Each line names one dependency
// concept: the bare leading token is the deb name, followed by
// comma-separated format:name tokens, e.g.
//
//	libssl3 rpm:openssl-libs, pac:openssl
//
// Blank lines and # comments are skipped.
func Load(path string) (*Map, error) {
	m := New()
	if path == "" {
		return m, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dependency name map: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		row := entry{}
		for i, token := range strings.Fields(line) {
			token = strings.TrimSuffix(token, ",")
			if token == "" {
				continue
			}
			if i == 0 && !strings.Contains(token, ":") {
				row[models.FormatDeb] = token
				continue
			}
			parts := strings.SplitN(token, ":", 2)
			if len(parts) != 2 || parts[1] == "" {
				return nil, fmt.Errorf("name map line %d: bad token %q", lineNo, token)
			}
			switch parts[0] {
			case "deb":
				row[models.FormatDeb] = parts[1]
			case "rpm":
				row[models.FormatRpm] = parts[1]
			case "pac", "pacman":
				row[models.FormatPacman] = parts[1]
			default:
				return nil, fmt.Errorf("name map line %d: unknown format %q", lineNo, parts[0])
			}
		}
		if len(row) > 0 {
			m.entries = append(m.entries, row)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dependency name map: %w", err)
	}

	return m, nil
}

// Resolve maps a dependency name into the target format's naming.
// Resolution pairs (renamed rebuilds) take precedence over the static
// name table; a name known to neither passes through unchanged.
func (m *Map) Resolve(name string, target models.Format) string {
	if m == nil {
		return name
	}
	if prefixed, ok := m.pairs[name]; ok {
		return prefixed
	}
	for _, row := range m.entries {
		for _, n := range row {
			if n != name {
				continue
			}
			if mapped, ok := row[target]; ok {
				return mapped
			}
			return name
		}
	}
	return name
}

// ResolveAll maps a whole dependency list, preserving order
func (m *Map) ResolveAll(names []string, target models.Format) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = m.Resolve(n, target)
	}
	return out
}

// AddPair records that original is now satisfied by prefixed
func (m *Map) AddPair(original, prefixed string) {
	if m.pairs == nil {
		m.pairs = make(map[string]string)
	}
	m.pairs[original] = prefixed
}

// Pairs returns the recorded pairs, sorted by original name
func (m *Map) Pairs() []string {
	out := make([]string, 0, len(m.pairs))
	for original, prefixed := range m.pairs {
		out = append(out, original+"="+prefixed)
	}
	sort.Strings(out)
	return out
}

// WritePairs writes the mapping output file, one original=prefixed
// pair per line
func (m *Map) WritePairs(path string) error {
	var buf strings.Builder
	for _, pair := range m.Pairs() {
		buf.WriteString(pair)
		buf.WriteString("\n")
	}
	if err := os.WriteFile(path, []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("writing dependency mapping: %w", err)
	}
	return nil
}

// LoadPairs merges a previously written mapping output file into m
func (m *Map) LoadPairs(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening dependency mapping: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("bad mapping line %q", line)
		}
		m.AddPair(parts[0], parts[1])
	}
	return scanner.Err()
}
