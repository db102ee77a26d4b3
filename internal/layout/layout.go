// Package layout persists the intermediate package representation as
// a plain directory: metadata under meta/, lifecycle scripts under
// meta/scripts/, and the install-time file tree under root/. The
// format is the contract between extractors and emitters and is
// deliberately inspectable with standard shell tools.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/emufarm/pkgcross/internal/models"
	"github.com/emufarm/pkgcross/internal/utils"
)

// Save writes the intermediate's metadata into dir/meta and pins the
// intermediate to dir. The root/ subtree is created but not touched;
// extractors populate it directly.
func Save(im *models.Intermediate, dir string) error {
	im.Dir = dir
	metaDir := filepath.Join(dir, "meta")
	if err := utils.EnsureDir(metaDir); err != nil {
		return fmt.Errorf("creating meta dir: %w", err)
	}
	if err := utils.EnsureDir(filepath.Join(dir, "root")); err != nil {
		return fmt.Errorf("creating root dir: %w", err)
	}

	values := map[string]string{
		"name":          im.Name,
		"version":       im.Version,
		"arch":          string(im.Arch),
		"description":   im.Description,
		"maintainer":    im.Maintainer,
		"source_format": im.SourceFormat.String(),
		"source_distro": im.SourceDistro,
	}
	for name, value := range values {
		if value == "" {
			continue
		}
		if err := writeValue(metaDir, name, value); err != nil {
			return err
		}
	}

	lists := map[string][]string{
		"depends":   im.Depends,
		"provides":  im.Provides,
		"conflicts": im.Conflicts,
		"replaces":  im.Replaces,
		"conffiles": im.Conffiles,
	}
	for name, list := range lists {
		path := filepath.Join(metaDir, name)
		if len(list) == 0 {
			// A rewritten intermediate may have shed a list entirely
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			continue
		}
		if err := writeValue(metaDir, name, strings.Join(list, "\n")); err != nil {
			return err
		}
	}

	if im.HasScripts() {
		scriptsDir := filepath.Join(metaDir, "scripts")
		for event, body := range im.Scripts {
			if body == "" {
				continue
			}
			path := filepath.Join(scriptsDir, event.String())
			if err := utils.WriteFile(path, []byte(body), 0755); err != nil {
				return fmt.Errorf("writing script %s: %w", event, err)
			}
		}
	}

	return nil
}

// Load reads a layout directory back into an intermediate
func Load(dir string) (*models.Intermediate, error) {
	metaDir := filepath.Join(dir, "meta")
	if _, err := os.Stat(metaDir); err != nil {
		return nil, models.Errorf(models.ErrMalformedPackage, "", "no meta directory in %s", dir)
	}

	im := &models.Intermediate{Dir: dir}
	im.Name = readValue(metaDir, "name")
	im.Version = readValue(metaDir, "version")
	im.Arch = models.Arch(readValue(metaDir, "arch"))
	im.Description = readValue(metaDir, "description")
	im.Maintainer = readValue(metaDir, "maintainer")
	im.SourceDistro = readValue(metaDir, "source_distro")

	if f := readValue(metaDir, "source_format"); f != "" {
		parsed, err := models.ParseFormat(f)
		if err != nil {
			return nil, models.NewError(models.ErrMalformedPackage, im.Name, err)
		}
		im.SourceFormat = parsed
	}

	im.Depends = readList(metaDir, "depends")
	im.Provides = readList(metaDir, "provides")
	im.Conflicts = readList(metaDir, "conflicts")
	im.Replaces = readList(metaDir, "replaces")
	im.Conffiles = readList(metaDir, "conffiles")

	scriptsDir := filepath.Join(metaDir, "scripts")
	if entries, err := os.ReadDir(scriptsDir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			event, ok := models.ParseEvent(entry.Name())
			if !ok {
				return nil, models.Errorf(models.ErrMalformedPackage, im.Name,
					"unknown lifecycle script %q", entry.Name())
			}
			body, err := os.ReadFile(filepath.Join(scriptsDir, entry.Name()))
			if err != nil {
				return nil, fmt.Errorf("reading script %s: %w", entry.Name(), err)
			}
			im.SetScript(event, string(body))
		}
	}

	if im.Name == "" || im.Version == "" || im.Arch == "" {
		return nil, models.Errorf(models.ErrMalformedPackage, im.Name,
			"layout %s is missing name, version or arch", dir)
	}

	return im, nil
}

func writeValue(metaDir, name, value string) error {
	if !strings.HasSuffix(value, "\n") {
		value += "\n"
	}
	if err := os.WriteFile(filepath.Join(metaDir, name), []byte(value), 0644); err != nil {
		return fmt.Errorf("writing meta/%s: %w", name, err)
	}
	return nil
}

func readValue(metaDir, name string) string {
	data, err := os.ReadFile(filepath.Join(metaDir, name))
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(data), "\n")
}

func readList(metaDir, name string) []string {
	raw := readValue(metaDir, name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
