package rpm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sassoftware/go-rpmutils"

	"github.com/emufarm/pkgcross/internal/layout"
	"github.com/emufarm/pkgcross/internal/models"
)

// scriptletTags maps the rpm scriptlet header tags onto the events
// their bodies run under
var scriptletTags = map[int]models.Event{
	rpmutils.PREIN:  models.EventPreInstall,
	rpmutils.POSTIN: models.EventPostInstall,
	rpmutils.PREUN:  models.EventPreRemove,
	rpmutils.POSTUN: models.EventPostRemove,
}

// Extractor reads .rpm packages
type Extractor struct{}

// NewExtractor creates an rpm extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Meta reads the rpm header without touching the payload
func (e *Extractor) Meta(path string) (*models.Intermediate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return nil, models.NewError(models.ErrMalformedPackage, filepath.Base(path),
			fmt.Errorf("reading rpm header: %w", err))
	}

	return readHeader(rpm, path)
}

// Extract reads the header and expands the payload into workDir/root
func (e *Extractor) Extract(ctx context.Context, path, workDir string) (*models.Intermediate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return nil, models.NewError(models.ErrMalformedPackage, filepath.Base(path),
			fmt.Errorf("reading rpm header: %w", err))
	}

	im, err := readHeader(rpm, path)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	rootDir := filepath.Join(workDir, "root")
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, err
	}
	if err := rpm.ExpandPayload(rootDir); err != nil {
		return nil, models.NewError(models.ErrMalformedPackage, im.Name,
			fmt.Errorf("expanding payload: %w", err))
	}

	if err := layout.Save(im, workDir); err != nil {
		return nil, err
	}
	return im, nil
}

// readHeader builds the intermediate from the rpm header tags
func readHeader(rpm *rpmutils.Rpm, path string) (*models.Intermediate, error) {
	im := &models.Intermediate{SourceFormat: models.FormatRpm}

	im.Name = stringTag(rpm, rpmutils.NAME)
	im.Version = versionTag(rpm)
	if im.Name == "" || im.Version == "" {
		return nil, models.Errorf(models.ErrMalformedPackage, filepath.Base(path),
			"rpm header of %s lacks name or version", filepath.Base(path))
	}

	im.Arch = models.NormalizeArch(stringTag(rpm, rpmutils.ARCH))
	im.Maintainer = stringTag(rpm, rpmutils.PACKAGER)
	im.Description = descriptionTag(rpm)

	im.Depends = filterRelations(stringSliceTag(rpm, rpmutils.REQUIRENAME), im.Name)
	im.Provides = filterRelations(stringSliceTag(rpm, rpmutils.PROVIDENAME), im.Name)
	im.Conflicts = filterRelations(stringSliceTag(rpm, rpmutils.CONFLICTNAME), im.Name)
	im.Replaces = filterRelations(stringSliceTag(rpm, rpmutils.OBSOLETENAME), im.Name)

	if files, err := rpm.Header.GetFiles(); err == nil {
		for _, fi := range files {
			if fi.Flags()&rpmutils.RPMFILE_CONFIG != 0 {
				im.Conffiles = append(im.Conffiles, fi.Name())
			}
		}
	}

	for tag, event := range scriptletTags {
		if body := stringTag(rpm, tag); strings.TrimSpace(body) != "" {
			im.SetScript(event, body)
		}
	}

	return im, nil
}

// versionTag joins epoch, version and release into the universal
// [epoch:]upstream[-revision] form
func versionTag(rpm *rpmutils.Rpm) string {
	version := stringTag(rpm, rpmutils.VERSION)
	if version == "" {
		return ""
	}
	if release := stringTag(rpm, rpmutils.RELEASE); release != "" {
		version += "-" + release
	}
	if epoch, ok := intTag(rpm, rpmutils.EPOCH); ok && epoch > 0 {
		version = fmt.Sprintf("%d:%s", epoch, version)
	}
	return version
}

func descriptionTag(rpm *rpmutils.Rpm) string {
	summary := stringTag(rpm, rpmutils.SUMMARY)
	desc := stringTag(rpm, rpmutils.DESCRIPTION)
	switch {
	case summary == "":
		return desc
	case desc == "" || desc == summary:
		return summary
	default:
		return summary + "\n" + desc
	}
}

// filterRelations keeps plain package names: rpmlib() internals,
// soname and config() entries, and file path dependencies have no
// meaning outside the source distribution. The package's own
// self-provide is dropped too.
func filterRelations(names []string, self string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || name == self || seen[name] {
			continue
		}
		if strings.HasPrefix(name, "/") || strings.Contains(name, "(") {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// stringTag safely gets a string tag from the header
func stringTag(rpm *rpmutils.Rpm, tag int) string {
	val, err := rpm.Header.Get(tag)
	if err != nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// stringSliceTag safely gets a string slice tag from the header
func stringSliceTag(rpm *rpmutils.Rpm, tag int) []string {
	val, err := rpm.Header.Get(tag)
	if err != nil {
		return nil
	}
	if slice, ok := val.([]string); ok {
		return slice
	}
	return nil
}

// intTag safely gets the first integer of a numeric tag
func intTag(rpm *rpmutils.Rpm, tag int) (int64, bool) {
	val, err := rpm.Header.Get(tag)
	if err != nil {
		return 0, false
	}
	switch v := val.(type) {
	case []int:
		if len(v) > 0 {
			return int64(v[0]), true
		}
	case []int64:
		if len(v) > 0 {
			return v[0], true
		}
	case []uint32:
		if len(v) > 0 {
			return int64(v[0]), true
		}
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}
