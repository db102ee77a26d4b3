// Package convert wires extractors and builders into the conversion
// pipeline: native archive in, intermediate layout in the middle,
// native archive of any format out.
package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/emufarm/pkgcross/internal/convert/deb"
	"github.com/emufarm/pkgcross/internal/convert/pacman"
	"github.com/emufarm/pkgcross/internal/convert/rpm"
	"github.com/emufarm/pkgcross/internal/depmap"
	"github.com/emufarm/pkgcross/internal/models"
	"github.com/emufarm/pkgcross/internal/relocate"
	"github.com/emufarm/pkgcross/internal/signer"
)

// Extractor parses one native archive into the intermediate layout
type Extractor interface {
	// Meta reads metadata only, leaving the payload untouched
	Meta(path string) (*models.Intermediate, error)

	// Extract reads metadata and unpacks the payload under
	// workDir/root
	Extract(ctx context.Context, path, workDir string) (*models.Intermediate, error)
}

// Builder emits one native archive from an intermediate
type Builder interface {
	// Build writes the archive into outputDir and returns its path.
	// Dependency names are translated through deps.
	Build(ctx context.Context, im *models.Intermediate, outputDir string, deps *depmap.Map) (string, error)
}

// ExtractorFor returns the extractor handling the given format
func ExtractorFor(f models.Format) (Extractor, error) {
	switch f {
	case models.FormatDeb:
		return deb.NewExtractor(), nil
	case models.FormatRpm:
		return rpm.NewExtractor(), nil
	case models.FormatPacman:
		return pacman.NewExtractor(), nil
	default:
		return nil, models.Errorf(models.ErrUnsupportedFormat, "", "no extractor for format %q", f)
	}
}

// BuilderFor returns the builder emitting the given format
func BuilderFor(f models.Format) (Builder, error) {
	switch f {
	case models.FormatDeb:
		return deb.NewBuilder(), nil
	case models.FormatRpm:
		return rpm.NewBuilder(), nil
	case models.FormatPacman:
		return pacman.NewBuilder(), nil
	default:
		return nil, models.Errorf(models.ErrUnsupportedFormat, "", "no builder for format %q", f)
	}
}

// FormatForPath determines a package file's format from its extension
func FormatForPath(path string) (models.Format, error) {
	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, ".deb"):
		return models.FormatDeb, nil
	case strings.HasSuffix(name, ".rpm"):
		return models.FormatRpm, nil
	case strings.Contains(name, ".pkg.tar"):
		return models.FormatPacman, nil
	default:
		return models.FormatUnknown, models.Errorf(models.ErrUnsupportedFormat, name,
			"cannot tell package format of %s", name)
	}
}

// Options configure one conversion
type Options struct {
	// Target selects the output format
	Target models.Format

	// OutputDir receives the built archive
	OutputDir string

	// WorkDir hosts the intermediate layout; a temp directory is
	// used (and removed) when empty
	WorkDir string

	// NewName renames the package before emission; a provides alias
	// for the old name is kept
	NewName string

	// SourceDistro is recorded in the intermediate for provenance
	SourceDistro string

	// DepMap translates dependency names on emission
	DepMap *depmap.Map

	// Signer, when set, writes a detached signature next to the
	// built archive
	Signer signer.Signer
}

// Convert runs the whole pipeline on one archive: extract, rename,
// relocate, emit. Returns the built archive's path.
func Convert(ctx context.Context, inputPath string, opts Options) (string, error) {
	format, err := FormatForPath(inputPath)
	if err != nil {
		return "", err
	}

	workDir := opts.WorkDir
	if workDir == "" {
		tmp, err := os.MkdirTemp("", "pkgcross-convert-")
		if err != nil {
			return "", fmt.Errorf("creating work dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		workDir = tmp
	}

	extractor, err := ExtractorFor(format)
	if err != nil {
		return "", err
	}

	im, err := extractor.Extract(ctx, inputPath, workDir)
	if err != nil {
		return "", err
	}
	if opts.SourceDistro != "" {
		im.SourceDistro = opts.SourceDistro
	}

	logrus.Infof("Extracted %s from %s", im, filepath.Base(inputPath))

	return Emit(ctx, im, opts)
}

// Emit runs the back half of the pipeline on an already-extracted
// intermediate: rename, relocate, build, sign.
func Emit(ctx context.Context, im *models.Intermediate, opts Options) (string, error) {
	if opts.NewName != "" {
		im.Rename(opts.NewName)
	}

	if err := relocate.Apply(im, opts.Target); err != nil {
		return "", err
	}

	builder, err := BuilderFor(opts.Target)
	if err != nil {
		return "", err
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	artifact, err := builder.Build(ctx, im, outputDir, opts.DepMap)
	if err != nil {
		return "", err
	}

	logrus.Infof("Built %s", artifact)

	if opts.Signer != nil {
		sigPath := artifact + ".sig"
		if err := signer.SignFile(opts.Signer, artifact, sigPath); err != nil {
			return "", models.NewError(models.ErrBuildFailed, im.Name,
				fmt.Errorf("signing %s: %w", filepath.Base(artifact), err))
		}
		logrus.Debugf("Signed %s", artifact)
	}

	return artifact, nil
}
