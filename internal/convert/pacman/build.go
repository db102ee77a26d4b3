package pacman

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/emufarm/pkgcross/internal/depmap"
	"github.com/emufarm/pkgcross/internal/layout"
	"github.com/emufarm/pkgcross/internal/models"
	"github.com/emufarm/pkgcross/internal/scripts"
	"github.com/emufarm/pkgcross/internal/utils"
)

// eventFuncs is the emission-side inverse of installFuncs
var eventFuncs = []struct {
	event models.Event
	name  string
}{
	{models.EventPreInstall, "pre_install"},
	{models.EventPostInstall, "post_install"},
	{models.EventPreUpgrade, "pre_upgrade"},
	{models.EventPostUpgrade, "post_upgrade"},
	{models.EventPreRemove, "pre_remove"},
	{models.EventPostRemove, "post_remove"},
}

// Builder emits pacman packages
type Builder struct{}

// NewBuilder creates a pacman builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Build assembles a .pkg.tar.zst from the intermediate and returns
// its path. Metadata-only packages produce an archive with no tree
// members at all.
func (b *Builder) Build(ctx context.Context, im *models.Intermediate, outputDir string, deps *depmap.Map) (string, error) {
	if err := im.Validate(); err != nil {
		return "", err
	}

	tree, err := layout.Walk(im.Root())
	if err != nil {
		return "", models.NewError(models.ErrBuildFailed, im.Name, fmt.Errorf("walking file tree: %w", err))
	}

	tr := scripts.ForTarget(im, models.FormatPacman)
	scripts.AppendHooks(tr, scripts.DetectUnits(tree))

	buildDate := time.Now()
	pkginfo := pkginfoText(im, deps, layout.TotalSize(tree), buildDate)
	install := installText(tr)

	mtree, err := mtreeText(im.Root(), tree, pkginfo, install, buildDate)
	if err != nil {
		return "", models.NewError(models.ErrBuildFailed, im.Name, fmt.Errorf("building .MTREE: %w", err))
	}
	mtreeGz, err := utils.GzipCompress([]byte(mtree))
	if err != nil {
		return "", models.NewError(models.ErrBuildFailed, im.Name, err)
	}

	filename := fmt.Sprintf("%s-%s-%s.pkg.tar.zst",
		im.Name, models.PacmanVersion(im.Version), im.Arch.PacmanName())
	outPath := filepath.Join(outputDir, filename)

	if err := writeArchive(outPath, im.Root(), tree, pkginfo, install, mtreeGz, buildDate); err != nil {
		os.Remove(outPath)
		return "", models.NewError(models.ErrBuildFailed, im.Name, err)
	}

	return outPath, nil
}

// writeArchive streams the metadata members and the file tree through
// tar and zstd in makepkg's member order
func writeArchive(outPath, root string, tree []layout.FileEntry, pkginfo, install string, mtreeGz []byte, buildDate time.Time) error {
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)

	writeMeta := func(name string, data []byte) error {
		hdr := &tar.Header{
			Name:    name,
			Mode:    0644,
			Size:    int64(len(data)),
			ModTime: buildDate,
			Uname:   "root",
			Gname:   "root",
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err := tw.Write(data)
		return err
	}

	if err := writeMeta(".PKGINFO", []byte(pkginfo)); err != nil {
		return err
	}
	if install != "" {
		if err := writeMeta(".INSTALL", []byte(install)); err != nil {
			return err
		}
	}
	if err := writeMeta(".MTREE", mtreeGz); err != nil {
		return err
	}

	for _, entry := range tree {
		hdr := &tar.Header{
			Name:    entry.Path,
			Mode:    int64(entry.Mode.Perm()),
			ModTime: buildDate,
			Uname:   "root",
			Gname:   "root",
		}
		switch {
		case entry.IsDir:
			hdr.Typeflag = tar.TypeDir
			hdr.Name += "/"
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
		case entry.Linkname != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = entry.Linkname
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = entry.Size
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			src, err := os.Open(filepath.Join(root, filepath.FromSlash(entry.Path)))
			if err != nil {
				return err
			}
			if _, err := io.Copy(tw, src); err != nil {
				src.Close()
				return err
			}
			src.Close()
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return zw.Close()
}

// pkginfoText renders the .PKGINFO key/value block
func pkginfoText(im *models.Intermediate, deps *depmap.Map, installedSize int64, buildDate time.Time) string {
	var b strings.Builder
	b.WriteString("# Generated by pkgcross\n")
	b.WriteString(fmt.Sprintf("pkgname = %s\n", im.Name))
	b.WriteString(fmt.Sprintf("pkgver = %s\n", models.PacmanVersion(im.Version)))
	if desc := summaryLine(im.Description); desc != "" {
		b.WriteString(fmt.Sprintf("pkgdesc = %s\n", desc))
	}
	b.WriteString(fmt.Sprintf("builddate = %d\n", buildDate.Unix()))
	if im.Maintainer != "" {
		b.WriteString(fmt.Sprintf("packager = %s\n", im.Maintainer))
	}
	b.WriteString(fmt.Sprintf("size = %d\n", installedSize))
	b.WriteString(fmt.Sprintf("arch = %s\n", im.Arch.PacmanName()))

	for _, name := range deps.ResolveAll(im.Depends, models.FormatPacman) {
		b.WriteString(fmt.Sprintf("depend = %s\n", name))
	}
	for _, name := range deps.ResolveAll(im.Provides, models.FormatPacman) {
		b.WriteString(fmt.Sprintf("provides = %s\n", name))
	}
	for _, name := range deps.ResolveAll(im.Conflicts, models.FormatPacman) {
		b.WriteString(fmt.Sprintf("conflict = %s\n", name))
	}
	for _, name := range deps.ResolveAll(im.Replaces, models.FormatPacman) {
		b.WriteString(fmt.Sprintf("replaces = %s\n", name))
	}
	for _, path := range im.Conffiles {
		b.WriteString(fmt.Sprintf("backup = %s\n", strings.TrimPrefix(path, "/")))
	}

	return b.String()
}

func summaryLine(desc string) string {
	if i := strings.IndexByte(desc, '\n'); i >= 0 {
		desc = desc[:i]
	}
	return strings.TrimSpace(desc)
}

// installText renders the .INSTALL functions, empty when no event
// carries a body
func installText(tr *scripts.Translated) string {
	if tr.Empty() {
		return ""
	}
	var b strings.Builder
	for _, ef := range eventFuncs {
		body := tr.Body(ef.event)
		if strings.TrimSpace(body) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(ef.name + "() {\n" + body + "\n}\n")
	}
	return b.String()
}

// mtreeText renders the uncompressed mtree manifest covering the
// metadata members and the file tree
func mtreeText(root string, tree []layout.FileEntry, pkginfo, install string, buildDate time.Time) (string, error) {
	var b strings.Builder
	ts := fmt.Sprintf("%d.0", buildDate.Unix())

	b.WriteString("#mtree\n")
	b.WriteString("/set type=file uid=0 gid=0 mode=644\n")

	meta := func(name, content string) {
		b.WriteString(fmt.Sprintf("./%s time=%s size=%d md5digest=%s sha256digest=%s\n",
			name, ts, len(content),
			utils.CalculateChecksum([]byte(content), "md5"),
			utils.CalculateChecksum([]byte(content), "sha256")))
	}
	meta(".PKGINFO", pkginfo)
	if install != "" {
		meta(".INSTALL", install)
	}

	for _, entry := range tree {
		switch {
		case entry.IsDir:
			b.WriteString(fmt.Sprintf("./%s time=%s mode=%o type=dir\n",
				entry.Path, ts, entry.Mode.Perm()))
		case entry.Linkname != "":
			b.WriteString(fmt.Sprintf("./%s time=%s mode=777 type=link link=%s\n",
				entry.Path, ts, entry.Linkname))
		default:
			sums, err := utils.CalculateChecksums(filepath.Join(root, filepath.FromSlash(entry.Path)))
			if err != nil {
				return "", err
			}
			b.WriteString(fmt.Sprintf("./%s time=%s mode=%o size=%d md5digest=%s sha256digest=%s\n",
				entry.Path, ts, entry.Mode.Perm(), entry.Size, sums.MD5, sums.SHA256))
		}
	}

	return b.String(), nil
}
