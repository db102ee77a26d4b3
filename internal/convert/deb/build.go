package deb

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/linuxerwang/ar"

	"github.com/emufarm/pkgcross/internal/depmap"
	"github.com/emufarm/pkgcross/internal/layout"
	"github.com/emufarm/pkgcross/internal/models"
	"github.com/emufarm/pkgcross/internal/scripts"
)

// Builder emits .deb archives
type Builder struct{}

// NewBuilder creates a deb builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Build assembles a .deb from the intermediate and returns its path
func (b *Builder) Build(ctx context.Context, im *models.Intermediate, outputDir string, deps *depmap.Map) (string, error) {
	if err := im.Validate(); err != nil {
		return "", err
	}

	tree, err := layout.Walk(im.Root())
	if err != nil {
		return "", models.NewError(models.ErrBuildFailed, im.Name, fmt.Errorf("walking file tree: %w", err))
	}

	tr := scripts.ForTarget(im, models.FormatDeb)
	scripts.AppendHooks(tr, scripts.DetectUnits(tree))

	dataTar, md5sums, err := buildData(im.Root(), tree)
	if err != nil {
		return "", models.NewError(models.ErrBuildFailed, im.Name, fmt.Errorf("building data.tar.gz: %w", err))
	}

	controlTar, err := buildControl(im, deps, tr, md5sums, layout.TotalSize(tree))
	if err != nil {
		return "", models.NewError(models.ErrBuildFailed, im.Name, fmt.Errorf("building control.tar.gz: %w", err))
	}

	filename := fmt.Sprintf("%s_%s_%s.deb", im.Name, models.DebFileVersion(im.Version), im.Arch.DebName())
	outPath := filepath.Join(outputDir, filename)

	if err := writeAr(outPath, controlTar, dataTar); err != nil {
		return "", models.NewError(models.ErrBuildFailed, im.Name, err)
	}

	return outPath, nil
}

// writeAr lays out the three ar members dpkg expects, in order
func writeAr(path string, controlTar, dataTar []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	arw := ar.NewWriter(f)
	if err := arw.WriteGlobalHeader(); err != nil {
		return fmt.Errorf("writing ar header: %w", err)
	}

	members := []struct {
		name string
		data []byte
	}{
		{"debian-binary", []byte("2.0\n")},
		{"control.tar.gz", controlTar},
		{"data.tar.gz", dataTar},
	}
	for _, m := range members {
		hdr := &ar.Header{
			Name:    m.name,
			Size:    int64(len(m.data)),
			ModTime: time.Now(),
			Mode:    0644,
		}
		if err := arw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing ar member %s: %w", m.name, err)
		}
		if _, err := arw.Write(m.data); err != nil {
			return fmt.Errorf("writing ar member %s: %w", m.name, err)
		}
	}

	return nil
}

// buildData writes the payload tarball and collects per-file md5sums
// along the way
func buildData(root string, tree []layout.FileEntry) ([]byte, string, error) {
	var buf bytes.Buffer
	gz, tw := newTarGz(&buf)

	now := time.Now()
	if err := tw.WriteHeader(&tar.Header{
		Name: "./", Typeflag: tar.TypeDir, Mode: 0755, ModTime: now,
		Uname: "root", Gname: "root",
	}); err != nil {
		return nil, "", err
	}

	var md5sums strings.Builder
	for _, entry := range tree {
		hdr := &tar.Header{
			Name:    "./" + entry.Path,
			Mode:    int64(entry.Mode.Perm()),
			ModTime: now,
			Uname:   "root",
			Gname:   "root",
		}

		switch {
		case entry.IsDir:
			hdr.Typeflag = tar.TypeDir
			hdr.Name += "/"
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, "", err
			}
		case entry.Linkname != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = entry.Linkname
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, "", err
			}
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = entry.Size
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, "", err
			}
			sum, err := copyFileInto(tw, filepath.Join(root, filepath.FromSlash(entry.Path)))
			if err != nil {
				return nil, "", err
			}
			md5sums.WriteString(sum + "  " + entry.Path + "\n")
		}
	}

	if err := closeTarGz(gz, tw); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), md5sums.String(), nil
}

// buildControl writes the control tarball: control block, conffiles,
// md5sums, maintainer scripts
func buildControl(im *models.Intermediate, deps *depmap.Map, tr *scripts.Translated, md5sums string, installedBytes int64) ([]byte, error) {
	var buf bytes.Buffer
	gz, tw := newTarGz(&buf)
	now := time.Now()

	writeMember := func(name, content string, mode int64) error {
		hdr := &tar.Header{
			Name:    "./" + name,
			Mode:    mode,
			Size:    int64(len(content)),
			ModTime: now,
			Uname:   "root",
			Gname:   "root",
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err := io.WriteString(tw, content)
		return err
	}

	if err := writeMember("control", controlBlock(im, deps, installedBytes), 0644); err != nil {
		return nil, err
	}
	if md5sums != "" {
		if err := writeMember("md5sums", md5sums, 0644); err != nil {
			return nil, err
		}
	}
	if len(im.Conffiles) > 0 {
		if err := writeMember("conffiles", strings.Join(im.Conffiles, "\n")+"\n", 0644); err != nil {
			return nil, err
		}
	}

	for name, body := range assembleScripts(tr) {
		if err := writeMember(name, body, 0755); err != nil {
			return nil, err
		}
	}

	if err := closeTarGz(gz, tw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// controlBlock renders the control file. The Version field keeps the
// universal version string; only the archive file name legalizes it.
func controlBlock(im *models.Intermediate, deps *depmap.Map, installedBytes int64) string {
	var buf strings.Builder
	buf.WriteString(fmt.Sprintf("Package: %s\n", im.Name))
	buf.WriteString(fmt.Sprintf("Version: %s\n", im.Version))
	buf.WriteString(fmt.Sprintf("Architecture: %s\n", im.Arch.DebName()))
	if im.Maintainer != "" {
		buf.WriteString(fmt.Sprintf("Maintainer: %s\n", im.Maintainer))
	}
	buf.WriteString(fmt.Sprintf("Installed-Size: %d\n", (installedBytes+1023)/1024))

	writeRelation(&buf, "Depends", deps.ResolveAll(im.Depends, models.FormatDeb))
	writeRelation(&buf, "Provides", deps.ResolveAll(im.Provides, models.FormatDeb))
	writeRelation(&buf, "Conflicts", deps.ResolveAll(im.Conflicts, models.FormatDeb))
	writeRelation(&buf, "Replaces", deps.ResolveAll(im.Replaces, models.FormatDeb))

	buf.WriteString("Description: " + descriptionField(im.Description) + "\n")
	return buf.String()
}

func writeRelation(buf *strings.Builder, field string, names []string) {
	if len(names) == 0 {
		return
	}
	buf.WriteString(fmt.Sprintf("%s: %s\n", field, strings.Join(names, ", ")))
}

// descriptionField folds a multi-line description into the control
// continuation convention: extended lines indented, blanks as dots
func descriptionField(desc string) string {
	if desc == "" {
		return "converted package"
	}
	lines := strings.Split(desc, "\n")
	out := lines[0]
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			out += "\n ."
		} else {
			out += "\n " + line
		}
	}
	return out
}

// assembleScripts renders the maintainer scripts for the translated
// event set. Native sets re-emit their own multiplexing; foreign sets
// get the deb case conventions wrapped around each event body.
func assembleScripts(tr *scripts.Translated) map[string]string {
	out := make(map[string]string)

	if tr.Native {
		for event, body := range tr.Events {
			for name, primary := range scriptEvents {
				if event == primary && strings.TrimSpace(body) != "" {
					out[name] = "#!/bin/sh\nset -e\n" + body + "\n"
				}
			}
		}
		return out
	}

	if body := assemblePreinst(tr); body != "" {
		out["preinst"] = body
	}
	if body := assemblePostinst(tr); body != "" {
		out["postinst"] = body
	}
	if body := assemblePrerm(tr); body != "" {
		out["prerm"] = body
	}
	if body := assemblePostrm(tr); body != "" {
		out["postrm"] = body
	}
	return out
}

func scriptHeader(tr *scripts.Translated, argDefault, argUpgrade, upgradeTest string) string {
	header := "#!/bin/sh\nset -e\n"
	if tr.NeedsArgPreamble {
		header += fmt.Sprintf("if %s; then %s=%s; else %s=%s; fi\n",
			upgradeTest, scripts.ArgVar, argUpgrade, scripts.ArgVar, argDefault)
	}
	return header
}

func assemblePreinst(tr *scripts.Translated) string {
	install := tr.Body(models.EventPreInstall)
	upgrade := tr.Body(models.EventPreUpgrade)
	if install == "" && upgrade == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(scriptHeader(tr, "1", "2", `[ "$1" = "upgrade" ]`))
	b.WriteString("case \"$1\" in\n")
	if install != "" {
		b.WriteString("install)\n" + install + "\n;;\n")
	}
	if upgrade != "" {
		b.WriteString("upgrade)\n" + upgrade + "\n;;\n")
	}
	b.WriteString("esac\nexit 0\n")
	return b.String()
}

func assemblePostinst(tr *scripts.Translated) string {
	install := tr.Body(models.EventPostInstall)
	upgrade := tr.Body(models.EventPostUpgrade)
	if install == "" && upgrade == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(scriptHeader(tr, "1", "2", `[ -n "$2" ]`))
	b.WriteString("case \"$1\" in\nconfigure)\n")
	switch {
	case install != "" && upgrade != "":
		b.WriteString("if [ -z \"$2\" ]; then\n" + install + "\nelse\n" + upgrade + "\nfi\n")
	case install != "":
		b.WriteString("if [ -z \"$2\" ]; then\n" + install + "\nfi\n")
	default:
		b.WriteString("if [ -n \"$2\" ]; then\n" + upgrade + "\nfi\n")
	}
	b.WriteString(";;\nesac\nexit 0\n")
	return b.String()
}

func assemblePrerm(tr *scripts.Translated) string {
	remove := tr.Body(models.EventPreRemove)
	upgrade := tr.Body(models.EventPreRemoveBeforeUpgrade)
	if remove == "" && upgrade == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(scriptHeader(tr, "0", "1", `[ "$1" = "upgrade" ]`))
	b.WriteString("case \"$1\" in\n")
	if remove != "" {
		b.WriteString("remove)\n" + remove + "\n;;\n")
	}
	if upgrade != "" {
		b.WriteString("upgrade)\n" + upgrade + "\n;;\n")
	}
	b.WriteString("esac\nexit 0\n")
	return b.String()
}

func assemblePostrm(tr *scripts.Translated) string {
	remove := tr.Body(models.EventPostRemove)
	upgrade := tr.Body(models.EventPostUpgradeComplete)
	if remove == "" && upgrade == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(scriptHeader(tr, "0", "1", `[ "$1" = "upgrade" ]`))
	b.WriteString("case \"$1\" in\n")
	if remove != "" {
		b.WriteString("remove|purge)\n" + remove + "\n;;\n")
	}
	if upgrade != "" {
		b.WriteString("upgrade)\n" + upgrade + "\n;;\n")
	}
	b.WriteString("esac\nexit 0\n")
	return b.String()
}

func newTarGz(buf *bytes.Buffer) (*gzip.Writer, *tar.Writer) {
	gz := gzip.NewWriter(buf)
	return gz, tar.NewWriter(gz)
}

func closeTarGz(gz *gzip.Writer, tw *tar.Writer) error {
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// copyFileInto streams one file into the tar writer, hashing it in
// the same pass
func copyFileInto(tw *tar.Writer, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(io.MultiWriter(tw, h), f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
