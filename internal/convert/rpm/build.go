package rpm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/emufarm/pkgcross/internal/depmap"
	"github.com/emufarm/pkgcross/internal/layout"
	"github.com/emufarm/pkgcross/internal/models"
	"github.com/emufarm/pkgcross/internal/scripts"
	"github.com/emufarm/pkgcross/internal/utils"
)

// Builder emits .rpm packages through rpmbuild
type Builder struct{}

// NewBuilder creates an rpm builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Build stages the file tree, generates a spec and runs rpmbuild -bb.
// The produced rpm is moved into outputDir.
func (b *Builder) Build(ctx context.Context, im *models.Intermediate, outputDir string, deps *depmap.Map) (string, error) {
	if err := im.Validate(); err != nil {
		return "", err
	}

	tree, err := layout.Walk(im.Root())
	if err != nil {
		return "", models.NewError(models.ErrBuildFailed, im.Name, fmt.Errorf("walking file tree: %w", err))
	}

	tr := scripts.ForTarget(im, models.FormatRpm)
	scripts.AppendHooks(tr, scripts.DetectUnits(tree))

	topDir, err := os.MkdirTemp("", "pkgcross-rpmbuild-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(topDir)

	// rpmbuild's brp scripts may rewrite the buildroot, so it gets a
	// copy rather than the caller's staged tree
	buildRoot := filepath.Join(topDir, "BUILDROOT")
	if err := copyTree(im.Root(), buildRoot, tree); err != nil {
		return "", models.NewError(models.ErrBuildFailed, im.Name, fmt.Errorf("staging buildroot: %w", err))
	}

	specPath := filepath.Join(topDir, im.Name+".spec")
	if err := os.WriteFile(specPath, []byte(specFile(im, deps, tr, tree)), 0644); err != nil {
		return "", err
	}

	args := []string{
		"-bb",
		"--define", "_topdir " + topDir,
		"--buildroot", buildRoot,
	}
	if im.Arch != models.ArchAny {
		args = append(args, "--target", im.Arch.RpmName())
	}
	args = append(args, specPath)

	if _, err := utils.RunCommand(ctx, "", "rpmbuild", args...); err != nil {
		return "", models.NewError(models.ErrBuildFailed, im.Name, err)
	}

	produced, err := filepath.Glob(filepath.Join(topDir, "RPMS", "*", "*.rpm"))
	if err != nil || len(produced) == 0 {
		return "", models.Errorf(models.ErrBuildFailed, im.Name, "rpmbuild produced no package")
	}

	outPath := filepath.Join(outputDir, filepath.Base(produced[0]))
	if err := utils.MoveFile(produced[0], outPath); err != nil {
		return "", models.NewError(models.ErrBuildFailed, im.Name, err)
	}
	return outPath, nil
}

// specFile renders the rpm spec. Automatic dependency generation and
// post-install payload rewriting are disabled so the converted tree
// and its declared relations pass through untouched.
func specFile(im *models.Intermediate, deps *depmap.Map, tr *scripts.Translated, tree []layout.FileEntry) string {
	var b strings.Builder

	b.WriteString("%global __os_install_post %{nil}\n")
	b.WriteString("%global debug_package %{nil}\n")
	b.WriteString("%global _build_id_links none\n\n")

	b.WriteString(fmt.Sprintf("Name: %s\n", im.Name))
	b.WriteString(fmt.Sprintf("Version: %s\n", models.RpmVersion(im.Version)))
	b.WriteString("Release: 1\n")
	b.WriteString(fmt.Sprintf("Summary: %s\n", summaryLine(im.Description)))
	b.WriteString("License: unknown\n")
	if im.Maintainer != "" {
		b.WriteString(fmt.Sprintf("Packager: %s\n", im.Maintainer))
	}
	if im.Arch == models.ArchAny {
		b.WriteString("BuildArch: noarch\n")
	}
	b.WriteString("AutoReqProv: no\n")

	writeRelations(&b, "Requires", deps.ResolveAll(im.Depends, models.FormatRpm))
	writeRelations(&b, "Provides", deps.ResolveAll(im.Provides, models.FormatRpm))
	writeRelations(&b, "Conflicts", deps.ResolveAll(im.Conflicts, models.FormatRpm))
	writeRelations(&b, "Obsoletes", deps.ResolveAll(im.Replaces, models.FormatRpm))

	b.WriteString("\n%description\n")
	b.WriteString(escapeMacros(descriptionBody(im.Description)) + "\n")

	writeScriptlet(&b, "%pre", tr, models.EventPreInstall, models.EventPreUpgrade, installGuards)
	writeScriptlet(&b, "%post", tr, models.EventPostInstall, models.EventPostUpgrade, installGuards)
	writeScriptlet(&b, "%preun", tr, models.EventPreRemove, models.EventPreRemoveBeforeUpgrade, removeGuards)
	writeScriptlet(&b, "%postun", tr, models.EventPostRemove, models.EventPostUpgradeComplete, removeGuards)

	b.WriteString("\n%files\n")
	b.WriteString("%defattr(-,root,root,-)\n")
	conffiles := make(map[string]bool, len(im.Conffiles))
	for _, path := range im.Conffiles {
		conffiles[path] = true
	}
	for _, entry := range tree {
		abs := "/" + entry.Path
		switch {
		case entry.IsDir:
			b.WriteString(fmt.Sprintf("%%dir %q\n", abs))
		case conffiles[abs]:
			b.WriteString(fmt.Sprintf("%%config(noreplace) %q\n", abs))
		default:
			b.WriteString(fmt.Sprintf("%q\n", abs))
		}
	}

	return b.String()
}

// guards are the numeric $1 tests telling first install and upgrade
// apart (install scriptlets) or removal and upgrade apart (removal
// scriptlets)
type guards struct {
	first, upgrade string
}

var (
	installGuards = guards{first: `[ "$1" = 1 ]`, upgrade: `[ "$1" -ge 2 ]`}
	removeGuards  = guards{first: `[ "$1" = 0 ]`, upgrade: `[ "$1" -ge 1 ]`}
)

// writeScriptlet emits one rpm scriptlet section. Native bodies carry
// their own $1 handling and go out verbatim; translated bodies get
// wrapped in the guard matching their event.
func writeScriptlet(b *strings.Builder, section string, tr *scripts.Translated, first, upgrade models.Event, g guards) {
	if tr.Native {
		if body := tr.Body(first); body != "" {
			b.WriteString("\n" + section + "\n" + body + "\n")
		}
		return
	}

	firstBody := tr.Body(first)
	upgradeBody := tr.Body(upgrade)
	if firstBody == "" && upgradeBody == "" {
		return
	}

	b.WriteString("\n" + section + "\n")
	if firstBody != "" {
		b.WriteString("if " + g.first + " ; then\n" + firstBody + "\nfi\n")
	}
	if upgradeBody != "" {
		b.WriteString("if " + g.upgrade + " ; then\n" + upgradeBody + "\nfi\n")
	}
}

func writeRelations(b *strings.Builder, field string, names []string) {
	for _, name := range names {
		b.WriteString(fmt.Sprintf("%s: %s\n", field, name))
	}
}

func summaryLine(desc string) string {
	line := desc
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "converted package"
	}
	return escapeMacros(line)
}

func descriptionBody(desc string) string {
	if i := strings.IndexByte(desc, '\n'); i >= 0 {
		if body := strings.TrimSpace(desc[i+1:]); body != "" {
			return body
		}
	}
	return summaryLine(desc)
}

// escapeMacros keeps prose fields from being parsed as rpm macros or
// section markers
func escapeMacros(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

// copyTree stages the walked entries under dest, preserving modes
func copyTree(root, dest string, tree []layout.FileEntry) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	for _, entry := range tree {
		src := filepath.Join(root, filepath.FromSlash(entry.Path))
		dst := filepath.Join(dest, filepath.FromSlash(entry.Path))
		switch {
		case entry.IsDir:
			if err := os.MkdirAll(dst, entry.Mode.Perm()); err != nil {
				return err
			}
		case entry.Linkname != "":
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return err
			}
			if err := os.Symlink(entry.Linkname, dst); err != nil {
				return err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return err
			}
			if err := utils.CopyFile(src, dst); err != nil {
				return err
			}
		}
	}
	return nil
}
