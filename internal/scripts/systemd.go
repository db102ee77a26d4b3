package scripts

import (
	"path"
	"strings"

	"github.com/emufarm/pkgcross/internal/layout"
	"github.com/emufarm/pkgcross/internal/models"
)

var unitSuffixes = []string{".service", ".timer", ".socket", ".path"}

// DetectUnits returns the systemd unit files a tree installs,
// regardless of which unit directory convention the source distro
// used. Template and drop-in fragments are not units.
func DetectUnits(entries []layout.FileEntry) []string {
	var units []string
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		dir := path.Dir(e.Path)
		if !strings.HasSuffix(dir, "systemd/system") && !strings.HasSuffix(dir, "systemd/user") {
			continue
		}
		name := path.Base(e.Path)
		for _, suffix := range unitSuffixes {
			if strings.HasSuffix(name, suffix) {
				units = append(units, name)
				break
			}
		}
	}
	return units
}

// SystemdHooks returns the service-management snippet an emitter
// appends for one event. Every call tolerates systems without systemd
// (containers, chroots), so all lines are non-fatal.
func SystemdHooks(units []string, event models.Event) string {
	if len(units) == 0 {
		return ""
	}
	list := strings.Join(units, " ")

	var b strings.Builder
	switch event {
	case models.EventPostInstall:
		b.WriteString("systemctl daemon-reload >/dev/null 2>&1 || true\n")
		b.WriteString("systemctl preset " + list + " >/dev/null 2>&1 || true\n")
	case models.EventPreRemove:
		b.WriteString("systemctl disable --now " + list + " >/dev/null 2>&1 || true\n")
	case models.EventPostUpgrade:
		b.WriteString("systemctl daemon-reload >/dev/null 2>&1 || true\n")
		b.WriteString("systemctl try-restart " + list + " >/dev/null 2>&1 || true\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// HookEvents are the events service-management snippets attach to
func HookEvents() []models.Event {
	return []models.Event{models.EventPostInstall, models.EventPreRemove, models.EventPostUpgrade}
}

// AppendHooks merges the systemd snippets into a translated script
// set, creating events that had no script body of their own. Native
// (same-dialect) script sets keep their original service management
// untouched, so no hooks are added there.
func AppendHooks(tr *Translated, units []string) {
	if len(units) == 0 || tr.Native {
		return
	}
	for _, event := range HookEvents() {
		snippet := SystemdHooks(units, event)
		if snippet == "" {
			continue
		}
		if body, ok := tr.Events[event]; ok && strings.TrimSpace(body) != "" {
			tr.Events[event] = body + "\n" + snippet
		} else {
			tr.Events[event] = snippet
		}
	}
}
