// Package scripts rewrites lifecycle script bodies between the three
// maintainer-script dialects. Translation is line-oriented pattern
// matching over a fixed vocabulary of cross-distro idioms; anything
// unrecognized passes through untouched.
package scripts

import (
	"regexp"
	"strings"

	"github.com/emufarm/pkgcross/internal/models"
)

// ArgVar is the shell variable rpm-origin bodies reference after
// translation for a deb target. The deb emitter prepends a preamble
// computing it from the maintainer-script arguments.
const ArgVar = "rpm_arg"

// Options steer one Translate call
type Options struct {
	// Event selects which lifecycle case to extract from multiplexed
	// deb bodies
	Event models.Event

	// NumericArg replaces rpm's $1 with a fixed literal, used when
	// the target expresses install and upgrade as separate scripts
	NumericArg string

	// UseArgVar replaces rpm's $1 with a reference to ArgVar instead
	// of a literal, for targets that multiplex like deb does
	UseArgVar bool
}

var argRefRe = regexp.MustCompile(`\$\{1\}|\$1`)

// Translate rewrites one script body from the source dialect into the
// target dialect. Same-dialect calls only strip the shebang and any
// set -e line; the emitter supplies its own wrapper.
func Translate(body string, src, dst models.Format, opts Options) string {
	if body == "" {
		return ""
	}

	body = stripWrapper(body)
	if src == dst {
		return body
	}

	if src == models.FormatDeb {
		body = unwrapCase(body, caseLabelsFor(opts.Event))
	}

	if src == models.FormatRpm {
		body = substituteArg(body, opts)
	}

	env := ruleEnv{Source: src, Target: dst}
	var out []string
	for _, line := range strings.Split(body, "\n") {
		rewritten, keepLine := applyLineRules(line, env)
		if keepLine {
			out = append(out, rewritten)
		}
	}

	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}

// stripWrapper drops the shebang and set -e lines every dialect's
// emitter re-adds in its own way
func stripWrapper(body string) string {
	var out []string
	for i, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if i == 0 && strings.HasPrefix(trimmed, "#!") {
			continue
		}
		if fields := strings.Fields(trimmed); len(fields) >= 2 &&
			fields[0] == "set" && strings.HasPrefix(fields[1], "-e") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func substituteArg(body string, opts Options) string {
	repl := ""
	switch {
	case opts.UseArgVar:
		repl = "${" + ArgVar + "}"
	case opts.NumericArg != "":
		repl = opts.NumericArg
	default:
		return body
	}
	return argRefRe.ReplaceAllStringFunc(body, func(m string) string {
		return repl
	})
}

// rpmArgFor is the numeric value rpm passes in $1 for each universal
// event
func rpmArgFor(e models.Event) string {
	switch e {
	case models.EventPreInstall, models.EventPostInstall:
		return "1"
	case models.EventPreUpgrade, models.EventPostUpgrade:
		return "2"
	case models.EventPreRemove, models.EventPostRemove:
		return "0"
	default: // pre-remove-before-upgrade, post-upgrade-complete
		return "1"
	}
}

// primaryFor maps a universal event onto the event deb and rpm
// extractors store the multiplexed body under
func primaryFor(e models.Event) models.Event {
	switch e {
	case models.EventPreInstall, models.EventPreUpgrade:
		return models.EventPreInstall
	case models.EventPostInstall, models.EventPostUpgrade:
		return models.EventPostInstall
	case models.EventPreRemove, models.EventPreRemoveBeforeUpgrade:
		return models.EventPreRemove
	default:
		return models.EventPostRemove
	}
}

// Translated is a package's full script surface rewritten for one
// target format
type Translated struct {
	// Events holds the translated body per universal event; absent
	// events have no entry
	Events map[models.Event]string

	// Native is set when source and target dialect coincide: bodies
	// keep their own multiplexing and emit as-is
	Native bool

	// NeedsArgPreamble is set when bodies reference ArgVar and the
	// deb emitter must prepend the computation of it
	NeedsArgPreamble bool
}

// Body returns the translated body for an event, empty when absent
func (tr *Translated) Body(e models.Event) string {
	if tr == nil || tr.Events == nil {
		return ""
	}
	return tr.Events[e]
}

// Empty reports whether no event carries any script text
func (tr *Translated) Empty() bool {
	if tr == nil {
		return true
	}
	for _, body := range tr.Events {
		if strings.TrimSpace(body) != "" {
			return false
		}
	}
	return true
}

// ForTarget translates every lifecycle script of the intermediate for
// the target format. The emitter assembles the returned per-event
// bodies into its native script surface.
func ForTarget(im *models.Intermediate, target models.Format) *Translated {
	tr := &Translated{Events: make(map[models.Event]string)}

	if !im.HasScripts() {
		return tr
	}

	src := im.SourceFormat
	if src == target {
		tr.Native = true
		for event, body := range im.Scripts {
			if stripped := strings.TrimRight(stripWrapper(body), "\n"); strings.TrimSpace(stripped) != "" {
				tr.Events[event] = stripped
			}
		}
		return tr
	}

	for _, event := range models.Events() {
		body := sourceBodyFor(im, src, event)
		if strings.TrimSpace(body) == "" {
			continue
		}

		opts := Options{Event: event}
		if src == models.FormatRpm {
			if target == models.FormatDeb {
				opts.UseArgVar = true
			} else {
				opts.NumericArg = rpmArgFor(event)
			}
		}

		translated := Translate(body, src, target, opts)
		if strings.TrimSpace(translated) == "" {
			continue
		}
		if opts.UseArgVar && argVarUsed(translated) {
			tr.NeedsArgPreamble = true
		}
		tr.Events[event] = translated
	}

	// pacman has no slot for the old package's upgrade scripts; they
	// fold into the new package's upgrade functions
	if target == models.FormatPacman {
		foldInto(tr.Events, models.EventPreUpgrade, models.EventPreRemoveBeforeUpgrade)
		foldInto(tr.Events, models.EventPostUpgrade, models.EventPostUpgradeComplete)
	}

	return tr
}

// sourceBodyFor finds the stored script text that carries the given
// universal event in the source dialect
func sourceBodyFor(im *models.Intermediate, src models.Format, event models.Event) string {
	if src == models.FormatPacman {
		// pacman functions are stored per event already and have no
		// old-package upgrade slots
		switch event {
		case models.EventPreRemoveBeforeUpgrade, models.EventPostUpgradeComplete:
			return ""
		}
		return im.Script(event)
	}
	return im.Script(primaryFor(event))
}

func foldInto(events map[models.Event]string, dst, src models.Event) {
	extra, ok := events[src]
	if !ok {
		return
	}
	delete(events, src)
	if strings.TrimSpace(extra) == "" {
		return
	}
	if base, ok := events[dst]; ok && strings.TrimSpace(base) != "" {
		events[dst] = base + "\n" + extra
		return
	}
	events[dst] = extra
}

func argVarUsed(body string) bool {
	return strings.Contains(body, "${"+ArgVar+"}")
}
