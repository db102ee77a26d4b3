package scripts

import (
	"regexp"
	"strings"

	"github.com/emufarm/pkgcross/internal/models"
)

// Debian maintainer scripts multiplex lifecycle cases through
// `case "$1" in ...`. Targets call a separate script or function per
// case, so translation unwraps the case statement: branches matching
// the wanted labels survive standalone, the rest (abort-*, failed-*,
// deconfigure, disappear, wildcard) disappear.

var dollarOneCaseRe = regexp.MustCompile(`^case\s+"?\$\{?1\}?"?\s+in\b`)
var anyCaseStartRe = regexp.MustCompile(`^case\s+.*\s+in\b`)

// unwrapCase extracts the wanted branches of the outer `case "$1"`
// statement. Code outside the case survives untouched, including any
// case statements switching on something other than "$1".
func unwrapCase(body string, keep map[string]bool) string {
	const (
		stOutside = iota
		stAwaitLabel
		stInBranch
	)

	var out []string
	state := stOutside
	keeping := false
	innerDepth := 0

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)

		switch state {
		case stOutside:
			if dollarOneCaseRe.MatchString(trimmed) {
				state = stAwaitLabel
				continue
			}
			out = append(out, line)

		case stAwaitLabel:
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			if trimmed == "esac" {
				state = stOutside
				continue
			}
			idx := strings.Index(trimmed, ")")
			if idx < 0 {
				// Malformed branch; skip the line rather than guess
				continue
			}
			keeping = branchWanted(trimmed[:idx], keep)
			state = stInBranch
			innerDepth = 0

			// Body may share the label's line, possibly with the
			// terminator too
			rest := strings.TrimSpace(trimmed[idx+1:])
			if rest == "" {
				continue
			}
			if i := strings.Index(rest, ";;"); i >= 0 {
				if inline := strings.TrimSpace(rest[:i]); keeping && inline != "" {
					out = append(out, inline)
				}
				state = stAwaitLabel
				continue
			}
			if keeping {
				out = append(out, rest)
			}

		case stInBranch:
			if anyCaseStartRe.MatchString(trimmed) {
				innerDepth++
			} else if trimmed == "esac" {
				if innerDepth > 0 {
					innerDepth--
				} else {
					// Final branch closed without its ;;
					state = stOutside
					continue
				}
			}

			if innerDepth == 0 {
				if trimmed == ";;" {
					state = stAwaitLabel
					continue
				}
				if strings.HasSuffix(trimmed, ";;") {
					if keeping {
						pre := strings.TrimSpace(strings.TrimSuffix(trimmed, ";;"))
						if pre != "" {
							out = append(out, indentOf(line)+pre)
						}
					}
					state = stAwaitLabel
					continue
				}
			}
			if keeping {
				out = append(out, line)
			}
		}
	}

	return strings.Join(out, "\n")
}

// branchWanted checks a branch's label list (install|configure style)
// against the wanted set. Wildcard and unknown labels never match.
func branchWanted(labelText string, keep map[string]bool) bool {
	for _, label := range strings.Split(labelText, "|") {
		label = strings.Trim(strings.TrimSpace(label), `"'`)
		if keep[label] {
			return true
		}
	}
	return false
}

// caseLabelsFor maps a universal event onto the deb case labels whose
// branches implement it. dpkg calls postinst with "configure" on fresh
// installs and upgrades alike, so that branch feeds both post-install
// and post-upgrade; the remaining scripts distinguish upgrades with an
// explicit "upgrade" label.
func caseLabelsFor(event models.Event) map[string]bool {
	switch event {
	case models.EventPreInstall, models.EventPostInstall:
		return map[string]bool{"install": true, "configure": true}
	case models.EventPostUpgrade:
		return map[string]bool{"configure": true, "upgrade": true}
	case models.EventPreUpgrade, models.EventPreRemoveBeforeUpgrade,
		models.EventPostUpgradeComplete:
		return map[string]bool{"upgrade": true}
	default:
		return map[string]bool{"remove": true, "purge": true}
	}
}
