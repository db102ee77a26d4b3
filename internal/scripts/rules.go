package scripts

import (
	"regexp"
	"strings"

	"github.com/emufarm/pkgcross/internal/models"
)

// ruleEnv carries the translation direction into the rule table
type ruleEnv struct {
	Source models.Format
	Target models.Format
}

// lineRule rewrites one recognized shell idiom. Rules match whole
// lines; the first matching rule decides the line's fate.
type lineRule struct {
	name string
	// sources restricts the rule to script dialects it understands;
	// empty means any source
	sources []models.Format
	match   func(trimmed string) bool
	// rewrite returns the replacement line and whether to keep it
	rewrite func(line, trimmed string, env ruleEnv) (string, bool)
}

var (
	initramfsRe = regexp.MustCompile(`\b(update-initramfs|dracut|mkinitcpio)\b`)
	grubRe      = regexp.MustCompile(`\b(update-grub2?|grub2?-mkconfig)\b`)
	compareRe   = regexp.MustCompile(`dpkg\s+--compare-versions\s*[^;&|]*`)

	// every distro's canonical shell-denial path; the /usr/sbin
	// alternative goes first so it is consumed whole
	nologinRe = regexp.MustCompile(`(?:/usr/sbin|/usr/bin|/sbin)/nologin`)
)

func nologinFor(target models.Format) string {
	switch target {
	case models.FormatDeb:
		return "/usr/sbin/nologin"
	case models.FormatRpm:
		return "/sbin/nologin"
	default:
		return "/usr/bin/nologin"
	}
}

func initramfsFor(target models.Format) string {
	switch target {
	case models.FormatDeb:
		return "update-initramfs -u || true"
	case models.FormatRpm:
		return "dracut -f --regenerate-all || true"
	default:
		return "mkinitcpio -P || true"
	}
}

func grubFor(target models.Format) string {
	switch target {
	case models.FormatDeb:
		return "update-grub || true"
	case models.FormatRpm:
		return "grub2-mkconfig -o /boot/grub2/grub.cfg || true"
	default:
		return "grub-mkconfig -o /boot/grub/grub.cfg || true"
	}
}

// debHelpers are Debian-only machinery with no analogue elsewhere;
// their invocations vanish in translation
var debHelpers = map[string]bool{
	"dpkg-maintscript-helper": true,
	"dpkg-trigger":            true,
	"deb-systemd-helper":      true,
	"deb-systemd-invoke":      true,
	"update-rc.d":             true,
	"invoke-rc.d":             true,
}

func firstWord(trimmed string) string {
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func indentOf(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// lineRules is the fixed vocabulary of cross-distro idioms, in match
// priority order. Everything not matched passes through untouched.
var lineRules = []lineRule{
	{
		name: "ldconfig",
		match: func(trimmed string) bool {
			return firstWord(trimmed) == "ldconfig"
		},
		rewrite: func(line, trimmed string, env ruleEnv) (string, bool) {
			// pacman regenerates the linker cache through its own
			// transaction hooks
			if env.Target == models.FormatPacman {
				return "", false
			}
			return line, true
		},
	},
	{
		name: "initramfs",
		match: func(trimmed string) bool {
			return initramfsRe.MatchString(trimmed)
		},
		rewrite: func(line, trimmed string, env ruleEnv) (string, bool) {
			return indentOf(line) + initramfsFor(env.Target), true
		},
	},
	{
		name: "grub",
		match: func(trimmed string) bool {
			return grubRe.MatchString(trimmed)
		},
		rewrite: func(line, trimmed string, env ruleEnv) (string, bool) {
			return indentOf(line) + grubFor(env.Target), true
		},
	},
	{
		name: "alternatives",
		match: func(trimmed string) bool {
			w := firstWord(trimmed)
			return w == "update-alternatives" || w == "alternatives"
		},
		rewrite: func(line, trimmed string, env ruleEnv) (string, bool) {
			switch env.Target {
			case models.FormatDeb:
				if firstWord(trimmed) == "alternatives" {
					return indentOf(line) + "update-" + trimmed, true
				}
				return line, true
			case models.FormatRpm:
				if firstWord(trimmed) == "update-alternatives" {
					return indentOf(line) + strings.TrimPrefix(trimmed, "update-"), true
				}
				return line, true
			default:
				// no alternatives system on pacman distros
				return "", false
			}
		},
	},
	{
		name:    "deb-helpers",
		sources: []models.Format{models.FormatDeb},
		match: func(trimmed string) bool {
			w := firstWord(trimmed)
			if debHelpers[w] || strings.HasPrefix(w, "db_") {
				return true
			}
			// sourcing the debconf protocol module enables the db_*
			// calls being dropped alongside
			return strings.Contains(trimmed, "/usr/share/debconf/confmodule")
		},
		rewrite: func(line, trimmed string, env ruleEnv) (string, bool) {
			return "", false
		},
	},
	{
		name:    "compare-versions",
		sources: []models.Format{models.FormatDeb},
		match: func(trimmed string) bool {
			return compareRe.MatchString(trimmed)
		},
		rewrite: func(line, trimmed string, env ruleEnv) (string, bool) {
			// Constraint semantics are not reproduced; the guard goes
			// permanently false so the gated branch never runs
			return compareRe.ReplaceAllString(line, "false "), true
		},
	},
	{
		name:    "adduser",
		sources: []models.Format{models.FormatDeb},
		match: func(trimmed string) bool {
			w := firstWord(trimmed)
			return (w == "adduser" || w == "addgroup") && strings.Contains(trimmed, "--system")
		},
		rewrite: func(line, trimmed string, env ruleEnv) (string, bool) {
			rewritten, ok := rewriteSystemUser(trimmed)
			if !ok {
				return line, true
			}
			return indentOf(line) + rewritten, true
		},
	},
}

// applyLineRules runs one line through the nologin substitution and
// the rule table
func applyLineRules(line string, env ruleEnv) (string, bool) {
	if strings.Contains(line, "nologin") {
		line = nologinRe.ReplaceAllString(line, nologinFor(env.Target))
	}

	trimmed := strings.TrimSpace(line)
	for _, rule := range lineRules {
		if len(rule.sources) > 0 && !formatIn(env.Source, rule.sources) {
			continue
		}
		if rule.match(trimmed) {
			return rule.rewrite(line, trimmed, env)
		}
	}
	return line, true
}

func formatIn(f models.Format, set []models.Format) bool {
	for _, s := range set {
		if s == f {
			return true
		}
	}
	return false
}
