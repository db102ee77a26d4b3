package scripts

import (
	"strings"

	"github.com/google/shlex"
)

// rewriteSystemUser turns a Debian adduser/addgroup --system call
// into the useradd/groupadd equivalent, guarded with getent so the
// rewritten script stays idempotent across reinstalls.
func rewriteSystemUser(trimmed string) (string, bool) {
	words, err := shlex.Split(trimmed)
	if err != nil || len(words) == 0 {
		return "", false
	}

	cmd := words[0]
	args := words[1:]

	var (
		name       string
		home       string
		shell      string
		ingroup    string
		noHome     bool
		ownGroup   bool
		systemFlag bool
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--system":
			systemFlag = true
		case "--group":
			ownGroup = true
		case "--no-create-home":
			noHome = true
		case "--home":
			if i+1 < len(args) {
				i++
				home = args[i]
			}
		case "--shell":
			if i+1 < len(args) {
				i++
				shell = args[i]
			}
		case "--ingroup":
			if i+1 < len(args) {
				i++
				ingroup = args[i]
			}
		case "--quiet", "--disabled-password", "--disabled-login":
			// cosmetic on Debian, no useradd counterpart needed
		case "--gecos", "--comment":
			if i+1 < len(args) {
				i++
			}
		default:
			if !strings.HasPrefix(args[i], "-") {
				name = args[i]
			}
		}
	}

	if !systemFlag || name == "" {
		return "", false
	}

	if cmd == "addgroup" {
		return "getent group " + name + " >/dev/null || groupadd -r " + name, true
	}

	var parts []string
	if ownGroup {
		parts = append(parts, "getent group "+name+" >/dev/null || groupadd -r "+name)
	}

	useradd := []string{"useradd", "-r"}
	if ownGroup {
		useradd = append(useradd, "-g", name)
	} else if ingroup != "" {
		useradd = append(useradd, "-g", ingroup)
	}
	if home != "" {
		useradd = append(useradd, "-d", home)
	}
	if noHome {
		useradd = append(useradd, "-M")
	}
	if shell != "" {
		useradd = append(useradd, "-s", shell)
	}
	useradd = append(useradd, name)

	parts = append(parts, "getent passwd "+name+" >/dev/null || "+strings.Join(useradd, " "))
	return strings.Join(parts, "\n"), true
}
