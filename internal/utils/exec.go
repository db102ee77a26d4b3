package utils

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// RunCommand executes an external tool and returns its combined
// output. LANG=C keeps tool output parseable regardless of the host
// locale. On failure the output is folded into the error so callers
// get the tool's own diagnostics.
func RunCommand(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "LANG=C")

	logrus.Debugf("Running %s %v", name, args)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s failed: %s: %w", name, string(output), err)
	}
	return output, nil
}
