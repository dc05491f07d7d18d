package gitexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner executes a single git invocation. Production code uses ExecRunner;
// tests substitute scripted fakes so the plumbing sequence can be verified
// without a git binary.
type Runner interface {
	Run(ctx context.Context, dir string, env []string, args ...string) ([]byte, error)
}

// ExecRunner is the default Runner backed by os/exec.
type ExecRunner struct {
	// Binary is the git executable to invoke. Empty means "git" from PATH.
	Binary string
}

// Run implements Runner. env entries are appended to the inherited
// environment; stderr is captured and folded into the returned error.
func (r *ExecRunner) Run(ctx context.Context, dir string, env []string, args ...string) ([]byte, error) {
	bin := r.Binary
	if bin == "" {
		bin = "git"
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("git %s: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}
