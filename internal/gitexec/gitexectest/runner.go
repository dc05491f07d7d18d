// Package gitexectest provides a scripted Runner for tests, so plumbing
// sequences can be asserted without a git binary on PATH.
package gitexectest

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ExitError scripts a git process exit status. gitexec inspects the status
// to tell "ref does not resolve" (exit 1) apart from genuine failures.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("exit status %d: %s", e.Code, e.Stderr)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode returns the scripted exit status.
func (e *ExitError) ExitCode() int { return e.Code }

// Call records one git invocation.
type Call struct {
	Dir  string
	Env  []string
	Args []string
}

// Cmd returns the invocation's arguments joined with spaces.
func (c Call) Cmd() string {
	return strings.Join(c.Args, " ")
}

// EnvValue returns the value of an environment override, or "".
func (c Call) EnvValue(key string) string {
	prefix := key + "="
	for _, e := range c.Env {
		if strings.HasPrefix(e, prefix) {
			return strings.TrimPrefix(e, prefix)
		}
	}
	return ""
}

// Runner is a scripted gitexec.Runner. Respond maps each call to its
// output; every call is recorded for later assertions.
type Runner struct {
	mu      sync.Mutex
	calls   []Call
	Respond func(call Call) (string, error)
}

// Run implements gitexec.Runner.
func (r *Runner) Run(_ context.Context, dir string, env []string, args ...string) ([]byte, error) {
	call := Call{Dir: dir, Env: append([]string(nil), env...), Args: append([]string(nil), args...)}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()

	if r.Respond == nil {
		return nil, nil
	}
	out, err := r.Respond(call)
	return []byte(out), err
}

// Calls returns a copy of the recorded invocations.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Commands returns each recorded invocation as a joined argument string.
func (r *Runner) Commands() []string {
	calls := r.Calls()
	cmds := make([]string, len(calls))
	for i, c := range calls {
		cmds[i] = c.Cmd()
	}
	return cmds
}
