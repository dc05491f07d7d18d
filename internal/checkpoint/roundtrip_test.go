package checkpoint_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ckpt-project/ckpt/internal/checkpoint"
	"github.com/ckpt-project/ckpt/internal/gitexec"
	"github.com/ckpt-project/ckpt/pkg/logging"
	"github.com/ckpt-project/ckpt/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise the full save/restore recipe against a real git
// binary and are skipped when none is on PATH.

func requireGit(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping git round-trip test in short mode")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=ckpt", "GIT_AUTHOR_EMAIL=ckpt@example.com",
		"GIT_COMMITTER_NAME=ckpt", "GIT_COMMITTER_EMAIL=ckpt@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

// initWorkTree creates a repository with one commit tracking a.txt and a
// .gitignore excluding *.log, and returns a manager driving it.
func initWorkTree(t *testing.T) (string, *checkpoint.Manager) {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init")
	writeFile(t, dir, ".gitignore", "*.log\n")
	writeFile(t, dir, "a.txt", "v1\n")
	runGit(t, dir, "add", "-A")
	runGit(t, dir, "commit", "-m", "base")

	g, err := gitexec.Open(dir, nil)
	require.NoError(t, err)
	return dir, checkpoint.NewManager(g, logging.NewLogger(logging.LevelError))
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	requireGit(t)
	dir, m := initWorkTree(t)
	ctx := context.Background()

	// Dirty every kind of state: an unstaged edit, a staged addition, an
	// untracked file, and an ignored file.
	writeFile(t, dir, "a.txt", "v2\n")
	writeFile(t, dir, "staged.txt", "staged\n")
	runGit(t, dir, "add", "staged.txt")
	writeFile(t, dir, "loose.txt", "loose\n")
	writeFile(t, dir, "debug.log", "ignored\n")

	head := runGit(t, dir, "rev-parse", "HEAD")
	statusBefore := runGit(t, dir, "status", "--porcelain")

	res, err := m.Save(ctx, checkpoint.SaveOptions{ID: "snap"})
	require.NoError(t, err)
	require.False(t, res.Skipped)

	// Capture must not disturb HEAD, the index, or the work tree.
	assert.Equal(t, head, runGit(t, dir, "rev-parse", "HEAD"))
	assert.Equal(t, statusBefore, runGit(t, dir, "status", "--porcelain"))

	// Wreck everything the checkpoint covers.
	writeFile(t, dir, "a.txt", "wrecked\n")
	require.NoError(t, os.Remove(filepath.Join(dir, "loose.txt")))
	runGit(t, dir, "reset")
	writeFile(t, dir, "junk.txt", "junk\n")

	cp, err := m.Restore(ctx, "snap")
	require.NoError(t, err)
	assert.Equal(t, head, cp.Head)

	// File contents come back byte for byte; leftovers are cleaned.
	assert.Equal(t, "v2\n", readFile(t, dir, "a.txt"))
	assert.Equal(t, "loose\n", readFile(t, dir, "loose.txt"))
	assert.Equal(t, "staged\n", readFile(t, dir, "staged.txt"))
	_, err = os.Stat(filepath.Join(dir, "junk.txt"))
	assert.True(t, os.IsNotExist(err), "files created after the checkpoint must be cleaned")

	// Ignored paths are outside the checkpoint and survive untouched.
	assert.Equal(t, "ignored\n", readFile(t, dir, "debug.log"))

	// HEAD and the staging area match the captured state exactly.
	assert.Equal(t, head, runGit(t, dir, "rev-parse", "HEAD"))
	assert.Equal(t, statusBefore, runGit(t, dir, "status", "--porcelain"))
	assert.Contains(t, runGit(t, dir, "diff", "--cached", "--name-only"), "staged.txt")

	// Nothing differs from the checkpoint anymore.
	out, err := m.Diff(ctx, "snap", model.CurrentToken, nil)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))
}

func TestSaveIsRepeatableAcrossRestores(t *testing.T) {
	requireGit(t)
	dir, m := initWorkTree(t)
	ctx := context.Background()

	writeFile(t, dir, "a.txt", "v2\n")
	_, err := m.Save(ctx, checkpoint.SaveOptions{ID: "first"})
	require.NoError(t, err)

	writeFile(t, dir, "a.txt", "v3\n")
	_, err = m.Save(ctx, checkpoint.SaveOptions{ID: "second"})
	require.NoError(t, err)

	_, err = m.Restore(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, "v2\n", readFile(t, dir, "a.txt"))

	_, err = m.Restore(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, "v3\n", readFile(t, dir, "a.txt"))
}
