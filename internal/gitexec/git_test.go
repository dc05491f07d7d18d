package gitexec_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ckpt-project/ckpt/internal/gitexec"
	"github.com/ckpt-project/ckpt/internal/gitexec/gitexectest"
	"github.com/ckpt-project/ckpt/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDiscovery(t *testing.T) {
	runner := &gitexectest.Runner{Respond: func(c gitexectest.Call) (string, error) {
		return ".git\n.git\n/work\n", nil
	}}

	g, err := gitexec.Open("/work", runner)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/work", ".git"), g.GitDir())
	assert.Equal(t, filepath.Join("/work", ".git"), g.CommonGitDir())
	assert.Equal(t, "/work", g.WorkTree())
	assert.Equal(t, filepath.Join("/work", ".git", "index"), g.IndexPath())

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "rev-parse --git-dir --git-common-dir --show-toplevel", calls[0].Cmd())
	assert.Equal(t, "/work", calls[0].Dir)
}

func TestOpenLinkedWorktree(t *testing.T) {
	runner := &gitexectest.Runner{Respond: func(c gitexectest.Call) (string, error) {
		return "/repo/.git/worktrees/wt\n/repo/.git\n/wt\n", nil
	}}

	g, err := gitexec.Open("/wt", runner)
	require.NoError(t, err)
	assert.Equal(t, "/repo/.git/worktrees/wt", g.GitDir())
	assert.Equal(t, "/repo/.git", g.CommonGitDir())
}

func TestOpenOutsideRepository(t *testing.T) {
	runner := &gitexectest.Runner{Respond: func(c gitexectest.Call) (string, error) {
		return "", errors.New("fatal: not a git repository")
	}}

	_, err := gitexec.Open("/nowhere", runner)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrNotInRepository))
}

func TestOpenWithEnvOverrides(t *testing.T) {
	runner := &gitexectest.Runner{}
	g := gitexec.OpenWith(gitexec.Options{
		Runner:    runner,
		GitDir:    "/src/.git",
		WorkTree:  "/mirror",
		IndexFile: "/src/.git/ckpt/mirror.index",
	})

	require.NoError(t, g.StageAll(context.Background(), ""))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/mirror", calls[0].Dir)
	assert.Equal(t, "/src/.git", calls[0].EnvValue("GIT_DIR"))
	assert.Equal(t, "/mirror", calls[0].EnvValue("GIT_WORK_TREE"))
	assert.Equal(t, "/src/.git/ckpt/mirror.index", calls[0].EnvValue("GIT_INDEX_FILE"))
	assert.Equal(t, "/src/.git/ckpt/mirror.index", g.IndexPath())
}

func TestIndexOverridePrecedence(t *testing.T) {
	runner := &gitexectest.Runner{}
	g := gitexec.OpenWith(gitexec.Options{
		Runner:    runner,
		GitDir:    "/src/.git",
		WorkTree:  "/mirror",
		IndexFile: "/standing.index",
	})

	_, err := g.WriteTree(context.Background(), "/ephemeral.index")
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/ephemeral.index", calls[0].EnvValue("GIT_INDEX_FILE"))
}

func openTest(t *testing.T, respond func(gitexectest.Call) (string, error)) (*gitexec.Git, *gitexectest.Runner) {
	t.Helper()
	opened := false
	runner := &gitexectest.Runner{Respond: func(c gitexectest.Call) (string, error) {
		if !opened {
			opened = true
			return "/repo/.git\n/repo/.git\n/repo\n", nil
		}
		return respond(c)
	}}
	g, err := gitexec.Open("/repo", runner)
	require.NoError(t, err)
	return g, runner
}

func TestHeadUnbornIsNotAnError(t *testing.T) {
	g, _ := openTest(t, func(c gitexectest.Call) (string, error) {
		return "", &gitexectest.ExitError{Code: 1, Stderr: "fatal: needed a single revision"}
	})

	head, err := g.Head(context.Background())
	require.NoError(t, err)
	assert.Empty(t, head)
}

func TestResolveRefMissing(t *testing.T) {
	g, _ := openTest(t, func(c gitexectest.Call) (string, error) {
		return "", &gitexectest.ExitError{Code: 1, Stderr: "fatal: needed a single revision"}
	})

	oid, err := g.ResolveRef(context.Background(), "refs/checkpoints/x1")
	require.NoError(t, err)
	assert.Empty(t, oid)
}

func TestHeadOtherFailuresSurface(t *testing.T) {
	g, _ := openTest(t, func(c gitexectest.Call) (string, error) {
		return "", &gitexectest.ExitError{Code: 128, Stderr: "fatal: not a git repository"}
	})

	_, err := g.Head(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrBackendFailure))
}

func TestResolveRefOtherFailuresSurface(t *testing.T) {
	g, _ := openTest(t, func(c gitexectest.Call) (string, error) {
		return "", errors.New("context deadline exceeded")
	})

	_, err := g.ResolveRef(context.Background(), "refs/checkpoints/x1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrBackendFailure))
}

func TestListRefsParsing(t *testing.T) {
	g, runner := openTest(t, func(c gitexectest.Call) (string, error) {
		return "refs/checkpoints/a 1111111111111111111111111111111111111111\n" +
			"refs/checkpoints/b 2222222222222222222222222222222222222222\n", nil
	})

	refs, err := g.ListRefs(context.Background(), "refs/checkpoints")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "refs/checkpoints/a", refs[0].Name)
	assert.Equal(t, "2222222222222222222222222222222222222222", refs[1].OID)

	cmds := runner.Commands()
	assert.Equal(t, "for-each-ref --format=%(refname) %(objectname) refs/checkpoints", cmds[len(cmds)-1])
}

func TestUpdateRefCompareAndSwap(t *testing.T) {
	g, runner := openTest(t, func(c gitexectest.Call) (string, error) {
		return "", nil
	})

	newOID := "1111111111111111111111111111111111111111"
	require.NoError(t, g.UpdateRef(context.Background(), "refs/checkpoints/x1", newOID, gitexec.ZeroOID))

	cmds := runner.Commands()
	assert.Equal(t, "update-ref refs/checkpoints/x1 "+newOID+" "+gitexec.ZeroOID, cmds[len(cmds)-1])
}

func TestUpdateRefRejection(t *testing.T) {
	g, _ := openTest(t, func(c gitexectest.Call) (string, error) {
		return "", errors.New("fatal: update-ref: cannot lock ref")
	})

	err := g.UpdateRef(context.Background(), "refs/checkpoints/x1",
		"1111111111111111111111111111111111111111", gitexec.ZeroOID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrBackendFailure))
}

func TestBackendFailureWraps(t *testing.T) {
	g, _ := openTest(t, func(c gitexectest.Call) (string, error) {
		return "", errors.New("boom")
	})

	ctx := context.Background()
	assert.True(t, errors.Is(g.StageAll(ctx, ""), errclass.ErrBackendFailure))
	assert.True(t, errors.Is(g.ReadTree(ctx, "t"), errclass.ErrBackendFailure))
	assert.True(t, errors.Is(g.CheckoutIndex(ctx), errclass.ErrBackendFailure))
	assert.True(t, errors.Is(g.HardReset(ctx, "c"), errclass.ErrBackendFailure))
	assert.True(t, errors.Is(g.CleanUntracked(ctx), errclass.ErrBackendFailure))
}
