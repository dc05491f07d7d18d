// Package gitexec is the git-CLI implementation of the version backend.
//
// It wraps git plumbing commands behind a small surface: tree/commit object
// creation, namespaced ref updates with compare-and-swap, and work-tree
// materialization. The capture path never names the real index: callers
// pass a private index file and git sees it only through GIT_INDEX_FILE,
// which is what keeps checkpoint capture non-disruptive.
package gitexec

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/ckpt-project/ckpt/pkg/errclass"
)

// ZeroOID is the all-zeros object id git uses to mean "ref must not exist"
// in compare-and-swap ref updates.
const ZeroOID = "0000000000000000000000000000000000000000"

// Git drives one repository (a git dir plus a work tree).
type Git struct {
	runner    Runner
	workTree  string
	gitDir    string
	commonDir string
	indexFile string // optional standing override for every index-touching command
	explicit  bool   // wired via Options rather than discovered
}

// Options wires a Git instance explicitly instead of discovering it from a
// path. The mirror daemon uses this to drive a target work tree off the
// source repository's object store with a private index file.
type Options struct {
	Runner    Runner
	GitDir    string
	WorkTree  string
	IndexFile string
}

// RefEntry is one ref in a namespace listing.
type RefEntry struct {
	Name string
	OID  string
}

// Open discovers the repository containing path, in the manner of
// `git rev-parse --git-dir --git-common-dir --show-toplevel`.
func Open(path string, runner Runner) (*Git, error) {
	if runner == nil {
		runner = &ExecRunner{}
	}
	g := &Git{runner: runner}

	out, err := runner.Run(context.Background(), path, nil,
		"rev-parse", "--git-dir", "--git-common-dir", "--show-toplevel")
	if err != nil {
		return nil, errclass.ErrNotInRepository.WithMessagef("%s is not inside a git work tree", path)
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 3 {
		return nil, errclass.ErrBackendFailure.WithMessagef("unexpected rev-parse output: %q", string(out))
	}

	gitDir := strings.TrimSpace(lines[0])
	commonDir := strings.TrimSpace(lines[1])
	workTree := strings.TrimSpace(lines[2])

	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(path, gitDir)
	}
	if !filepath.IsAbs(commonDir) {
		commonDir = filepath.Join(path, commonDir)
	}

	g.gitDir = gitDir
	g.commonDir = commonDir
	g.workTree = workTree
	return g, nil
}

// OpenWith wires a Git instance from explicit paths, skipping discovery.
func OpenWith(opts Options) *Git {
	runner := opts.Runner
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &Git{
		runner:    runner,
		gitDir:    opts.GitDir,
		commonDir: opts.GitDir,
		workTree:  opts.WorkTree,
		indexFile: opts.IndexFile,
		explicit:  true,
	}
}

// GitDir returns the repository's git dir.
func (g *Git) GitDir() string { return g.gitDir }

// CommonGitDir returns the shared git dir (equal to GitDir outside linked
// worktrees). Refs and objects live here.
func (g *Git) CommonGitDir() string { return g.commonDir }

// WorkTree returns the work tree root.
func (g *Git) WorkTree() string { return g.workTree }

// IndexPath returns the index file every non-ephemeral index operation
// acts on: the standing override if set, the repository index otherwise.
func (g *Git) IndexPath() string {
	if g.indexFile != "" {
		return g.indexFile
	}
	return filepath.Join(g.gitDir, "index")
}

// env assembles the environment overrides for one invocation. indexFile,
// when non-empty, takes precedence over the standing override.
func (g *Git) env(indexFile string) []string {
	var env []string
	if g.explicit {
		env = append(env, "GIT_DIR="+g.gitDir, "GIT_WORK_TREE="+g.workTree)
	}
	idx := indexFile
	if idx == "" {
		idx = g.indexFile
	}
	if idx != "" {
		env = append(env, "GIT_INDEX_FILE="+idx)
	}
	return env
}

func (g *Git) run(ctx context.Context, indexFile string, args ...string) (string, error) {
	out, err := g.runner.Run(ctx, g.workTree, g.env(indexFile), args...)
	return strings.TrimSpace(string(out)), err
}

// exitStatus returns the process exit status carried by err, or -1 when err
// carries none (context cancellation, missing binary, I/O failure).
func exitStatus(err error) int {
	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

// Head resolves the active branch's commit. An unborn HEAD (no commits yet)
// is not an error: `rev-parse --verify --quiet` exits 1 and Head returns "".
// Any other failure is a backend error.
func (g *Git) Head(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "", "rev-parse", "--verify", "--quiet", "HEAD^{commit}")
	if err != nil {
		if exitStatus(err) == 1 {
			return "", nil
		}
		return "", errclass.ErrBackendFailure.WithMessage(err.Error())
	}
	return out, nil
}

// ResolveRef resolves a ref to a commit id, or "" if it does not exist
// (exit status 1 from `rev-parse --verify --quiet`). Any other failure is a
// backend error.
func (g *Git) ResolveRef(ctx context.Context, ref string) (string, error) {
	out, err := g.run(ctx, "", "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		if exitStatus(err) == 1 {
			return "", nil
		}
		return "", errclass.ErrBackendFailure.WithMessage(err.Error())
	}
	return out, nil
}

// ListRefs lists all refs under prefix.
func (g *Git) ListRefs(ctx context.Context, prefix string) ([]RefEntry, error) {
	out, err := g.run(ctx, "", "for-each-ref", "--format=%(refname) %(objectname)", prefix)
	if err != nil {
		return nil, errclass.ErrBackendFailure.WithMessage(err.Error())
	}

	var refs []RefEntry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		refs = append(refs, RefEntry{Name: parts[0], OID: parts[1]})
	}
	return refs, nil
}

// UpdateRef atomically points ref at newOID, requiring its current value to
// equal oldOID (ZeroOID means "must not exist"). A mismatch fails the
// update; there is no last-write-wins path.
func (g *Git) UpdateRef(ctx context.Context, ref, newOID, oldOID string) error {
	if _, err := g.run(ctx, "", "update-ref", ref, newOID, oldOID); err != nil {
		return errclass.ErrBackendFailure.WithMessagef("ref update rejected: %v", err)
	}
	return nil
}

// DeleteRef removes a ref.
func (g *Git) DeleteRef(ctx context.Context, ref string) error {
	if _, err := g.run(ctx, "", "update-ref", "-d", ref); err != nil {
		return errclass.ErrBackendFailure.WithMessage(err.Error())
	}
	return nil
}

// CommitBody returns the full commit message body for an object.
func (g *Git) CommitBody(ctx context.Context, commit string) (string, error) {
	out, err := g.runner.Run(ctx, g.workTree, g.env(""), "show", "-s", "--format=%B", commit)
	if err != nil {
		return "", errclass.ErrBackendFailure.WithMessage(err.Error())
	}
	return string(out), nil
}

// CommitTree creates a parentless commit object wrapping tree with the
// given message and returns its id. Nothing moves: no branch, no HEAD.
func (g *Git) CommitTree(ctx context.Context, tree, message string) (string, error) {
	out, err := g.run(ctx, "", "commit-tree", tree, "-m", message)
	if err != nil {
		return "", errclass.ErrBackendFailure.WithMessage(err.Error())
	}
	return out, nil
}

// WriteTree serializes the given index file into a tree object. A missing
// index file is an empty index, which yields the empty tree.
func (g *Git) WriteTree(ctx context.Context, indexFile string) (string, error) {
	out, err := g.run(ctx, indexFile, "write-tree")
	if err != nil {
		return "", errclass.ErrBackendFailure.WithMessage(err.Error())
	}
	return out, nil
}

// StageAll records the entire work tree state (modifications, deletions,
// and untracked-but-not-ignored files) into the given index file.
func (g *Git) StageAll(ctx context.Context, indexFile string) error {
	if _, err := g.run(ctx, indexFile, "add", "-A", "."); err != nil {
		return errclass.ErrBackendFailure.WithMessage(err.Error())
	}
	return nil
}

// ReadTree resets the effective index to exactly tree.
func (g *Git) ReadTree(ctx context.Context, tree string) error {
	if _, err := g.run(ctx, "", "read-tree", tree); err != nil {
		return errclass.ErrBackendFailure.WithMessage(err.Error())
	}
	return nil
}

// CheckoutIndex force-writes every file recorded in the effective index
// into the work tree, overwriting differing files and creating missing ones.
func (g *Git) CheckoutIndex(ctx context.Context) error {
	if _, err := g.run(ctx, "", "checkout-index", "-q", "-f", "-a"); err != nil {
		return errclass.ErrBackendFailure.WithMessage(err.Error())
	}
	return nil
}

// HardReset moves HEAD (and the active branch) to commit and resets the
// effective index and work tree to match. Destructive.
func (g *Git) HardReset(ctx context.Context, commit string) error {
	if _, err := g.run(ctx, "", "reset", "--hard", commit, "--"); err != nil {
		return errclass.ErrBackendFailure.WithMessage(err.Error())
	}
	return nil
}

// CleanUntracked deletes untracked files and directories from the work
// tree. Ignored paths are left alone (no -x).
func (g *Git) CleanUntracked(ctx context.Context) error {
	if _, err := g.run(ctx, "", "clean", "-fd"); err != nil {
		return errclass.ErrBackendFailure.WithMessage(err.Error())
	}
	return nil
}

// DiffTrees produces a textual patch between two root trees, passing extra
// arguments (formatting flags, path filters) straight through to git.
func (g *Git) DiffTrees(ctx context.Context, treeA, treeB string, extra ...string) (string, error) {
	args := append([]string{"diff", treeA, treeB}, extra...)
	out, err := g.runner.Run(ctx, g.workTree, g.env(""), args...)
	if err != nil {
		return "", errclass.ErrBackendFailure.WithMessage(err.Error())
	}
	return string(out), nil
}
