// Package checkpoint implements save, restore, diff, and listing of
// checkpoints on top of the git-CLI backend.
//
// A checkpoint is a parentless metadata commit whose tree is the captured
// work tree, reachable only through refs/checkpoints/<id>. Capture goes
// through a private index file, so the repository's real index and HEAD are
// never touched by a save.
package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ckpt-project/ckpt/internal/audit"
	"github.com/ckpt-project/ckpt/internal/gitexec"
	"github.com/ckpt-project/ckpt/internal/guard"
	"github.com/ckpt-project/ckpt/internal/lock"
	"github.com/ckpt-project/ckpt/pkg/errclass"
	"github.com/ckpt-project/ckpt/pkg/logging"
	"github.com/ckpt-project/ckpt/pkg/model"
	"github.com/ckpt-project/ckpt/pkg/pathutil"
)

// Manager coordinates checkpoint operations for one repository.
type Manager struct {
	git     *gitexec.Git
	locks   *lock.Manager
	journal *audit.FileAppender
	log     *logging.Logger
}

// NewManager creates a Manager over an opened repository.
func NewManager(g *gitexec.Git, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.WithFields(map[string]any{"component": "checkpoint"})
	}
	return &Manager{
		git:     g,
		locks:   lock.NewManager(filepath.Join(g.CommonGitDir(), "ckpt", "locks")),
		journal: audit.NewFileAppender(filepath.Join(g.CommonGitDir(), "ckpt", "audit.jsonl")),
		log:     log,
	}
}

// record appends an audit entry. Journal failures are logged, never fatal.
func (m *Manager) record(event audit.EventType, id model.CheckpointID, details map[string]any) {
	if err := m.journal.Append(event, id, details); err != nil {
		m.log.Warn("audit append failed", map[string]any{"error": err.Error()})
	}
}

// SaveOptions controls a save.
type SaveOptions struct {
	// ID names the checkpoint; empty means a generated timestamp id.
	ID model.CheckpointID
	// Force overwrites an existing checkpoint with the same id.
	Force bool
}

// SaveResult is the outcome of a save.
type SaveResult struct {
	ID      model.CheckpointID `json:"id,omitempty"`
	Commit  string             `json:"commit,omitempty"`
	Skipped bool               `json:"skipped,omitempty"`
	// BusyState names the in-progress operation when Skipped.
	BusyState string `json:"busy_state,omitempty"`
}

// Save captures the repository's current state as a checkpoint.
//
// If the repository is mid-merge, mid-rebase, or mid-cherry-pick the save is
// skipped rather than failed: the result carries Skipped and the busy state,
// and nothing is written.
func (m *Manager) Save(ctx context.Context, opts SaveOptions) (*SaveResult, error) {
	if state := guard.Inspect(m.git.GitDir()); state != guard.Clean {
		m.log.Warn("save skipped", map[string]any{"busy_state": state.String()})
		return &SaveResult{Skipped: true, BusyState: state.String()}, nil
	}

	id := opts.ID
	if id == "" {
		id = model.NewTimestampID()
	} else if err := pathutil.ValidateID(string(id)); err != nil {
		return nil, err
	}

	// Decide the expected old ref value up front; the final update-ref is a
	// compare-and-swap against it, so two concurrent saves of the same id
	// cannot silently clobber each other.
	oldOID := gitexec.ZeroOID
	existing, err := m.git.ResolveRef(ctx, id.Ref())
	if err != nil {
		return nil, err
	}
	if existing != "" {
		if !opts.Force {
			return nil, errclass.ErrAlreadyExists.WithMessagef("checkpoint %s already exists", id)
		}
		oldOID = existing
	}

	cp, commit, err := m.capture(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := m.git.UpdateRef(ctx, id.Ref(), commit, oldOID); err != nil {
		return nil, err
	}

	m.log.Info("checkpoint saved", map[string]any{
		"id":     id.String(),
		"commit": commit,
		"head":   cp.Head,
	})
	m.record(audit.EventSave, id, map[string]any{"commit": commit, "force": opts.Force})
	return &SaveResult{ID: id, Commit: commit}, nil
}

// capture records the current head, staging area, and work tree as objects
// and wraps them in a metadata commit. The commit is created but not yet
// referenced; the caller owns the ref update.
func (m *Manager) capture(ctx context.Context, id model.CheckpointID) (*model.Checkpoint, string, error) {
	head, err := m.git.Head(ctx)
	if err != nil {
		return nil, "", err
	}
	if head == "" {
		head = model.NullHead
	}

	tmpIndex, cleanup, err := m.ephemeralIndex()
	if err != nil {
		return nil, "", err
	}
	defer cleanup()

	// The staged state first, before add -A folds the work tree in.
	indexTree, err := m.git.WriteTree(ctx, tmpIndex)
	if err != nil {
		return nil, "", err
	}

	if err := m.git.StageAll(ctx, tmpIndex); err != nil {
		return nil, "", err
	}
	worktreeTree, err := m.git.WriteTree(ctx, tmpIndex)
	if err != nil {
		return nil, "", err
	}

	cp := &model.Checkpoint{
		ID:           id,
		Head:         head,
		IndexTree:    indexTree,
		WorktreeTree: worktreeTree,
		CreatedAt:    time.Now().UTC(),
	}

	commit, err := m.git.CommitTree(ctx, worktreeTree, encodeBody(cp))
	if err != nil {
		return nil, "", err
	}
	return cp, commit, nil
}

// ephemeralIndex creates a private index file seeded from the repository's
// current index. A missing source index (unborn repository) seeds nothing,
// which git reads as an empty index.
func (m *Manager) ephemeralIndex() (string, func(), error) {
	f, err := os.CreateTemp("", "ckpt-index-*")
	if err != nil {
		return "", nil, errclass.ErrBackendFailure.WithMessagef("create temp index: %v", err)
	}
	path := f.Name()
	f.Close()
	// git rejects a zero-length index file; the path must not exist until
	// it holds a real index copy.
	os.Remove(path)

	cleanup := func() { os.Remove(path) }

	data, err := os.ReadFile(m.git.IndexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return path, cleanup, nil
		}
		return "", nil, errclass.ErrBackendFailure.WithMessagef("read index: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		cleanup()
		return "", nil, errclass.ErrBackendFailure.WithMessagef("copy index: %v", err)
	}
	return path, cleanup, nil
}

// Restore rewinds the work tree, staging area, and HEAD to a checkpoint.
// The target is locked for the duration; concurrent restores against the
// same work tree fail with a lock conflict instead of interleaving.
func (m *Manager) Restore(ctx context.Context, id model.CheckpointID) (*model.Checkpoint, error) {
	if err := pathutil.ValidateID(string(id)); err != nil {
		return nil, err
	}

	handle, err := m.locks.Acquire(lock.TargetKey(m.git.WorkTree()), "restore")
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	cp, err := m.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp.Unborn() {
		// No commit to reset onto. Refuse before touching anything.
		return nil, errclass.ErrUnbornHead.WithMessagef(
			"checkpoint %s was captured before the first commit and cannot be restored", id)
	}

	if err := m.git.HardReset(ctx, cp.Head); err != nil {
		return nil, err
	}
	if err := m.git.ReadTree(ctx, cp.WorktreeTree); err != nil {
		return nil, err
	}
	if err := m.git.CheckoutIndex(ctx); err != nil {
		return nil, err
	}
	if err := m.git.CleanUntracked(ctx); err != nil {
		return nil, err
	}
	// Last: the staging area as it was at save time.
	if err := m.git.ReadTree(ctx, cp.IndexTree); err != nil {
		return nil, err
	}

	m.log.Info("checkpoint restored", map[string]any{
		"id":   id.String(),
		"head": cp.Head,
	})
	m.record(audit.EventRestore, id, map[string]any{"target": m.git.WorkTree()})
	return cp, nil
}

// Load resolves a checkpoint id to its decoded metadata.
func (m *Manager) Load(ctx context.Context, id model.CheckpointID) (*model.Checkpoint, error) {
	commit, err := m.git.ResolveRef(ctx, id.Ref())
	if err != nil {
		return nil, err
	}
	if commit == "" {
		return nil, errclass.ErrNotFound.WithMessagef("checkpoint %s does not exist", id)
	}

	body, err := m.git.CommitBody(ctx, commit)
	if err != nil {
		return nil, err
	}
	return parseBody(id, body)
}

// List returns all checkpoints, oldest first. Refs whose metadata cannot be
// decoded are skipped with a warning rather than failing the listing.
func (m *Manager) List(ctx context.Context) ([]*model.Checkpoint, error) {
	refs, err := m.git.ListRefs(ctx, strings.TrimSuffix(model.RefPrefix, "/"))
	if err != nil {
		return nil, err
	}

	checkpoints := make([]*model.Checkpoint, 0, len(refs))
	for _, ref := range refs {
		id := model.CheckpointID(strings.TrimPrefix(ref.Name, model.RefPrefix))

		body, err := m.git.CommitBody(ctx, ref.OID)
		if err != nil {
			m.log.Warn("skipping unreadable checkpoint", map[string]any{"id": id.String(), "error": err.Error()})
			continue
		}
		cp, err := parseBody(id, body)
		if err != nil {
			m.log.Warn("skipping corrupt checkpoint", map[string]any{"id": id.String(), "error": err.Error()})
			continue
		}
		checkpoints = append(checkpoints, cp)
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		if checkpoints[i].CreatedAt.Equal(checkpoints[j].CreatedAt) {
			return checkpoints[i].ID < checkpoints[j].ID
		}
		return checkpoints[i].CreatedAt.Before(checkpoints[j].CreatedAt)
	})
	return checkpoints, nil
}

// Diff produces a patch between checkpoint a's work-tree state and b, where
// b is either another checkpoint id or the literal "current" for the live
// state. Extra arguments pass straight through to the backend's diff.
// Diffing against "current" captures ephemerally; nothing is persisted.
func (m *Manager) Diff(ctx context.Context, a, b string, passthrough []string) (string, error) {
	treeA, err := m.worktreeTreeOf(ctx, model.CheckpointID(a))
	if err != nil {
		return "", err
	}

	var treeB string
	if b == model.CurrentToken {
		treeB, err = m.captureWorktreeTree(ctx)
	} else {
		treeB, err = m.worktreeTreeOf(ctx, model.CheckpointID(b))
	}
	if err != nil {
		return "", err
	}

	return m.git.DiffTrees(ctx, treeA, treeB, passthrough...)
}

func (m *Manager) worktreeTreeOf(ctx context.Context, id model.CheckpointID) (string, error) {
	if err := pathutil.ValidateID(string(id)); err != nil {
		return "", err
	}
	cp, err := m.Load(ctx, id)
	if err != nil {
		return "", err
	}
	return cp.WorktreeTree, nil
}

// captureWorktreeTree snapshots the live work tree into a tree object
// without creating a commit or moving any ref.
func (m *Manager) captureWorktreeTree(ctx context.Context) (string, error) {
	tmpIndex, cleanup, err := m.ephemeralIndex()
	if err != nil {
		return "", err
	}
	defer cleanup()

	if err := m.git.StageAll(ctx, tmpIndex); err != nil {
		return "", err
	}
	return m.git.WriteTree(ctx, tmpIndex)
}

// Delete removes a checkpoint's ref. The metadata commit becomes
// unreachable and is left for git's own garbage collection.
func (m *Manager) Delete(ctx context.Context, id model.CheckpointID) error {
	if err := pathutil.ValidateID(string(id)); err != nil {
		return err
	}
	commit, err := m.git.ResolveRef(ctx, id.Ref())
	if err != nil {
		return err
	}
	if commit == "" {
		return errclass.ErrNotFound.WithMessagef("checkpoint %s does not exist", id)
	}
	if err := m.git.DeleteRef(ctx, id.Ref()); err != nil {
		return err
	}
	m.log.Info("checkpoint deleted", map[string]any{"id": id.String()})
	m.record(audit.EventDelete, id, nil)
	return nil
}

// DecodeMetadata parses a checkpoint commit body. Diagnostics use it to
// report corrupt checkpoints individually instead of skipping them.
func DecodeMetadata(id model.CheckpointID, body string) (*model.Checkpoint, error) {
	return parseBody(id, body)
}
