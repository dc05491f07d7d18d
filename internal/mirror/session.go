// Package mirror implements the live sync daemon: it watches a source work
// tree and continuously replays its state onto a target work tree through
// the checkpoint engine.
//
// The target is driven off the source repository's object store (GIT_DIR
// pointing at the source, GIT_WORK_TREE at the target, a private standing
// index per target), so the mirror needs no repository of its own.
package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ckpt-project/ckpt/internal/gitexec"
	"github.com/ckpt-project/ckpt/internal/lock"
	"github.com/ckpt-project/ckpt/pkg/model"
)

// Session describes one daemon run. Nothing about it is persisted; the
// checkpoint id is derived from process identity so concurrent daemons on
// the same repository never fight over a ref.
type Session struct {
	Source  string
	Target  string
	ID      model.CheckpointID
	Ignores []string
}

// NewSession creates a session for mirroring source onto target.
func NewSession(source, target string, ignores []string) *Session {
	return &Session{
		Source:  source,
		Target:  target,
		ID:      model.CheckpointID(fmt.Sprintf("sync-%d-%d", os.Getpid(), time.Now().Unix())),
		Ignores: ignores,
	}
}

// OpenTarget wires a backend for the target work tree on top of the source
// repository's object store. The standing index file is private to this
// target, so mirroring never disturbs the source's real index.
func OpenTarget(src *gitexec.Git, target string, runner gitexec.Runner) *gitexec.Git {
	indexFile := filepath.Join(src.CommonGitDir(), "ckpt",
		"mirror-"+lock.TargetKey(target)+".index")
	return gitexec.OpenWith(gitexec.Options{
		Runner:    runner,
		GitDir:    src.CommonGitDir(),
		WorkTree:  target,
		IndexFile: indexFile,
	})
}
