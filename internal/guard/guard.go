// Package guard inspects a repository for in-progress operations that make
// capturing a consistent snapshot unsafe.
package guard

import (
	"os"
	"path/filepath"
)

// State is the result of a busy-state inspection.
type State int

const (
	// Clean means no conflicting operation is in progress.
	Clean State = iota
	// MergeInProgress means a merge has started but not concluded.
	MergeInProgress
	// RebaseInProgress means an interactive or apply-based rebase is underway.
	RebaseInProgress
	// CherryPickInProgress means a cherry-pick (possibly a sequence) is underway.
	CherryPickInProgress
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case MergeInProgress:
		return "merge-in-progress"
	case RebaseInProgress:
		return "rebase-in-progress"
	case CherryPickInProgress:
		return "cherry-pick-in-progress"
	default:
		return "unknown"
	}
}

// Inspect reads the repository's marker files and reports its state.
// It is a pure read: no side effects, and stat failures count as absence.
func Inspect(gitDir string) State {
	// rebase-merge/ covers interactive rebase, rebase-apply/ covers am-based
	if dirExists(filepath.Join(gitDir, "rebase-merge")) ||
		dirExists(filepath.Join(gitDir, "rebase-apply")) {
		return RebaseInProgress
	}

	if fileExists(filepath.Join(gitDir, "MERGE_HEAD")) {
		return MergeInProgress
	}

	if fileExists(filepath.Join(gitDir, "CHERRY_PICK_HEAD")) ||
		fileExists(filepath.Join(gitDir, "sequencer", "todo")) {
		return CherryPickInProgress
	}

	return Clean
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
