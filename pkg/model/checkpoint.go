// Package model defines the core checkpoint data structures.
package model

import (
	"fmt"
	"time"
)

// NullHead is the sentinel recorded when the repository had no commits
// at save time (unborn HEAD).
const NullHead = "none"

// RefPrefix is the reserved ref namespace holding one pointer per
// checkpoint id, distinct from ordinary branches and tags.
const RefPrefix = "refs/checkpoints/"

// CurrentToken is the literal diff argument meaning "current live state".
const CurrentToken = "current"

// CheckpointID is the unique identifier for a checkpoint within one
// repository's checkpoint namespace.
type CheckpointID string

// NewTimestampID generates a timestamp-based checkpoint id, used when the
// caller does not choose one.
func NewTimestampID() CheckpointID {
	now := time.Now().UTC()
	return CheckpointID(fmt.Sprintf("%s-%03d", now.Format("20060102-150405"), now.Nanosecond()/1e6))
}

// String returns the checkpoint id as a string.
func (id CheckpointID) String() string {
	return string(id)
}

// Ref returns the namespaced ref name for this checkpoint id.
func (id CheckpointID) Ref() string {
	return RefPrefix + string(id)
}

// Checkpoint is an immutable snapshot of head commit, staging area, and
// full working directory at a point in time. The tree and commit objects
// live in the version backend; this struct is the decoded metadata.
type Checkpoint struct {
	ID           CheckpointID `json:"id"`
	Head         string       `json:"head"`
	IndexTree    string       `json:"index_tree"`
	WorktreeTree string       `json:"worktree_tree"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Unborn reports whether the checkpoint was captured in a repository with
// no commit history. Such checkpoints cannot be restored.
func (c *Checkpoint) Unborn() bool {
	return c.Head == NullHead
}
