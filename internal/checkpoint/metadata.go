package checkpoint

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ckpt-project/ckpt/pkg/errclass"
	"github.com/ckpt-project/ckpt/pkg/model"
)

// The checkpoint commit body is a marker line followed by four key/value
// lines:
//
//	checkpoint:<id>
//
//	head <commit|none>
//	index-tree <tree>
//	worktree-tree <tree>
//	created <RFC3339 UTC>
const markerPrefix = "checkpoint:"

const (
	fieldHead         = "head"
	fieldIndexTree    = "index-tree"
	fieldWorktreeTree = "worktree-tree"
	fieldCreated      = "created"
)

// SHA-1 or SHA-256 object names.
var oidPattern = regexp.MustCompile(`^[0-9a-f]{40}(?:[0-9a-f]{24})?$`)

// encodeBody serializes checkpoint metadata into a commit message body.
func encodeBody(c *model.Checkpoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n\n", markerPrefix, c.ID)
	fmt.Fprintf(&b, "%s %s\n", fieldHead, c.Head)
	fmt.Fprintf(&b, "%s %s\n", fieldIndexTree, c.IndexTree)
	fmt.Fprintf(&b, "%s %s\n", fieldWorktreeTree, c.WorktreeTree)
	fmt.Fprintf(&b, "%s %s\n", fieldCreated, c.CreatedAt.UTC().Format(time.RFC3339))
	return b.String()
}

// parseBody decodes a commit message body back into checkpoint metadata.
// Any missing or malformed field makes the checkpoint corrupt.
func parseBody(id model.CheckpointID, body string) (*model.Checkpoint, error) {
	lines := strings.Split(body, "\n")

	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) {
		return nil, errclass.ErrCorruptCheckpoint.WithMessagef("checkpoint %s: empty commit body", id)
	}

	marker := strings.TrimSpace(lines[i])
	if marker != markerPrefix+string(id) {
		return nil, errclass.ErrCorruptCheckpoint.WithMessagef(
			"checkpoint %s: marker line %q does not match", id, marker)
	}

	fields := make(map[string]string)
	for _, line := range lines[i+1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		fields[parts[0]] = strings.TrimSpace(parts[1])
	}

	for _, key := range []string{fieldHead, fieldIndexTree, fieldWorktreeTree, fieldCreated} {
		if fields[key] == "" {
			return nil, errclass.ErrCorruptCheckpoint.WithMessagef("checkpoint %s: missing %s field", id, key)
		}
	}

	head := fields[fieldHead]
	if head != model.NullHead && !oidPattern.MatchString(head) {
		return nil, errclass.ErrCorruptCheckpoint.WithMessagef("checkpoint %s: bad head %q", id, head)
	}
	for _, key := range []string{fieldIndexTree, fieldWorktreeTree} {
		if !oidPattern.MatchString(fields[key]) {
			return nil, errclass.ErrCorruptCheckpoint.WithMessagef("checkpoint %s: bad %s %q", id, key, fields[key])
		}
	}

	createdAt, err := time.Parse(time.RFC3339, fields[fieldCreated])
	if err != nil {
		return nil, errclass.ErrCorruptCheckpoint.WithMessagef(
			"checkpoint %s: bad created timestamp %q", id, fields[fieldCreated])
	}

	return &model.Checkpoint{
		ID:           id,
		Head:         head,
		IndexTree:    fields[fieldIndexTree],
		WorktreeTree: fields[fieldWorktreeTree],
		CreatedAt:    createdAt,
	}, nil
}
