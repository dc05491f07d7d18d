package checkpoint

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ckpt-project/ckpt/pkg/errclass"
	"github.com/ckpt-project/ckpt/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyRoundTrip(t *testing.T) {
	cp := &model.Checkpoint{
		ID:           "pre-refactor",
		Head:         strings.Repeat("a", 40),
		IndexTree:    strings.Repeat("b", 40),
		WorktreeTree: strings.Repeat("c", 40),
		CreatedAt:    time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC),
	}

	got, err := parseBody(cp.ID, encodeBody(cp))
	require.NoError(t, err)
	assert.Equal(t, cp, got)
}

func TestBodyRoundTripUnborn(t *testing.T) {
	cp := &model.Checkpoint{
		ID:           "first",
		Head:         model.NullHead,
		IndexTree:    strings.Repeat("b", 40),
		WorktreeTree: strings.Repeat("c", 40),
		CreatedAt:    time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC),
	}

	got, err := parseBody(cp.ID, encodeBody(cp))
	require.NoError(t, err)
	assert.True(t, got.Unborn())
}

func TestParseBodyTolerantOfGitNoise(t *testing.T) {
	// git show --format=%B pads with blank lines; parsing must not care.
	body := "\n\ncheckpoint:x1\n\nhead " + strings.Repeat("a", 40) +
		"\nindex-tree " + strings.Repeat("b", 40) +
		"\nworktree-tree " + strings.Repeat("c", 40) +
		"\ncreated 2026-08-25T10:30:00Z\n\n\n"

	cp, err := parseBody("x1", body)
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointID("x1"), cp.ID)
}

func TestParseBodyCorrupt(t *testing.T) {
	valid := func(mutate func(m map[string]string)) string {
		fields := map[string]string{
			"head":          strings.Repeat("a", 40),
			"index-tree":    strings.Repeat("b", 40),
			"worktree-tree": strings.Repeat("c", 40),
			"created":       "2026-08-25T10:30:00Z",
		}
		mutate(fields)
		var b strings.Builder
		b.WriteString("checkpoint:x1\n\n")
		for _, k := range []string{"head", "index-tree", "worktree-tree", "created"} {
			if fields[k] != "" {
				b.WriteString(k + " " + fields[k] + "\n")
			}
		}
		return b.String()
	}

	cases := map[string]string{
		"empty body":        "",
		"not a checkpoint":  "fix: something unrelated\n",
		"marker mismatch":   strings.Replace(valid(func(m map[string]string) {}), "checkpoint:x1", "checkpoint:other", 1),
		"missing head":      valid(func(m map[string]string) { m["head"] = "" }),
		"missing trees":     valid(func(m map[string]string) { m["index-tree"] = ""; m["worktree-tree"] = "" }),
		"bad head oid":      valid(func(m map[string]string) { m["head"] = "not-an-oid" }),
		"bad tree oid":      valid(func(m map[string]string) { m["worktree-tree"] = "xyz" }),
		"bad timestamp":     valid(func(m map[string]string) { m["created"] = "yesterday" }),
		"truncated oid":     valid(func(m map[string]string) { m["index-tree"] = strings.Repeat("b", 39) }),
		"missing timestamp": valid(func(m map[string]string) { m["created"] = "" }),
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseBody("x1", body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errclass.ErrCorruptCheckpoint), err.Error())
		})
	}
}
