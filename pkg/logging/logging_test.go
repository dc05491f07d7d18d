package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ckpt-project/ckpt/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(level logging.Level) (*logging.Logger, *bytes.Buffer) {
	l := logging.NewLogger(level)
	buf := &bytes.Buffer{}
	l.SetOutput(buf)
	return l, buf
}

func TestLevelsFilter(t *testing.T) {
	l, buf := capture(logging.LevelInfo)

	l.Debug("hidden")
	l.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestEntriesAreJSON(t *testing.T) {
	l, buf := capture(logging.LevelDebug)

	l.Info("cycle complete", map[string]any{"checkpoint": "s1"})

	var entry logging.LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, logging.LevelInfo, entry.Level)
	assert.Equal(t, "cycle complete", entry.Message)
	assert.Equal(t, "s1", entry.Fields["checkpoint"])
	assert.NotEmpty(t, entry.Timestamp)
}

func TestWithFields(t *testing.T) {
	l, buf := capture(logging.LevelInfo)

	l.WithFields(map[string]any{"session": "sync-1-2"}).Warn("restore failed")

	var entry logging.LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sync-1-2", entry.Fields["session"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logging.LevelDebug, logging.ParseLevel("debug"))
	assert.Equal(t, logging.LevelInfo, logging.ParseLevel("bogus"))
}
