package audit_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ckpt-project/ckpt/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, path string) []audit.Record {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var records []audit.Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var r audit.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		records = append(records, r)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestAppendCreatesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	a := audit.NewFileAppender(path)
	require.NoError(t, a.Append(audit.EventSave, "x1", map[string]any{"commit": "abc"}))

	records := readRecords(t, path)
	require.Len(t, records, 1)
	assert.Equal(t, audit.EventSave, records[0].EventType)
	assert.Equal(t, "x1", records[0].CheckpointID.String())
	assert.Empty(t, records[0].PrevHash)
	assert.NotEmpty(t, records[0].RecordHash)
}

func TestHashChainLinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a := audit.NewFileAppender(path)

	require.NoError(t, a.Append(audit.EventSave, "x1", nil))
	require.NoError(t, a.Append(audit.EventRestore, "x1", nil))
	require.NoError(t, a.Append(audit.EventDelete, "x1", nil))

	records := readRecords(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, records[0].RecordHash, records[1].PrevHash)
	assert.Equal(t, records[1].RecordHash, records[2].PrevHash)

	require.NoError(t, a.Verify())
}

func TestVerifyDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a := audit.NewFileAppender(path)

	require.NoError(t, a.Append(audit.EventSave, "x1", nil))
	require.NoError(t, a.Append(audit.EventSave, "x2", nil))

	records := readRecords(t, path)
	records[0].CheckpointID = "forged"
	var out []byte
	for _, r := range records {
		line, err := json.Marshal(r)
		require.NoError(t, err)
		out = append(out, append(line, '\n')...)
	}
	require.NoError(t, os.WriteFile(path, out, 0644))

	assert.Error(t, a.Verify())
}

func TestVerifyMissingFileIsClean(t *testing.T) {
	a := audit.NewFileAppender(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.NoError(t, a.Verify())
}

func TestConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a := audit.NewFileAppender(path)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, a.Append(audit.EventSave, "x1", nil))
		}()
	}
	wg.Wait()

	assert.Len(t, readRecords(t, path), 10)
	assert.NoError(t, a.Verify())
}
