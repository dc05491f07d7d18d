// Package audit keeps a tamper-evident journal of checkpoint operations.
//
// Records are appended as JSONL to <gitdir>/ckpt/audit.jsonl, each carrying
// the hash of its predecessor. Truncation or edits break the chain.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ckpt-project/ckpt/pkg/model"
)

// EventType classifies an audited operation.
type EventType string

const (
	EventSave    EventType = "checkpoint.save"
	EventRestore EventType = "checkpoint.restore"
	EventDelete  EventType = "checkpoint.delete"
)

// Record is one journal entry.
type Record struct {
	Timestamp    time.Time          `json:"timestamp"`
	EventType    EventType          `json:"event_type"`
	CheckpointID model.CheckpointID `json:"checkpoint_id,omitempty"`
	Details      map[string]any     `json:"details,omitempty"`
	PrevHash     string             `json:"prev_hash,omitempty"`
	RecordHash   string             `json:"record_hash"`
}

// FileAppender appends records to a JSONL file with a hash chain.
type FileAppender struct {
	path string
	mu   sync.Mutex
}

// NewFileAppender creates an appender writing to path.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path}
}

// Append adds a record to the journal.
func (a *FileAppender) Append(eventType EventType, id model.CheckpointID, details map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	// Exclusive across processes; the mutex only covers this one.
	if err := lockFile(file); err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	defer unlockFile(file)

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("read last record hash: %w", err)
	}

	record := &Record{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		CheckpointID: id,
		Details:      details,
		PrevHash:     prevHash,
	}
	record.RecordHash, err = computeRecordHash(record)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	if _, err := file.Seek(0, 2); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

// Verify walks the journal and reports the first broken link, if any.
func (a *FileAppender) Verify() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var prevHash string
	lineNo := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		var record Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return fmt.Errorf("audit record %d: malformed: %w", lineNo, err)
		}
		if record.PrevHash != prevHash {
			return fmt.Errorf("audit record %d: hash chain broken", lineNo)
		}
		want, err := computeRecordHash(&record)
		if err != nil {
			return err
		}
		if record.RecordHash != want {
			return fmt.Errorf("audit record %d: record hash mismatch", lineNo)
		}
		prevHash = record.RecordHash
	}
	return scanner.Err()
}

func lastRecordHash(file *os.File) (string, error) {
	if _, err := file.Seek(0, 0); err != nil {
		return "", err
	}

	var lastHash string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue // skip malformed lines
		}
		lastHash = record.RecordHash
	}
	return lastHash, scanner.Err()
}

func computeRecordHash(record *Record) (string, error) {
	// Hash over a copy with RecordHash zeroed. encoding/json sorts map
	// keys, so the serialization is deterministic.
	hashRecord := &Record{
		Timestamp:    record.Timestamp,
		EventType:    record.EventType,
		CheckpointID: record.CheckpointID,
		Details:      record.Details,
		PrevHash:     record.PrevHash,
	}
	data, err := json.Marshal(hashRecord)
	if err != nil {
		return "", fmt.Errorf("marshal for hash: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
