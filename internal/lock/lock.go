// Package lock serializes mutating operations against one target work tree.
//
// Restores against the same target must be mutually exclusive; restores
// against different targets are independent. The lock is a JSON record
// created with O_EXCL, so acquisition is atomic across processes sharing
// the repository's git dir.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ckpt-project/ckpt/pkg/errclass"
	"github.com/ckpt-project/ckpt/pkg/uuidutil"
)

// Record is the on-disk lock content.
type Record struct {
	PID        int       `json:"pid"`
	Nonce      string    `json:"nonce"`
	AcquiredAt time.Time `json:"acquired_at"`
	Purpose    string    `json:"purpose"`
}

// Handle represents a held lock.
type Handle struct {
	path string
	rec  *Record
}

// Record returns the lock's record.
func (h *Handle) Record() *Record { return h.rec }

// Release removes the lock file.
func (h *Handle) Release() error {
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Manager creates locks under one directory (typically <gitdir>/ckpt/locks).
type Manager struct {
	dir string
	mu  sync.Mutex
}

// NewManager creates a lock manager rooted at dir.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// TargetKey derives a stable lock name from a target work tree path.
func TargetKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	sum := sha256.Sum256([]byte(abs))
	return "target-" + hex.EncodeToString(sum[:6])
}

// Acquire takes the named lock, stealing it if the holding process is gone.
func (m *Manager) Acquire(name, purpose string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	path := filepath.Join(m.dir, name+".lock")

	h, err := m.tryAcquire(path, purpose)
	if err == nil {
		return h, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("create lock: %w", err)
	}

	// Lock exists. If the holder died, the lock is stale; remove and retry once.
	rec, readErr := readRecord(path)
	if readErr == nil && pidAlive(rec.PID) {
		return nil, errclass.ErrLockConflict.WithMessagef(
			"held by pid %d since %s (%s)", rec.PID, rec.AcquiredAt.Format(time.RFC3339), rec.Purpose)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale lock: %w", err)
	}

	h, err = m.tryAcquire(path, purpose)
	if err != nil {
		if os.IsExist(err) {
			return nil, errclass.ErrLockConflict.WithMessage("lost race reacquiring stale lock")
		}
		return nil, fmt.Errorf("create lock: %w", err)
	}
	return h, nil
}

func (m *Manager) tryAcquire(path, purpose string) (*Handle, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	rec := &Record{
		PID:        os.Getpid(),
		Nonce:      uuidutil.NewV4(),
		AcquiredAt: time.Now().UTC(),
		Purpose:    purpose,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	if _, err := file.Write(data); err != nil {
		os.Remove(path)
		return nil, err
	}

	return &Handle{path: path, rec: rec}, nil
}

// ReadRecord decodes the lock record at path.
func ReadRecord(path string) (*Record, error) {
	return readRecord(path)
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Alive reports whether a process with the given pid exists. EPERM counts
// as alive: the process is there, we just cannot signal it.
func Alive(pid int) bool {
	return pidAlive(pid)
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}
