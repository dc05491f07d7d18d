package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ckpt-project/ckpt/internal/checkpoint"
	"github.com/ckpt-project/ckpt/pkg/fsutil"
	"github.com/ckpt-project/ckpt/pkg/logging"
)

// CycleFunc runs one sync cycle: capture the source, replay onto the target.
type CycleFunc func(ctx context.Context) error

// Daemon turns a stream of change notifications into sync cycles.
//
// Cycles are single-flight: the trigger channel holds at most one pending
// notification, so a burst of events during a running cycle coalesces into
// exactly one follow-up cycle. A debounce window additionally absorbs
// editor-style bursts before the first cycle starts.
type Daemon struct {
	session  *Session
	debounce time.Duration
	cycle    CycleFunc
	log      *logging.Logger
	trigger  chan struct{}

	// PidFile, when set, is written at Run start and removed on exit.
	PidFile string
}

// NewDaemon creates a daemon for the given session.
func NewDaemon(session *Session, debounce time.Duration, cycle CycleFunc, log *logging.Logger) *Daemon {
	if log == nil {
		log = logging.WithFields(map[string]any{"component": "daemon"})
	}
	return &Daemon{
		session:  session,
		debounce: debounce,
		cycle:    cycle,
		log:      log,
		trigger:  make(chan struct{}, 1),
	}
}

// Notify schedules a sync cycle. Safe from any goroutine; notifications
// arriving while one is already pending are coalesced.
func (d *Daemon) Notify() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Pump forwards watcher events into cycle notifications until the event
// channel closes.
func (d *Daemon) Pump(events <-chan fsnotify.Event) {
	for range events {
		d.Notify()
	}
}

// Run executes the sync loop until ctx is cancelled. An initial cycle runs
// immediately so the target converges even if the source never changes.
func (d *Daemon) Run(ctx context.Context) error {
	if d.PidFile != "" {
		if err := d.writePidFile(); err != nil {
			return err
		}
		defer os.Remove(d.PidFile)
	}

	d.log.Info("mirror daemon started", map[string]any{
		"source":      d.session.Source,
		"target":      d.session.Target,
		"session":     d.session.ID.String(),
		"debounce_ms": d.debounce.Milliseconds(),
	})

	d.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("mirror daemon stopping")
			return ctx.Err()
		case <-d.trigger:
			if !d.absorb(ctx) {
				d.log.Info("mirror daemon stopping")
				return ctx.Err()
			}
			d.runCycle(ctx)
		}
	}
}

// absorb waits until the trigger stream has been quiet for the debounce
// window. Returns false if the context was cancelled while waiting.
func (d *Daemon) absorb(ctx context.Context) bool {
	if d.debounce <= 0 {
		return true
	}
	timer := time.NewTimer(d.debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-d.trigger:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(d.debounce)
		case <-timer.C:
			return true
		}
	}
}

// runCycle executes one cycle. Failures are logged, never fatal; the next
// change triggers a retry.
func (d *Daemon) runCycle(ctx context.Context) {
	start := time.Now()
	if err := d.cycle(ctx); err != nil {
		d.log.ErrorErr("sync cycle failed", err, map[string]any{
			"session": d.session.ID.String(),
		})
		return
	}
	d.log.Debug("sync cycle complete", map[string]any{
		"session":     d.session.ID.String(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (d *Daemon) writePidFile() error {
	if err := os.MkdirAll(filepath.Dir(d.PidFile), 0755); err != nil {
		return fmt.Errorf("create pidfile dir: %w", err)
	}
	return fsutil.AtomicWrite(d.PidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// SyncCycle builds the real cycle: force-save the session checkpoint on the
// source, then restore it against the target. A save skipped by the busy
// guard leaves the target on its previous state.
func SyncCycle(src, tgt *checkpoint.Manager, session *Session, log *logging.Logger) CycleFunc {
	return func(ctx context.Context) error {
		res, err := src.Save(ctx, checkpoint.SaveOptions{ID: session.ID, Force: true})
		if err != nil {
			return fmt.Errorf("capture source: %w", err)
		}
		if res.Skipped {
			log.Warn("source busy, sync deferred", map[string]any{
				"session":    session.ID.String(),
				"busy_state": res.BusyState,
			})
			return nil
		}
		if _, err := tgt.Restore(ctx, session.ID); err != nil {
			return fmt.Errorf("replay onto target: %w", err)
		}
		return nil
	}
}
