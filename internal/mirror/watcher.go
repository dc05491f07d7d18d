package mirror

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/ckpt-project/ckpt/pkg/logging"
)

// Watcher recursively watches a source tree and emits filtered change
// events. The .git directory and configured transient patterns are never
// reported, and directories created while watching are picked up.
type Watcher struct {
	fs      *fsnotify.Watcher
	root    string
	ignores []string
	log     *logging.Logger
	events  chan fsnotify.Event
}

// NewWatcher starts watching every non-ignored directory under root.
func NewWatcher(root string, ignores []string, log *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.WithFields(map[string]any{"component": "watcher"})
	}

	w := &Watcher{
		fs:      fsw,
		root:    root,
		ignores: ignores,
		log:     log,
		events:  make(chan fsnotify.Event, 64),
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Events returns the filtered event stream.
func (w *Watcher) Events() <-chan fsnotify.Event { return w.events }

// Close stops the underlying watcher.
func (w *Watcher) Close() error { return w.fs.Close() }

// Run pumps raw fsnotify events through the filter until ctx is done or
// the watcher closes. New directories are added to the watch set as they
// appear, so files created inside them are not missed.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.log.Warn("cannot watch new directory", map[string]any{
							"path": event.Name, "error": err.Error(),
						})
					}
				}
			}
			select {
			case w.events <- event:
			default:
				// Receiver is behind; dropping is fine since any event only
				// needs to trigger one sync cycle.
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", map[string]any{"error": err.Error()})
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Raced with a delete or lost permission; skip rather than fail.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// ignored reports whether a path is inside .git or matches an ignore
// pattern by base name.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == ".git" {
			return true
		}
		for _, pattern := range w.ignores {
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}
