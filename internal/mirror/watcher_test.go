package mirror_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"

	"github.com/ckpt-project/ckpt/internal/mirror"
)

func newTestWatcher(t *testing.T, root string, ignores []string) <-chan fsnotify.Event {
	t.Helper()
	w, err := mirror.NewWatcher(root, ignores, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	return w.Events()
}

// waitFor drains events until one matches the predicate or the deadline hits.
func waitFor(t *testing.T, events <-chan fsnotify.Event, match func(fsnotify.Event) bool) fsnotify.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("expected event never arrived")
		}
	}
}

func TestWatcherReportsFileChanges(t *testing.T) {
	root := t.TempDir()
	events := newTestWatcher(t, root, nil)

	path := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0644))

	waitFor(t, events, func(ev fsnotify.Event) bool {
		return filepath.Base(ev.Name) == "main.go"
	})
}

func TestWatcherFiltersGitDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))
	events := newTestWatcher(t, root, nil)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "index"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.go"), []byte("x"), 0644))

	ev := waitFor(t, events, func(ev fsnotify.Event) bool {
		return !strings.Contains(ev.Name, string(filepath.Separator)+".git")
	})
	require.Equal(t, "real.go", filepath.Base(ev.Name))
}

func TestWatcherFiltersIgnorePatterns(t *testing.T) {
	root := t.TempDir()
	events := newTestWatcher(t, root, []string{"*.swp", "*.tmp"})

	require.NoError(t, os.WriteFile(filepath.Join(root, ".main.go.swp"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "scratch.tmp"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "kept.go"), []byte("x"), 0644))

	ev := waitFor(t, events, func(ev fsnotify.Event) bool { return true })
	require.Equal(t, "kept.go", filepath.Base(ev.Name))
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()
	events := newTestWatcher(t, root, nil)

	sub := filepath.Join(root, "pkg", "deep")
	require.NoError(t, os.MkdirAll(sub, 0755))

	// The new directory itself produces a create event; wait for it so the
	// recursive add has happened before writing inside.
	waitFor(t, events, func(ev fsnotify.Event) bool {
		return ev.Op&fsnotify.Create != 0
	})

	// Give the watch registration a moment on slower platforms.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "file.go"), []byte("x"), 0644))

	waitFor(t, events, func(ev fsnotify.Event) bool {
		return filepath.Base(ev.Name) == "file.go"
	})
}
