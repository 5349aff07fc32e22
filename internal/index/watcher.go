package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 200 * time.Millisecond

// Invalidator is anything whose cached view must be dropped on change.
type Invalidator interface {
	Invalidate()
}

// EventCallback is called for every record file change seen by the watcher.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on root and invalidates inv whenever a
// record file changes outside the store (editor saves, sync tools, manual
// moves). Bursts of events are debounced into a single invalidation. It
// blocks until ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list.
func Watch(ctx context.Context, root string, inv Invalidator, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			inv.Invalidate()
			logger.Debug("watcher: cache invalidated")

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Files may have landed before the watch was registered.
					schedule()
					continue
				}
			}

			name := filepath.Base(absPath)
			if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".md") {
				continue
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			var kind string
			switch {
			case ev.Op&fsnotify.Create != 0:
				kind = "created"
			case ev.Op&fsnotify.Write != 0:
				kind = "updated"
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify fires Rename on the old path only; the new name
				// arrives as its own Create.
				kind = "deleted"
			default:
				continue
			}

			schedule()
			logger.Debug("watcher: record changed", slog.String("path", rel), slog.String("op", kind))
			if cb != nil {
				cb(kind, rel)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
