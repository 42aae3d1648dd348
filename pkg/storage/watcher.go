package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"moodiary/pkg/logger"
	"moodiary/pkg/models"
	"moodiary/pkg/performance"
)

// Watcher reloads an EntryStore when its file is changed by something other
// than this process, e.g. a hand edit or a restore from backup.
type Watcher struct {
	store     *EntryStore
	watcher   *fsnotify.Watcher
	debouncer *performance.Debouncer
	log       *logger.Logger

	// OnReload, if set, is called with the fresh view after each reload
	OnReload func(entries []models.DiaryEntry)
	// OnError, if set, is called when a reload fails
	OnError func(err error)
}

// NewWatcher watches the directory holding the store's file. Events for the
// file are coalesced over quiet before a reload.
func NewWatcher(store *EntryStore, quiet time.Duration, log *logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(store.Path())); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		store:     store,
		watcher:   fw,
		debouncer: performance.NewDebouncer(quiet),
		log:       log.WithComponent("watcher"),
	}, nil
}

// Run processes file events until ctx is cancelled, then releases the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		w.debouncer.Clear()
		w.watcher.Close()
	}()

	target := filepath.Clean(w.store.Path())

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			w.log.Debugw("File event", "op", event.Op.String(), "file", event.Name)
			w.debouncer.Debounce(target, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warnw("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	if !w.changedExternally() {
		return
	}

	entries, err := w.store.Load()
	if err != nil {
		// Keep serving the last good view; the next user action reports the error.
		w.log.Warnw("Reload after external change failed", "error", err)
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}

	w.log.Infow("Reloaded diary after external change", "count", len(entries))
	if w.OnReload != nil {
		w.OnReload(entries)
	}
}

// changedExternally skips events caused by the store's own writes
func (w *Watcher) changedExternally() bool {
	info, err := os.Stat(w.store.Path())
	if err != nil {
		// Removed: reload so the view empties.
		return true
	}
	return !w.store.WrittenByUs(info)
}
