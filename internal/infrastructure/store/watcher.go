package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"compliance-lab/pkg/logger"
)

// Watcher reports collections whose files change on disk, including
// edits made by other processes. Bursts of events for one file are
// coalesced into a single callback after the debounce delay.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange func(collection string)
	watcher  *fsnotify.Watcher
	logger   *logger.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher starts watching dir. onChange is called from a timer
// goroutine and must be safe for concurrent use.
func NewWatcher(dir string, debounce time.Duration, onChange func(collection string), log *logger.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		watcher:  fsWatcher,
		logger:   log.WithComponent("store-watcher"),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Run processes events until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()

	w.logger.Info().Str("dir", w.dir).Msg("watching data directory")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if name, ok := CollectionFromPath(event.Name); ok && relevant(event.Op) {
				w.schedule(name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) schedule(collection string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[collection]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[collection] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, collection)
		w.mu.Unlock()

		w.logger.Debug().Str("collection", collection).Msg("collection changed on disk")
		w.onChange(collection)
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
	w.mu.Unlock()
	w.watcher.Close()
}

func relevant(op fsnotify.Op) bool {
	return op.Has(fsnotify.Write) || op.Has(fsnotify.Create) ||
		op.Has(fsnotify.Rename) || op.Has(fsnotify.Remove)
}

// CollectionFromPath maps <dir>/<name>.json to name. Temp files and the
// sequence file are not collections.
func CollectionFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".json") || base == sequencesFile {
		return "", false
	}
	name := strings.TrimSuffix(base, ".json")
	if validateName(name) != nil {
		return "", false
	}
	return name, true
}
