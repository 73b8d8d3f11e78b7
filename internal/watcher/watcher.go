package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"interlink/internal/logger"
)

// Watcher calls onChange, debounced, when one of a set of files is written or
// replaced. Directories are watched rather than the files so that editors which
// swap files in are noticed.
type Watcher struct {
	paths    []string
	onChange func(path string)
	debounce time.Duration
	log      logger.Logger
}

// New creates a watcher for paths
func New(paths []string, onChange func(path string), log logger.Logger) *Watcher {
	return &Watcher{
		paths:    paths,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		log:      log.WithComponent("watcher"),
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Watch blocks until ctx is cancelled or the underlying watcher fails
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	watchedDirs := make(map[string]bool)
	fileSet := make(map[string]bool)

	for _, path := range w.paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("cannot resolve path")
			continue
		}

		dir := filepath.Dir(absPath)
		if !watchedDirs[dir] {
			if err := fsw.Add(dir); err != nil {
				w.log.Warn().Err(err).Str("dir", dir).Msg("failed to watch directory")
				continue
			}
			watchedDirs[dir] = true
		}

		fileSet[absPath] = true
		w.log.Info().Str("path", absPath).Msg("watching for changes")
	}

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil || !fileSet[absPath] {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			mu.Lock()
			if t, exists := timers[absPath]; exists {
				t.Stop()
			}
			timers[absPath] = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				w.log.Info().Str("path", absPath).Msg("file changed")
				w.onChange(absPath)
			})
			mu.Unlock()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
