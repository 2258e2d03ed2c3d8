package model

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/madxbind/internal/ctxlog"
	"github.com/vk/madxbind/internal/fsutil"
)

const debounce = 100 * time.Millisecond

// Watcher drops a DirLocator's cache whenever a model file below its
// directories changes.
type Watcher struct {
	// Changes receives the path of every changed model file after the cache
	// has been dropped. Sends never block; a slow reader misses paths.
	Changes <-chan string

	changes  chan string
	locator  *DirLocator
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// Watch starts watching every directory of the locator, including
// subdirectories that exist at this point. The watcher runs until Stop is
// called or ctx is done.
func (l *DirLocator) Watch(ctx context.Context) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, root := range l.dirs {
		dirs, err := fsutil.Dirs(root)
		if err != nil {
			fw.Close()
			return nil, err
		}
		for _, dir := range dirs {
			if err := fw.Add(dir); err != nil {
				fw.Close()
				return nil, err
			}
		}
	}

	ch := make(chan string, 16)
	w := &Watcher{
		Changes: ch,
		changes: ch,
		locator: l,
		logger:  ctxlog.FromContext(ctx),
		watcher: fw,
		done:    make(chan struct{}),
	}
	go w.loop(ctx)
	return w, nil
}

// Stop closes the watcher and waits for it to exit.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.watcher.Close()
		<-w.done
		close(w.changes)
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, FileSuffix) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[event.Name] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			for file, t := range pending {
				if now.Sub(t) < debounce {
					continue
				}
				delete(pending, file)
				w.locator.Invalidate()
				w.logger.Debug("Model file changed, definitions reloaded on next lookup.", "file", file)
				select {
				case w.changes <- file:
				default:
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Model watcher error.", "error", err)
		}
	}
}
