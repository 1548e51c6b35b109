package deployer

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/hsu-deployer/pkg/errors"
	"github.com/core-tools/hsu-deployer/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches bursts of filesystem events, such as a WAR
// being copied in chunks, into one notification.
const DefaultDebounce = 250 * time.Millisecond

// ChangeWatcher turns filesystem events under the app base and the config
// base into debounced change notifications. Periodic checks remain the
// fallback for changes it cannot observe, e.g. inside expanded directories.
type ChangeWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	events   chan struct{}
	logger   logging.Logger

	closeOnce sync.Once
}

func NewChangeWatcher(dirs []string, debounce time.Duration, logger logging.Logger) (*ChangeWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewIOError("failed to create filesystem watcher", err)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, errors.NewIOError("failed to watch directory", err).WithContext("path", dir)
		}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &ChangeWatcher{
		watcher:  watcher,
		debounce: debounce,
		events:   make(chan struct{}, 1),
		logger:   logger,
	}, nil
}

// Events delivers one value per debounced burst of changes
func (w *ChangeWatcher) Events() <-chan struct{} {
	return w.events
}

// Run forwards changes until ctx is done or the watcher is closed
func (w *ChangeWatcher) Run(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debugf("Filesystem change, path: %s, op: %s", event.Name, event.Op)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("Filesystem watcher error: %v", err)
		case <-fire:
			fire = nil
			select {
			case w.events <- struct{}{}:
			default:
			}
		}
	}
}

func (w *ChangeWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}
