package media

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DeviceWatcher watches a device directory for camera nodes appearing or
// disappearing and calls the registered handler once per burst of changes.
type DeviceWatcher struct {
	dir      string
	prefix   string
	debounce time.Duration
	onChange func()
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// DeviceWatcherOption configures a DeviceWatcher.
type DeviceWatcherOption func(*DeviceWatcher)

// WithWatchDir overrides the watched directory. Default is /dev.
func WithWatchDir(dir string) DeviceWatcherOption {
	return func(w *DeviceWatcher) {
		w.dir = dir
	}
}

// WithHotplugDebounce sets how long to wait for a burst of events to settle.
// Default is 500ms; USB cameras create several nodes at once.
func WithHotplugDebounce(d time.Duration) DeviceWatcherOption {
	return func(w *DeviceWatcher) {
		w.debounce = d
	}
}

// NewDeviceWatcher creates a watcher that calls onChange after video nodes change.
func NewDeviceWatcher(onChange func(), logger *slog.Logger, opts ...DeviceWatcherOption) *DeviceWatcher {
	w := &DeviceWatcher{
		dir:      "/dev",
		prefix:   "video",
		debounce: 500 * time.Millisecond,
		onChange: onChange,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It returns an error if the directory cannot be watched.
func (w *DeviceWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if addErr := watcher.Add(w.dir); addErr != nil {
		watcher.Close()
		return addErr
	}

	done := make(chan struct{})
	w.mu.Lock()
	ctx, w.cancel = context.WithCancel(ctx)
	w.watcher = watcher
	w.done = done
	w.mu.Unlock()

	w.logger.Info("Device watcher started", "dir", w.dir, "debounce", w.debounce)
	go w.watch(ctx, watcher, done)
	return nil
}

// Stop ends watching and waits for the loop to exit. Safe to call more than once.
func (w *DeviceWatcher) Stop() error {
	w.mu.Lock()
	cancel, watcher, done := w.cancel, w.watcher, w.done
	w.cancel, w.watcher = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	err := watcher.Close()
	<-done
	return err
}

func (w *DeviceWatcher) watch(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Debug("Device watcher stopped")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(event.Name), w.prefix) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}

			w.logger.Debug("Video node change", "name", event.Name, "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Device watcher error", "error", err)
		}
	}
}
