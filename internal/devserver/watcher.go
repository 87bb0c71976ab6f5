package devserver

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceDelay is the default delay for batching file system events.
const DebounceDelay = 100 * time.Millisecond

// CatalogWatcher reloads a Catalog when its file changes.
//
// The parent directory is watched rather than the file, so editors that
// replace the file by rename are handled.
type CatalogWatcher struct {
	catalog  *Catalog
	path     string
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	onReload func(err error)

	debounceDelay time.Duration
	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	done    chan struct{}
	stopped chan struct{}
}

// NewCatalogWatcher creates a watcher for the catalog file at path.
// onReload, when non-nil, is called after every reload attempt.
// Call Start to begin watching and Close when done.
func NewCatalogWatcher(catalog *Catalog, path string, logger *slog.Logger, onReload func(err error)) (*CatalogWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}
	return &CatalogWatcher{
		catalog:       catalog,
		path:          abs,
		watcher:       w,
		logger:        logger,
		onReload:      onReload,
		debounceDelay: DebounceDelay,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}, nil
}

// SetDebounceDelay sets the debounce delay. Must be called before Start.
func (cw *CatalogWatcher) SetDebounceDelay(d time.Duration) {
	cw.debounceDelay = d
}

// Start begins the event processing loop.
func (cw *CatalogWatcher) Start() {
	go cw.eventLoop()
}

// Close stops the watcher. After Close returns no further reloads happen.
func (cw *CatalogWatcher) Close() error {
	close(cw.done)
	err := cw.watcher.Close()
	<-cw.stopped

	cw.debounceMu.Lock()
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
		cw.debounceTimer = nil
	}
	cw.debounceMu.Unlock()
	return err
}

func (cw *CatalogWatcher) eventLoop() {
	defer close(cw.stopped)

	for {
		select {
		case <-cw.done:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			if cw.logger != nil {
				cw.logger.Warn("Catalog watcher error", "error", err)
			}
		}
	}
}

func (cw *CatalogWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != cw.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	cw.debounceMu.Lock()
	defer cw.debounceMu.Unlock()
	select {
	case <-cw.done:
		return
	default:
	}
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.debounceTimer = time.AfterFunc(cw.debounceDelay, cw.reload)
}

func (cw *CatalogWatcher) reload() {
	err := cw.catalog.Load(cw.path)
	if cw.logger != nil {
		if err != nil {
			cw.logger.Warn("Catalog reload failed, keeping previous contents", "path", cw.path, "error", err)
		} else {
			cw.logger.Info("Catalog reloaded", "path", cw.path, "products", len(cw.catalog.Items()))
		}
	}
	if cw.onReload != nil {
		cw.onReload(err)
	}
}
