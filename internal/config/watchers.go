package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
)

// ReloadCallback is invoked with the freshly-reloaded Config whenever
// the watched file changes.
type ReloadCallback func(Config)

// Watcher reloads path on write and notifies every registered
// callback with the full new Config. It applies no field itself;
// whatever a callback does with the new Config is the only effect of
// a reload.
type Watcher struct {
	path string
	log  logger.Logger

	mu        sync.Mutex
	callbacks []ReloadCallback

	watcher *fsnotify.Watcher
	stop    chan struct{}
}

func NewWatcher(path string, log logger.Logger) *Watcher {
	return &Watcher{path: path, log: log}
}

// RegisterWatcher adds cb to the set notified on every reload.
func (w *Watcher) RegisterWatcher(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching w.path for writes. Safe to call once.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.path); err != nil {
		fsw.Close()
		return err
	}

	w.watcher = fsw
	w.stop = make(chan struct{})

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config hot reload failed, keeping previous config", "path", w.path, "error", err)
		return
	}
	w.log.Info("config reloaded", "path", w.path)

	w.mu.Lock()
	callbacks := append([]ReloadCallback(nil), w.callbacks...)
	w.mu.Unlock()
	for _, cb := range callbacks {
		cb(cfg)
	}
}

// Stop halts the watch loop and releases the underlying fsnotify
// watcher.
func (w *Watcher) Stop() error {
	if w.stop != nil {
		close(w.stop)
	}
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
