package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/meditrust/hospital-core/pkg/logger"
)

// Watcher reloads the configuration file at runtime and notifies registered
// callbacks. The gateway uses it to pick up rate-limit changes without a
// restart; only settings safe to swap mid-flight should be consumed from it.
type Watcher struct {
	configPath string
	logger     logger.Logger
	mu         sync.RWMutex
	callbacks  []func(*Config)
}

func NewWatcher(configPath string, log logger.Logger) *Watcher {
	return &Watcher{
		configPath: configPath,
		logger:     log,
		callbacks:  make([]func(*Config), 0),
	}
}

// OnChange registers a callback invoked with the freshly loaded config.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start blocks watching the config file until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.configPath); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	w.logger.Info("Configuration watcher started", "path", w.configPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				w.logger.Info("Configuration file changed, reloading", "file", event.Name)
				cfg, err := Load()
				if err != nil {
					w.logger.Error("Failed to reload configuration", "error", err)
					continue
				}
				w.notify(cfg)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Configuration watcher error", "error", err)

		case <-ctx.Done():
			w.logger.Info("Configuration watcher stopping")
			return nil
		}
	}
}

func (w *Watcher) notify(cfg *Config) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, fn := range w.callbacks {
		fn(cfg)
	}
}
