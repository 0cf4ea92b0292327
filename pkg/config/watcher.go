package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/beacon/pkg/dispatch"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// Watcher reloads a config file when it changes and hands each valid result to a
// callback. Invalid files are logged and skipped.
type Watcher struct {
	path     string
	logger   *observability.Logger
	onChange func(*Config)
	watcher  *fsnotify.Watcher
}

// NewWatcher watches the directory holding path, so editors that replace the file by
// rename are seen too.
func NewWatcher(path string, logger *observability.Logger, onChange func(*Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		logger:   logger.WithField("config", abs),
		onChange: onChange,
		watcher:  fw,
	}, nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFile(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("ignoring invalid config change")
		return
	}
	w.logger.Info("config reloaded")
	w.onChange(cfg)
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// ApplyRuntime pushes the runtime-mutable parts of cfg to d.
func ApplyRuntime(d *dispatch.Dispatcher, cfg *Config) {
	d.Apply(cfg.Dispatch.Settings)
}
