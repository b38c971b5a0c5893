package agent

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reloads a config file when its content changes and hands
// the new Config to a callback. Writes are debounced and a content hash
// filters out saves and touches that change nothing.
type ConfigWatcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config)
	logger   *slog.Logger

	lastHash [sha256.Size]byte
}

// NewConfigWatcher creates a watcher for path. A debounce of zero means
// 500ms.
func NewConfigWatcher(path string, debounce time.Duration, onChange func(*Config), logger *slog.Logger) *ConfigWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &ConfigWatcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
		logger:   logger.With("component", "config-watcher"),
	}
}

// Start watches until ctx is done. It blocks.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close()

	// Editors often replace the file, so the directory is watched.
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	if h, err := hashFile(abs); err == nil {
		w.lastHash = h
	}
	w.logger.Info("watching config file", "path", abs)

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("config watcher stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			fire = time.After(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)

		case <-fire:
			fire = nil
			w.reload(abs)
		}
	}
}

func (w *ConfigWatcher) reload(path string) {
	h, err := hashFile(path)
	if err != nil {
		w.logger.Warn("reading changed config failed", "error", err)
		return
	}
	if h == w.lastHash {
		w.logger.Debug("config unchanged")
		return
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		w.logger.Warn("invalid config, keeping the current one", "error", err)
		return
	}
	w.lastHash = h
	w.logger.Info("config reloaded", "path", path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

func hashFile(path string) ([sha256.Size]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(data), nil
}
