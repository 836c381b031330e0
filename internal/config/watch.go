package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	reloadAttempts = 15
	reloadDelay    = 30 * time.Millisecond
)

// Watch reloads the config file at path whenever it changes and passes each
// successfully loaded Config to onChange. The parent directory is watched so
// that editors replacing the file atomically are noticed. Watch blocks until
// ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %q: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if cfg := reload(ctx, abs); cfg != nil {
				onChange(cfg)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("config watcher error: %v", err)
		}
	}
}

// reload retries briefly because a writer may still be mid-way through the
// file when the event arrives.
func reload(ctx context.Context, path string) *Config {
	var lastErr error
	for i := 0; i < reloadAttempts; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reloadDelay):
		}
		cfg, err := LoadConfig(path)
		if err == nil {
			if err := ApplyEnvOverrides(cfg); err != nil {
				log.Printf("config reload: %v", err)
			}
			log.Printf("reloaded config from %q", path)
			return cfg
		}
		lastErr = err
	}
	log.Printf("config reload failed, keeping previous config: %v", lastErr)
	return nil
}
