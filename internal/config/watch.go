package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads cfg in place whenever path changes on disk, until ctx is
// cancelled. A reload that fails to parse is logged and skipped — the
// previous good config keeps running rather than falling back to defaults.
func Watch(ctx context.Context, path string, cfg *Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := ExpandHome(path)
	if err := watcher.Add(parentDir(dir)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != dir || (ev.Op&(fsnotify.Write|fsnotify.Create) == 0) {
					continue
				}
				reloaded, err := Load(path)
				if err != nil {
					slog.Warn("config hot-reload: skipping invalid edit", "path", path, "error", err)
					continue
				}
				cfg.ReplaceFrom(reloaded)
				slog.Info("config hot-reload: applied", "path", path, "hash", cfg.Hash())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config hot-reload: watcher error", "error", err)
			}
		}
	}()

	return nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
