package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the Holder whenever the config file changes on disk.
// Invalid or unreadable files are logged and ignored; the previous config
// stays in effect. Blocks until ctx is canceled.
//
// The parent directory is watched rather than the file itself: editors
// typically replace the file via rename, which drops a file-level watch.
func Watch(ctx context.Context, holder *Holder, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(holder.Path())
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watching %s: %w", dir, err)
	}

	logger.Debug("config watcher started", slog.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Name != holder.Path() {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			cfg, err := Load(holder.Path(), logger)
			if err != nil {
				logger.Warn("config reload failed, keeping previous config",
					slog.String("error", err.Error()),
				)

				continue
			}

			if err := holder.Update(cfg); err != nil {
				logger.Warn("config reload rejected",
					slog.String("error", err.Error()),
				)

				continue
			}

			logger.Info("config reloaded", slog.String("path", holder.Path()))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}
