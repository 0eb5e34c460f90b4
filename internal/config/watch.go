// internal/config/watch.go
package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the file whenever it changes and hands every valid result
// to apply. An invalid edit is logged and ignored; the previous
// configuration stays in effect. It blocks until ctx is done.
//
// The directory is watched rather than the file so that editors that
// replace the file by rename are seen too.
func Watch(ctx context.Context, path, envFile string, log *slog.Logger, apply func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			cfg, err := Load(path, envFile)
			if err != nil {
				log.Warn("config reload rejected", "path", path, "error", err)
				continue
			}
			log.Info("config reloaded", "path", path)
			apply(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", "error", err)
		}
	}
}
