package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/soyeahso/aide/internal/logging"
)

// WatchDebounce is how long the watcher waits after the last filesystem
// event before reloading.
var WatchDebounce = 200 * time.Millisecond

// Watch reloads the config file whenever it changes and hands the result to
// onChange. Configs that fail to parse or validate are logged and skipped.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, log *logging.Logger, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors and SaveRaw may replace the file, so watch the directory.
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	log.Debug().Str("path", path).Msg("watching config")

	reload := make(chan struct{}, 1)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(WatchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config watcher error")

		case <-reload:
			cfg, err := Load(path)
			if err != nil {
				log.Warn().Err(err).Msg("config reload failed")
				continue
			}
			if issues := Validate(&cfg); len(issues) > 0 {
				log.Warn().Str("issue", issues[0].String()).Int("count", len(issues)).Msg("reloaded config is invalid")
				continue
			}
			log.Info().Str("path", path).Msg("config reloaded")
			onChange(cfg)
		}
	}
}
