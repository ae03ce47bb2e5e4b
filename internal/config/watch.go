package config

import (
	"context"
	"os"
	"time"
)

// WatchCatalog reloads catalog.yaml on change and calls onUpdate with the latest
// catalog. It performs an initial load before starting the watch goroutine;
// invalid edits are reported through onError and the previous catalog stays in effect.
//
// Changes are detected by polling the modification time rather than through
// inotify: the catalog is usually a mounted ConfigMap or bind volume, where the
// file is swapped via symlink and inotify events are not delivered reliably.
// The catalog changes rarely, so an interval-bound delay is acceptable.
func WatchCatalog(ctx context.Context, path string, interval time.Duration, onUpdate func(*CatalogConfig), onError func(error)) error {
	if path == "" {
		path = "configs/catalog.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cfg, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if info.ModTime().Equal(lastMod) {
					continue
				}
				lastMod = info.ModTime()
				cfg, err := LoadCatalog(path)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}
