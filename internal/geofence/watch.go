package geofence

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 200 * time.Millisecond

// WatchZoneFile re-imports path whenever it changes until ctx is done. The
// parent directory is watched so editors that replace the file are seen.
// Bursts of events are collapsed into a single reload.
func (m *Monitor) WatchZoneFile(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("zone watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("zone watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("zone watcher: %w", err)
	}

	go func() {
		defer w.Close()
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(reloadDebounce)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				m.log.Warn("zone_watch_error", zap.Error(err))
			case <-pending:
				pending = nil
				n, err := m.ImportFile(ctx, abs)
				if err != nil {
					m.log.Warn("zone_reload_failed", zap.String("path", abs), zap.Error(err))
					continue
				}
				m.log.Info("zone_reloaded", zap.String("path", abs), zap.Int("zones", n))
			}
		}
	}()
	return nil
}
