package heuristics

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// WatchRules reloads the rule file at path into a whenever it changes, until
// ctx is cancelled. The parent directory is watched so that editors which
// replace the file by rename are handled. Invalid files are logged and the
// previous rules stay active. onReload, if non-nil, is called after each
// successful swap.
func WatchRules(ctx context.Context, path string, a *Analyzer, logger *slog.Logger, onReload func(*Rules)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	logger.Info("rules watcher: started", slog.String("path", abs))

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(reloadDebounce)
			timerCh = timer.C
		} else {
			timer.Reset(reloadDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("rules watcher: stopped")
			return nil

		case <-timerCh:
			r, loadErr := LoadRules(abs)
			if loadErr != nil {
				logger.Warn("rules watcher: reload failed", slog.String("path", abs), slog.String("error", loadErr.Error()))
				continue
			}
			a.SetRules(r)
			logger.Info("rules watcher: reloaded", slog.String("path", abs), slog.Int("categories", len(r.Categories)))
			if onReload != nil {
				onReload(r)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("rules watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
