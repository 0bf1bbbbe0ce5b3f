package automation

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/estateops/pkg/async"
)

// reloadDelay coalesces the burst of events editors produce on save
const reloadDelay = 250 * time.Millisecond

// Watch reloads the engine whenever the rules file changes, until ctx is
// cancelled. The directory is watched rather than the file so atomic
// rename-on-save is seen.
func (e *Engine) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	async.SafeGo(ctx, e.log, 0, "automation rules watcher", func(ctx context.Context) error {
		e.watchLoop(ctx, watcher, abs)
		return nil
	})
	return nil
}

func (e *Engine) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	defer watcher.Close()

	log := e.log.WithField("path", path)
	timer := time.NewTimer(reloadDelay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(reloadDelay)
			}
		case <-timer.C:
			if err := e.Reload(path); err != nil {
				log.WithError(err).Error("Failed to reload automation rules, keeping previous rules")
				continue
			}
			log.WithFields(logrus.Fields{"rules": e.RuleCount()}).Info("Automation rules reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("Rules watcher error")
		}
	}
}
