package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/llm-lab/mockllm/internal/config"
)

const watchDebounce = 300 * time.Millisecond

// Watch reloads the kernel when files under the config root change.
// Bursts of events coalesce into one reload. Blocks until ctx is done.
func (h *Handle) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	paths := config.DirPaths(h.root)
	for _, dir := range []string{paths.Root, paths.ModelsDir, paths.ScriptsDir} {
		if err := watcher.Add(dir); err != nil {
			h.log.Warn("failed to watch directory", "path", dir, "error", err)
		}
	}

	var mu sync.Mutex
	var timer *time.Timer
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			if _, reloaded, err := h.Reload(); err != nil {
				h.log.Error("watch reload failed", "error", err)
			} else if reloaded {
				h.log.Info("watch reload applied")
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.log.Warn("config watch error", "error", err)
		}
	}
}
