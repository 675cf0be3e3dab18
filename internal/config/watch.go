package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 100 * time.Millisecond

// Watcher reloads Config whenever the global or project file backing src
// changes on disk, coalescing rapid edits with a debounce window.
type Watcher struct {
	src    Sources
	logger *slog.Logger
}

// NewWatcher builds a Watcher over src.
func NewWatcher(src Sources, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{src: src, logger: logger.With("component", "config.watch")}
}

// Watch watches the configured file(s) and sends a freshly reloaded Config
// on the returned channel after each settled change. The channel is closed
// when ctx is cancelled or the watcher cannot continue.
func (w *Watcher) Watch(ctx context.Context) (<-chan *Config, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := map[string]bool{}
	for _, path := range []string{w.src.GlobalPath, w.src.ProjectPath} {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if watched[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			w.logger.Warn("failed to watch config directory", "dir", dir, "error", err)
			continue
		}
		watched[dir] = true
	}

	out := make(chan *Config, 1)
	go w.loop(ctx, watcher, out)
	return out, nil
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher, out chan<- *Config) {
	defer close(out)
	defer watcher.Close()

	names := map[string]bool{}
	for _, path := range []string{w.src.GlobalPath, w.src.ProjectPath} {
		if path != "" {
			names[filepath.Base(path)] = true
		}
	}

	var debounce *time.Timer
	reload := func() {
		cfg, err := Load(w.src)
		if err != nil {
			w.logger.Warn("config reload failed, keeping previous config", "error", err)
			return
		}
		select {
		case out <- cfg:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !names[filepath.Base(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}
