package config

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aristath/gidterm/internal/events"
)

// Watcher observes task-definition documents on disk and publishes a
// DefinitionsChangedEvent when one is rewritten. The running graph is never
// restructured; consumers decide whether to reload.
type Watcher struct {
	fsw *fsnotify.Watcher
	bus *events.Bus
}

// NewWatcher creates a watcher publishing to bus.
func NewWatcher(bus *events.Bus) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{fsw: fsw, bus: bus}, nil
}

// Add registers a definition file for watching.
func (w *Watcher) Add(path string) error {
	return w.fsw.Add(path)
}

// Run dispatches change events until ctx is cancelled. Rapid successive
// writes to the same path are coalesced within a short window.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	const quiet = 250 * time.Millisecond
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(quiet)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending[ev.Name] = time.Now()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("WARNING: definition watcher: %v", err)
		case now := <-ticker.C:
			for path, at := range pending {
				if now.Sub(at) < quiet {
					continue
				}
				delete(pending, path)
				w.bus.Publish(events.TopicGraph, events.DefinitionsChangedEvent{
					Path:      path,
					Timestamp: now,
				})
			}
		}
	}
}
