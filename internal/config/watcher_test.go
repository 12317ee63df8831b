package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/gidterm/internal/events"
)

func TestWatcherPublishesOnChange(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tasks.yml", backendYAML)

	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe(events.TopicGraph, 16)

	w, err := NewWatcher(bus)
	require.NoError(t, err)
	require.NoError(t, w.Add(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Two rapid writes coalesce into a single change notification.
	require.NoError(t, os.WriteFile(path, []byte(backendYAML+"# touched\n"), 0644))
	require.NoError(t, os.WriteFile(path, []byte(backendYAML+"# touched again\n"), 0644))

	select {
	case ev := <-sub.C:
		changed, ok := ev.(events.DefinitionsChangedEvent)
		require.True(t, ok, "unexpected event %T", ev)
		assert.Equal(t, path, changed.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for change event")
	}

	select {
	case ev := <-sub.C:
		t.Fatalf("Expected coalesced notification, got extra event %+v", ev)
	case <-time.After(600 * time.Millisecond):
	}
}

func TestWatcherStopsOnCancel(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	w, err := NewWatcher(bus)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
