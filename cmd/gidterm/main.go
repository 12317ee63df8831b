package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/gidterm/internal/config"
	"github.com/aristath/gidterm/internal/events"
	"github.com/aristath/gidterm/internal/executor"
	"github.com/aristath/gidterm/internal/graph"
	"github.com/aristath/gidterm/internal/history"
	"github.com/aristath/gidterm/internal/interpret"
	"github.com/aristath/gidterm/internal/scheduler"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <graph.yml> [graph.yml ...]\n", os.Args[0])
		os.Exit(2)
	}
	paths := os.Args[1:]

	// Signal-aware context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := config.LoadDefaultSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
		os.Exit(1)
	}

	g, err := buildGraph(paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building task graph: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	defer bus.Close()

	procs := executor.NewManager()
	procs.SetBufferCap(settings.OutputBufferCap)

	sched := scheduler.New(scheduler.Config{
		ConcurrencyLimit: settings.ConcurrencyLimit,
		TerminateGrace:   time.Duration(settings.TerminateGraceSeconds) * time.Second,
		OutputTailLines:  settings.OutputTailLines,
	}, g, interpret.DefaultRegistry(), procs, bus)

	// Run-record persistence is best-effort; a broken store never blocks a run.
	if store := openStore(ctx, settings); store != nil {
		defer store.Close()
		sched.SetStore(store)
	}

	// Surface definition-file changes while the graph runs.
	if watcher, err := config.NewWatcher(bus); err != nil {
		log.Printf("WARNING: definition watcher unavailable: %v", err)
	} else {
		for _, path := range paths {
			if err := watcher.Add(path); err != nil {
				log.Printf("WARNING: cannot watch %s: %v", path, err)
			}
		}
		go watcher.Run(ctx)
	}

	go logEvents(bus.Subscribe("", 1024))

	runErr := sched.Run(ctx)
	if runErr != nil {
		log.Printf("Run interrupted: %v", runErr)
	}

	failed := printSummary(sched)
	if runErr != nil || failed > 0 {
		os.Exit(1)
	}
}

// buildGraph loads one project document into a bare graph, or several into
// a namespaced workspace graph.
func buildGraph(paths []string) (*graph.Graph, error) {
	if len(paths) == 1 {
		pf, err := config.LoadProject(paths[0])
		if err != nil {
			return nil, err
		}
		return graph.Build(pf.Definitions())
	}

	projects, err := config.LoadWorkspace(paths)
	if err != nil {
		return nil, err
	}
	return graph.Merge(projects)
}

// openStore opens the run-record store, or returns nil if it cannot.
func openStore(ctx context.Context, settings *config.Settings) *history.Store {
	path := settings.HistoryPath
	if path == "" {
		var err error
		if path, err = history.DefaultPath(); err != nil {
			log.Printf("WARNING: history disabled: %v", err)
			return nil
		}
	}
	store, err := history.NewStore(ctx, path)
	if err != nil {
		log.Printf("WARNING: history disabled: %v", err)
		return nil
	}
	return store
}

// logEvents reports task lifecycle events to the operator.
func logEvents(sub *events.Subscription) {
	for ev := range sub.C {
		switch e := ev.(type) {
		case events.TaskStartedEvent:
			log.Printf("task %s started (attempt %d): %s", e.ID, e.Attempt, e.Command)
		case events.TaskMetricsEvent:
			if e.Phase != "" {
				log.Printf("task %s: %3.0f%% [%s]", e.ID, e.Progress*100, e.Phase)
			} else {
				log.Printf("task %s: %3.0f%%", e.ID, e.Progress*100)
			}
		case events.TaskErrorEvent:
			log.Printf("task %s output error signal: %s", e.ID, e.Message)
		case events.TaskFinishedEvent:
			switch {
			case e.Cancelled:
				log.Printf("task %s cancelled after %s", e.ID, e.Duration.Round(time.Millisecond))
			case e.Success:
				log.Printf("task %s succeeded in %s", e.ID, e.Duration.Round(time.Millisecond))
			default:
				log.Printf("task %s failed (exit %d) after %s", e.ID, e.ExitCode, e.Duration.Round(time.Millisecond))
			}
		case events.DefinitionsChangedEvent:
			log.Printf("definitions changed on disk: %s (restart to apply)", e.Path)
		}
	}
}

// printSummary reports final task states and returns the failure count.
func printSummary(sched *scheduler.Scheduler) int {
	failed := 0
	fmt.Println()
	for _, snap := range sched.Snapshot() {
		fmt.Printf("  %-12s %s\n", snap.Status, snap.ID)
		if snap.Status == graph.StatusFailed {
			failed++
		}
	}
	return failed
}
