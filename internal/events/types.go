package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask  = "task"
	TopicGraph = "graph"
)

// Event type constants
const (
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskOutput    = "task.output"
	EventTypeTaskMetrics   = "task.metrics"
	EventTypeTaskError     = "task.error"
	EventTypeTaskFinished  = "task.finished"
	EventTypeGraphProgress = "graph.progress"
	EventTypeDefsChanged   = "graph.definitions_changed"
)

// TaskStartedEvent is published when a task's process spawns.
type TaskStartedEvent struct {
	ID        string
	Command   string
	Attempt   int // 1-based run attempt, incremented across restarts
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskOutputEvent carries a chunk of raw terminal output.
type TaskOutputEvent struct {
	ID        string
	Chunk     []byte
	Timestamp time.Time
}

func (e TaskOutputEvent) EventType() string { return EventTypeTaskOutput }
func (e TaskOutputEvent) TaskID() string    { return e.ID }

// TaskMetricsEvent is published when a task's semantic state advances.
type TaskMetricsEvent struct {
	ID        string
	Progress  float64
	Phase     string
	Timestamp time.Time
}

func (e TaskMetricsEvent) EventType() string { return EventTypeTaskMetrics }
func (e TaskMetricsEvent) TaskID() string    { return e.ID }

// TaskErrorEvent surfaces a parser-detected error token. It is a soft
// signal; the process exit code decides the task outcome.
type TaskErrorEvent struct {
	ID        string
	Message   string
	Timestamp time.Time
}

func (e TaskErrorEvent) EventType() string { return EventTypeTaskError }
func (e TaskErrorEvent) TaskID() string    { return e.ID }

// TaskFinishedEvent is published on any terminal transition.
type TaskFinishedEvent struct {
	ID        string
	Success   bool
	ExitCode  int
	Cancelled bool
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFinishedEvent) EventType() string { return EventTypeTaskFinished }
func (e TaskFinishedEvent) TaskID() string    { return e.ID }

// GraphProgressEvent is published after every status transition.
type GraphProgressEvent struct {
	Total     int
	Pending   int
	Running   int
	Succeeded int
	Failed    int
	Blocked   int
	Timestamp time.Time
}

func (e GraphProgressEvent) EventType() string { return EventTypeGraphProgress }
func (e GraphProgressEvent) TaskID() string    { return "" }

// DefinitionsChangedEvent is published when a watched task-definition file
// changes on disk. The running graph is never restructured; consumers decide
// whether to reload.
type DefinitionsChangedEvent struct {
	Path      string
	Timestamp time.Time
}

func (e DefinitionsChangedEvent) EventType() string { return EventTypeDefsChanged }
func (e DefinitionsChangedEvent) TaskID() string    { return "" }
