package graph

// Status represents the lifecycle state of a task.
type Status int

const (
	StatusPending   Status = iota // Waiting for dependencies
	StatusRunning                 // Currently executing
	StatusSucceeded               // Finished with exit code 0
	StatusFailed                  // Finished with non-zero exit, spawn error, or cancellation

	// StatusBlocked is derived, never stored: a pending task with a failed
	// ancestor reports as blocked but keeps StatusPending internally.
	StatusBlocked
)

// String returns the human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusBlocked:
		return "blocked"
	}
	return "unknown"
}

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Definition describes one task as supplied by an external collaborator
// (a project file loader, a test, ...). Definitions are plain data; Build
// turns a list of them into a validated Graph.
type Definition struct {
	Name      string   // Unique within its project
	Command   string   // Shell command handed to the executor
	DependsOn []string // Task names this task depends on
	Priority  int      // Tie-break hint: higher starts first
	Type      string   // Parser selection annotation (empty = raw capture)
}

// Project pairs a project name with its task definitions, for workspace merging.
type Project struct {
	Name  string
	Tasks []Definition
}

// Task is one node of the graph. Only Status mutates after Build.
type Task struct {
	ID        string // Namespaced identifier ("project:name" or bare "name")
	Command   string
	DependsOn []string
	Priority  int
	Type      string
	Order     int // Declaration order, used for deterministic tie-breaking
	Status    Status
}

func cloneTask(t *Task) *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	return &cp
}
