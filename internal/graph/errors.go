package graph

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle found during Build.
// Cycle holds the participating task IDs in traversal order.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// UnknownDependencyError reports a dependency reference to a task that does
// not exist in the graph.
type UnknownDependencyError struct {
	TaskID    string
	DependsOn string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.TaskID, e.DependsOn)
}

// DuplicateTaskError reports a task ID collision at load time.
type DuplicateTaskError struct {
	TaskID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("duplicate task ID %q", e.TaskID)
}

// InvalidTransitionError reports an illegal status transition. The mutation
// it describes was rejected as a no-op.
type InvalidTransitionError struct {
	TaskID string
	From   Status
	To     Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %q: invalid transition %s -> %s", e.TaskID, e.From, e.To)
}
