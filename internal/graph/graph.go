package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/toposort"
)

// Graph is an immutable-after-Build set of tasks with dependency edges.
// Only per-task Status fields mutate at runtime, and only through Mark/Reset.
type Graph struct {
	mu         sync.RWMutex
	tasks      map[string]*Task
	dependents map[string][]string // taskID -> tasks that depend on it
	order      []string            // deterministic topological order
}

// Build validates a list of task definitions and constructs a Graph.
// Fails with DuplicateTaskError, UnknownDependencyError or CycleError;
// no partial graph is ever returned.
func Build(defs []Definition) (*Graph, error) {
	tasks := make([]*Task, 0, len(defs))
	for i, def := range defs {
		tasks = append(tasks, &Task{
			ID:        def.Name,
			Command:   def.Command,
			DependsOn: append([]string(nil), def.DependsOn...),
			Priority:  def.Priority,
			Type:      def.Type,
			Order:     i,
			Status:    StatusPending,
		})
	}
	return build(tasks)
}

// Merge composes a workspace from multiple projects. Every task ID and every
// bare dependency reference is prefixed with "project:". References already
// containing a namespace separator are taken as explicit cross-project
// dependencies and left untouched; nothing is inferred.
func Merge(projects []Project) (*Graph, error) {
	var tasks []*Task
	order := 0
	for _, proj := range projects {
		for _, def := range proj.Tasks {
			deps := make([]string, 0, len(def.DependsOn))
			for _, dep := range def.DependsOn {
				deps = append(deps, namespaceRef(proj.Name, dep))
			}
			tasks = append(tasks, &Task{
				ID:        proj.Name + ":" + def.Name,
				Command:   def.Command,
				DependsOn: deps,
				Priority:  def.Priority,
				Type:      def.Type,
				Order:     order,
				Status:    StatusPending,
			})
			order++
		}
	}
	return build(tasks)
}

// namespaceRef prefixes a dependency reference with the project name unless
// it is already written in namespaced form.
func namespaceRef(project, ref string) string {
	for _, r := range ref {
		if r == ':' {
			return ref
		}
	}
	return project + ":" + ref
}

func build(tasks []*Task) (*Graph, error) {
	g := &Graph{
		tasks:      make(map[string]*Task, len(tasks)),
		dependents: make(map[string][]string),
	}

	for _, task := range tasks {
		if _, exists := g.tasks[task.ID]; exists {
			return nil, &DuplicateTaskError{TaskID: task.ID}
		}
		g.tasks[task.ID] = task
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.tasks[depID]; !exists {
				return nil, &UnknownDependencyError{TaskID: task.ID, DependsOn: depID}
			}
			g.dependents[depID] = append(g.dependents[depID], task.ID)
		}
	}

	// Build edges in declaration order so the sort is deterministic for a
	// given input.
	var edges []toposort.Edge
	for _, task := range tasks {
		if len(task.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, task.ID})
			continue
		}
		for _, depID := range task.DependsOn {
			edges = append(edges, toposort.Edge{depID, task.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		if cycle := findCycle(tasks, g.tasks); len(cycle) > 0 {
			return nil, &CycleError{Cycle: cycle}
		}
		return nil, fmt.Errorf("dependency cycle: %w", err)
	}

	g.order = make([]string, 0, len(tasks))
	for _, id := range sorted {
		if id != nil {
			g.order = append(g.order, id.(string))
		}
	}
	if len(g.order) != len(g.tasks) {
		return nil, fmt.Errorf("topological sort lost %d tasks", len(g.tasks)-len(g.order))
	}

	return g, nil
}

// findCycle runs a depth-first search with a recursion-stack marker and
// returns the members of the first cycle it encounters, in traversal order.
func findCycle(ordered []*Task, tasks map[string]*Task) []string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(tasks))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = inStack
		stack = append(stack, id)
		for _, depID := range tasks[id].DependsOn {
			switch state[depID] {
			case inStack:
				// Trim the stack to the cycle entry point.
				for i, sid := range stack {
					if sid == depID {
						cycle = append(append([]string(nil), stack[i:]...), depID)
						return true
					}
				}
			case unvisited:
				if visit(depID) {
					return true
				}
			}
		}
		state[id] = done
		stack = stack[:len(stack)-1]
		return false
	}

	for _, task := range ordered {
		if state[task.ID] == unvisited && visit(task.ID) {
			return cycle
		}
	}
	return nil
}

// Ready returns the IDs of every task that is pending with all dependencies
// succeeded, sorted by priority (higher first) then declaration order.
// Repeated calls without intervening status changes return the same set.
func (g *Graph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		task := g.tasks[id]
		if task.Status != StatusPending {
			continue
		}
		satisfied := true
		for _, depID := range task.DependsOn {
			if g.tasks[depID].Status != StatusSucceeded {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		a, b := g.tasks[ready[i]], g.tasks[ready[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Order < b.Order
	})
	return ready
}

// Mark applies a one-way status transition. Legal moves are
// Pending -> Running, Running -> {Succeeded, Failed}, and Pending -> Failed
// for spawn failures; anything else is rejected with InvalidTransitionError
// and the stored status is unchanged.
func (g *Graph) Mark(taskID string, status Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	legal := (task.Status == StatusPending && (status == StatusRunning || status == StatusFailed)) ||
		(task.Status == StatusRunning && (status == StatusSucceeded || status == StatusFailed))
	if !legal {
		return &InvalidTransitionError{TaskID: taskID, From: task.Status, To: status}
	}

	task.Status = status
	return nil
}

// Reset returns a terminal task to StatusPending so the graph re-evaluates
// its readiness. Refused while the task itself or any transitive dependent
// is running.
func (g *Graph) Reset(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	if task.Status == StatusRunning {
		return &InvalidTransitionError{TaskID: taskID, From: StatusRunning, To: StatusPending}
	}
	if task.Status == StatusPending {
		return nil
	}
	for _, depID := range g.downstream(taskID) {
		if g.tasks[depID].Status == StatusRunning {
			return fmt.Errorf("task %q: cannot reset while dependent %q is running", taskID, depID)
		}
	}

	task.Status = StatusPending
	return nil
}

// downstream returns all transitive dependents of taskID. Caller holds g.mu.
func (g *Graph) downstream(taskID string) []string {
	var out []string
	seen := map[string]bool{taskID: true}
	queue := append([]string(nil), g.dependents[taskID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		queue = append(queue, g.dependents[id]...)
	}
	return out
}

// Report returns the task's externally visible status: StatusBlocked for a
// pending task with a failed ancestor, the stored status otherwise.
func (g *Graph) Report(taskID string) (Status, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return StatusPending, false
	}
	if task.Status == StatusPending && g.blocked()[taskID] {
		return StatusBlocked, true
	}
	return task.Status, true
}

// blocked returns the set of task IDs downstream of a failed task.
// Caller holds g.mu (read or write).
func (g *Graph) blocked() map[string]bool {
	set := make(map[string]bool)
	for id, task := range g.tasks {
		if task.Status != StatusFailed {
			continue
		}
		for _, depID := range g.downstream(id) {
			set[depID] = true
		}
	}
	return set
}

// Get returns a copy of the task with the given ID.
func (g *Graph) Get(taskID string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks in topological order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, cloneTask(g.tasks[id]))
	}
	return tasks
}

// Counts summarizes task statuses for progress reporting. Blocked tasks are
// counted separately from pending ones.
type Counts struct {
	Total     int
	Pending   int
	Running   int
	Succeeded int
	Failed    int
	Blocked   int
}

// Counts returns the current status tally.
func (g *Graph) Counts() Counts {
	g.mu.RLock()
	defer g.mu.RUnlock()

	blocked := g.blocked()
	c := Counts{Total: len(g.tasks)}
	for id, task := range g.tasks {
		switch task.Status {
		case StatusPending:
			if blocked[id] {
				c.Blocked++
			} else {
				c.Pending++
			}
		case StatusRunning:
			c.Running++
		case StatusSucceeded:
			c.Succeeded++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Quiescent reports whether the graph has reached a terminal state: nothing
// running and every remaining pending task either blocked or lacking a
// satisfiable dependency chain.
func (g *Graph) Quiescent() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	blocked := g.blocked()
	for id, task := range g.tasks {
		switch task.Status {
		case StatusRunning:
			return false
		case StatusPending:
			if !blocked[id] {
				return false
			}
		}
	}
	return true
}
