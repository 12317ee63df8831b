package scheduler

import (
	"github.com/aristath/gidterm/internal/graph"
	"github.com/aristath/gidterm/internal/interpret"
)

// TaskSnapshot is a read-only view of one task for external consumers.
// Status includes the derived blocked state; Live is the current semantic
// state for running tasks and nil otherwise.
type TaskSnapshot struct {
	ID       string
	Command  string
	Type     string
	Priority int
	Status   graph.Status
	Attempt  int
	Live     *interpret.State
	Tail     []string
	Records  []*RunRecord
}

// Snapshot returns the current state of every task, in topological order.
// It copies everything it hands out and never blocks the control loop
// beyond two short lock acquisitions.
func (s *Scheduler) Snapshot() []TaskSnapshot {
	tasks := s.graph.Tasks()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskSnapshot, 0, len(tasks))
	for _, task := range tasks {
		snap := TaskSnapshot{
			ID:       task.ID,
			Command:  task.Command,
			Type:     task.Type,
			Priority: task.Priority,
			Attempt:  s.attempts[task.ID],
		}
		if status, ok := s.graph.Report(task.ID); ok {
			snap.Status = status
		}
		if lt, ok := s.live[task.ID]; ok && lt.interp != nil && snap.Status == graph.StatusRunning {
			snap.Live = lt.interp.State()
			snap.Tail = append([]string(nil), lt.tail...)
		}
		for _, rec := range s.records[task.ID] {
			snap.Records = append(snap.Records, cloneRecord(rec))
		}
		out = append(out, snap)
	}
	return out
}

// History returns copies of the run records accumulated for one task, in
// execution order.
func (s *Scheduler) History(taskID string) []*RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.records[taskID]
	out := make([]*RunRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, cloneRecord(rec))
	}
	return out
}

// LiveState returns the live semantic state of a running task, or nil.
func (s *Scheduler) LiveState(taskID string) *interpret.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lt, ok := s.live[taskID]; ok && lt.interp != nil {
		return lt.interp.State()
	}
	return nil
}
