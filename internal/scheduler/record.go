package scheduler

import (
	"context"
	"time"

	"github.com/aristath/gidterm/internal/interpret"
)

// RunRecord captures one execution attempt of a task. Records are
// append-only; a task accumulates one per attempt across restarts.
type RunRecord struct {
	ID        string // Unique record identifier
	TaskID    string // Namespaced task identifier
	Attempt   int    // 1-based attempt number
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	ExitCode  int
	Cancelled bool             // Terminated by operator or shutdown, not a real failure
	SpawnErr  string           // Set when the process never started
	State     *interpret.State // Semantic snapshot at completion
	Tail      []string         // Tail-truncated output lines
}

// RecordStore persists run records. The scheduler treats persistence as
// best-effort: store failures are logged, never fatal to the run.
type RecordStore interface {
	SaveRecord(ctx context.Context, rec *RunRecord) error
}

func cloneRecord(r *RunRecord) *RunRecord {
	cp := *r
	if r.State != nil {
		cp.State = r.State.Clone()
	}
	if r.Tail != nil {
		cp.Tail = append([]string(nil), r.Tail...)
	}
	return &cp
}
