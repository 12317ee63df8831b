package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/gidterm/internal/events"
	"github.com/aristath/gidterm/internal/executor"
	"github.com/aristath/gidterm/internal/graph"
	"github.com/aristath/gidterm/internal/interpret"
)

// Config configures a Scheduler.
type Config struct {
	ConcurrencyLimit int                  // Max simultaneously running tasks (default 4)
	TerminateGrace   time.Duration        // SIGTERM-to-SIGKILL grace (default 5s)
	OutputTailLines  int                  // Output lines retained per run (default 200)
	Retry            executor.RetryConfig // Spawn retry policy
}

// Scheduler is the control loop: it observes graph readiness, starts ready
// tasks in PTY sessions, routes their output through bound interpreters,
// records outcomes and re-evaluates readiness until the graph is exhausted
// or permanently blocked.
//
// The scheduler is the sole mutator of task status and the sole owner of
// each running task's live semantic state and process handle.
type Scheduler struct {
	cfg      Config
	graph    *graph.Graph
	registry *interpret.Registry
	procs    *executor.Manager
	breakers *executor.BreakerRegistry
	bus      *events.Bus
	store    RecordStore // optional

	mu       sync.Mutex
	limit    int
	live     map[string]*liveTask
	records  map[string][]*RunRecord
	attempts map[string]int
	wake     chan struct{}
}

// liveTask pairs a running task's process session with its interpreter
// session and a bounded output tail. Guarded by Scheduler.mu.
type liveTask struct {
	task    *graph.Task
	session *executor.Session
	interp  *interpret.Session
	attempt int

	tail     []string
	partial  []byte
	lastProg float64
	lastPh   string
	lastErrs int
}

// New creates a Scheduler for the given graph.
func New(cfg Config, g *graph.Graph, registry *interpret.Registry, procs *executor.Manager, bus *events.Bus) *Scheduler {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 4
	}
	if cfg.TerminateGrace <= 0 {
		cfg.TerminateGrace = 5 * time.Second
	}
	if cfg.OutputTailLines <= 0 {
		cfg.OutputTailLines = 200
	}
	if cfg.Retry == (executor.RetryConfig{}) {
		cfg.Retry = executor.DefaultRetryConfig()
	}
	if registry == nil {
		registry = interpret.DefaultRegistry()
	}

	return &Scheduler{
		cfg:      cfg,
		graph:    g,
		registry: registry,
		procs:    procs,
		breakers: executor.NewBreakerRegistry(),
		bus:      bus,
		limit:    cfg.ConcurrencyLimit,
		live:     make(map[string]*liveTask),
		records:  make(map[string][]*RunRecord),
		attempts: make(map[string]int),
		wake:     make(chan struct{}, 1),
	}
}

// SetStore attaches a run-record store. Must be called before Run.
func (s *Scheduler) SetStore(store RecordStore) { s.store = store }

// Run drives the graph to quiescence: every task succeeded, failed, or
// permanently blocked by a failed ancestor, with nothing running. On context
// cancellation every running session is terminated with the configured grace
// period and interrupted tasks are marked failed with a cancelled reason.
func (s *Scheduler) Run(ctx context.Context) error {
	var g errgroup.Group

	for {
		if ctx.Err() != nil {
			break
		}

		s.startReady(ctx, &g)

		s.mu.Lock()
		liveCount := len(s.live)
		s.mu.Unlock()
		if liveCount == 0 && s.graph.Quiescent() {
			break
		}

		select {
		case <-s.wake:
		case <-ctx.Done():
		}
	}

	if ctx.Err() != nil {
		// Global shutdown: signal every running session, wait bounded.
		s.procs.TerminateAll(s.cfg.TerminateGrace)
	}

	// Drain per-task goroutines; sessions have exited or been killed, so
	// this completes promptly.
	_ = g.Wait()

	return ctx.Err()
}

// startReady launches ready tasks up to the concurrency limit. Readiness
// evaluation, slot reservation and goroutine launch happen under one lock
// acquisition so no dependent can start against a stale dependency status.
func (s *Scheduler) startReady(ctx context.Context, g *errgroup.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.graph.Ready() {
		if _, running := s.live[id]; running {
			continue
		}
		if len(s.live) >= s.limit {
			return
		}

		task, ok := s.graph.Get(id)
		if !ok {
			continue
		}

		s.attempts[id]++
		lt := &liveTask{task: task, attempt: s.attempts[id]}
		s.live[id] = lt

		g.Go(func() error {
			s.runTask(ctx, lt)
			return nil
		})
	}
}

// runTask executes one attempt of one task: spawn, stream, wait, record.
func (s *Scheduler) runTask(ctx context.Context, lt *liveTask) {
	id := lt.task.ID

	session, err := s.procs.StartWithRetry(ctx, id, lt.task.Command, s.cfg.Retry, s.breakers)
	if err != nil {
		s.finishSpawnFailure(lt, err)
		return
	}

	if err := s.graph.Mark(id, graph.StatusRunning); err != nil {
		// Should not happen; do not leave an untracked process behind.
		log.Printf("ERROR: task %q: %v", id, err)
		session.Terminate(s.cfg.TerminateGrace)
		_, _ = session.Wait(context.Background())
		s.release(id)
		return
	}

	s.mu.Lock()
	lt.session = session
	lt.interp = interpret.NewSession(s.registry.ForType(lt.task.Type))
	s.mu.Unlock()

	s.publish(events.TopicTask, events.TaskStartedEvent{
		ID:        id,
		Command:   lt.task.Command,
		Attempt:   lt.attempt,
		Timestamp: session.StartedAt(),
	})
	s.publishProgress()

	s.pump(lt)

	// The buffer only closes after the child exits, so this resolves
	// immediately.
	outcome, _ := session.Wait(context.Background())
	s.finish(lt, outcome)
}

// pump drains the session buffer into the task's interpreter until the
// stream ends. It deliberately ignores context cancellation: after a
// termination request the child is killed, the buffer closes, and the pump
// ends having observed every produced byte in order.
func (s *Scheduler) pump(lt *liveTask) {
	buf := lt.session.Output()
	for {
		chunk, open := buf.Next()
		if len(chunk) > 0 {
			s.consume(lt, chunk)
		}
		if !open {
			return
		}
		<-buf.Ready()
	}
}

// consume feeds one chunk to the interpreter and the output tail, and
// publishes output/metric/error events for observers.
func (s *Scheduler) consume(lt *liveTask, chunk []byte) {
	s.mu.Lock()
	lt.interp.Consume(chunk)
	lt.appendTail(chunk, s.cfg.OutputTailLines)
	st := lt.interp.State()

	progressed := st.Progress != lt.lastProg || st.Phase != lt.lastPh
	lt.lastProg, lt.lastPh = st.Progress, st.Phase
	newErrs := st.Errors[lt.lastErrs:]
	lt.lastErrs = len(st.Errors)
	id := lt.task.ID
	s.mu.Unlock()

	now := time.Now()
	s.publish(events.TopicTask, events.TaskOutputEvent{ID: id, Chunk: chunk, Timestamp: now})
	if progressed {
		s.publish(events.TopicTask, events.TaskMetricsEvent{ID: id, Progress: st.Progress, Phase: st.Phase, Timestamp: now})
	}
	for _, msg := range newErrs {
		log.Printf("WARNING: task %q output matched error pattern: %s", id, msg)
		s.publish(events.TopicTask, events.TaskErrorEvent{ID: id, Message: msg, Timestamp: now})
	}
}

// appendTail folds a chunk into the bounded line tail. Caller holds s.mu.
func (lt *liveTask) appendTail(chunk []byte, limit int) {
	lt.partial = append(lt.partial, chunk...)
	for {
		idx := bytes.IndexByte(lt.partial, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(lt.partial[:idx]), "\r")
		lt.partial = lt.partial[idx+1:]
		lt.tail = append(lt.tail, line)
		if len(lt.tail) > limit {
			lt.tail = lt.tail[len(lt.tail)-limit:]
		}
	}
}

// finish records a completed attempt and applies the terminal transition.
// The exit code is authoritative: parser-detected errors never fail a task
// that exited zero.
func (s *Scheduler) finish(lt *liveTask, outcome executor.ExitOutcome) {
	id := lt.task.ID

	s.mu.Lock()
	lt.interp.Flush()
	state := lt.interp.State()
	if len(lt.partial) > 0 {
		lt.tail = append(lt.tail, string(lt.partial))
		lt.partial = nil
	}
	rec := &RunRecord{
		ID:        uuid.NewString(),
		TaskID:    id,
		Attempt:   lt.attempt,
		StartedAt: lt.session.StartedAt(),
		EndedAt:   time.Now(),
		Success:   outcome.Success,
		ExitCode:  outcome.ExitCode,
		Cancelled: outcome.Cancelled,
		State:     state,
		Tail:      append([]string(nil), lt.tail...),
	}
	s.records[id] = append(s.records[id], rec)
	s.mu.Unlock()

	status := graph.StatusFailed
	if outcome.Success {
		status = graph.StatusSucceeded
	}
	if err := s.graph.Mark(id, status); err != nil {
		log.Printf("ERROR: task %q: %v", id, err)
	}

	s.saveRecord(rec)

	s.publish(events.TopicTask, events.TaskFinishedEvent{
		ID:        id,
		Success:   outcome.Success,
		ExitCode:  outcome.ExitCode,
		Cancelled: outcome.Cancelled,
		Duration:  rec.EndedAt.Sub(rec.StartedAt),
		Timestamp: rec.EndedAt,
	})
	s.publishProgress()

	// The slot is released only after the terminal transition and its
	// events are out, so no successor's start can be observed before its
	// dependency's finish.
	s.release(id)
}

// finishSpawnFailure records an attempt that never started and marks the
// task failed. The task was never marked running.
func (s *Scheduler) finishSpawnFailure(lt *liveTask, spawnErr error) {
	id := lt.task.ID
	log.Printf("ERROR: task %q: %v", id, spawnErr)

	now := time.Now()
	rec := &RunRecord{
		ID:        uuid.NewString(),
		TaskID:    id,
		Attempt:   lt.attempt,
		StartedAt: now,
		EndedAt:   now,
		Success:   false,
		ExitCode:  -1,
		SpawnErr:  spawnErr.Error(),
		State:     interpret.NewState(),
	}

	s.mu.Lock()
	s.records[id] = append(s.records[id], rec)
	delete(s.live, id)
	s.mu.Unlock()

	if err := s.graph.Mark(id, graph.StatusFailed); err != nil {
		log.Printf("ERROR: task %q: %v", id, err)
	}

	s.saveRecord(rec)

	s.publish(events.TopicTask, events.TaskFinishedEvent{
		ID: id, Success: false, ExitCode: -1, Timestamp: now,
	})
	s.publishProgress()
	s.kick()
}

// release drops a live slot without recording an attempt.
func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
	s.kick()
}

// saveRecord persists a record if a store is attached. Best-effort.
func (s *Scheduler) saveRecord(rec *RunRecord) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.SaveRecord(ctx, rec); err != nil {
		log.Printf("WARNING: failed to persist run record for task %q: %v", rec.TaskID, err)
	}
}

// Restart resets a non-running terminal task to pending so readiness is
// re-evaluated. Dependents are not reset.
func (s *Scheduler) Restart(taskID string) error {
	if err := s.graph.Reset(taskID); err != nil {
		return err
	}
	s.publishProgress()
	s.kick()
	return nil
}

// Stop requests termination of one running task.
func (s *Scheduler) Stop(taskID string) error {
	s.mu.Lock()
	lt, ok := s.live[taskID]
	session := (*executor.Session)(nil)
	if ok {
		session = lt.session
	}
	s.mu.Unlock()

	if session == nil {
		return fmt.Errorf("task %q is not running", taskID)
	}
	session.Terminate(s.cfg.TerminateGrace)
	return nil
}

// StopAll requests termination of every running task.
func (s *Scheduler) StopAll() {
	s.procs.TerminateAll(s.cfg.TerminateGrace)
}

// SetConcurrencyLimit adjusts the maximum number of simultaneously running
// tasks. Takes effect on the next scheduling pass; running tasks are never
// interrupted by a lowered limit.
func (s *Scheduler) SetConcurrencyLimit(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	s.limit = n
	s.mu.Unlock()
	s.kick()
}

// Input forwards bytes to a running task's terminal.
func (s *Scheduler) Input(taskID string, p []byte) error {
	s.mu.Lock()
	lt, ok := s.live[taskID]
	session := (*executor.Session)(nil)
	if ok {
		session = lt.session
	}
	s.mu.Unlock()

	if session == nil {
		return fmt.Errorf("task %q is not running", taskID)
	}
	return session.Input(p)
}

// kick wakes the control loop without blocking.
func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) publish(topic string, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(topic, event)
	}
}

func (s *Scheduler) publishProgress() {
	if s.bus == nil {
		return
	}
	c := s.graph.Counts()
	s.bus.Publish(events.TopicGraph, events.GraphProgressEvent{
		Total:     c.Total,
		Pending:   c.Pending,
		Running:   c.Running,
		Succeeded: c.Succeeded,
		Failed:    c.Failed,
		Blocked:   c.Blocked,
		Timestamp: time.Now(),
	})
}
