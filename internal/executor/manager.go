package executor

import (
	"sync"
	"time"
)

// Manager tracks every live session so a global shutdown can terminate all
// running children and wait, with a bounded grace period, for them to exit.
//
// Usage pattern (typically in main):
//
//	mgr := executor.NewManager()
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer cancel()
//	go func() {
//		<-ctx.Done()
//		mgr.TerminateAll(5 * time.Second)
//	}()
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session // taskID -> live session
	bufCap   int
}

// NewManager creates a Manager using the default output buffer cap.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		bufCap:   DefaultBufferCap,
	}
}

// SetBufferCap overrides the per-session output buffer cap.
func (m *Manager) SetBufferCap(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufCap = n
}

// Start spawns command in a fresh PTY session for taskID and tracks it.
// Returns SpawnError without registering anything if the spawn fails.
func (m *Manager) Start(taskID, command string) (*Session, error) {
	m.mu.Lock()
	bufCap := m.bufCap
	m.mu.Unlock()

	s, err := start(taskID, command, bufCap)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[taskID] = s
	m.mu.Unlock()

	// Untrack once the child exits.
	go func() {
		<-s.done
		m.mu.Lock()
		if m.sessions[taskID] == s {
			delete(m.sessions, taskID)
		}
		m.mu.Unlock()
	}()

	return s, nil
}

// Get returns the live session for taskID, if any.
func (m *Manager) Get(taskID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[taskID]
	return s, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// TerminateAll signals every live session and waits until all have exited
// or the grace period (plus a short kill margin) elapses.
func (m *Manager) TerminateAll(grace time.Duration) {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		s.Terminate(grace)
	}

	deadline := time.After(grace + time.Second)
	for _, s := range live {
		select {
		case <-s.done:
		case <-deadline:
			return
		}
	}
}
