package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// SpawnError reports that a command could not be started. A task whose spawn
// failed must never be marked running.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitOutcome is the terminal result of one process run.
type ExitOutcome struct {
	Success   bool
	ExitCode  int
	Cancelled bool  // Terminate was requested before exit
	Err       error // Non-exit failure (I/O, wait error)
}

// Session owns one child process attached to a dedicated pseudo-terminal.
// It exposes the merged stdout/stderr byte stream through a capped Buffer,
// accepts input injection, and supports graceful termination.
type Session struct {
	TaskID string

	cmd       *exec.Cmd
	ptmx      *os.File
	out       *Buffer
	done      chan struct{}
	outcome   ExitOutcome
	cancelled atomic.Bool
	started   time.Time
}

// start allocates a PTY, spawns the command under /bin/sh attached to it,
// and begins draining the terminal into the session buffer.
func start(taskID, command string, bufCap int) (*Session, error) {
	// The shell would report a missing executable as exit 127 long after
	// the task was marked running; resolve simple commands up front so the
	// failure surfaces as a SpawnError instead.
	if bin := simpleCommandWord(command); bin != "" && !shellBuiltins[bin] {
		if _, err := exec.LookPath(bin); err != nil {
			return nil, &SpawnError{Command: command, Err: err}
		}
	}

	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	// pty.Start puts the child in its own session with the PTY as its
	// controlling terminal, so the child's process group can be signalled
	// as a unit via its negated pid.
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}

	s := &Session{
		TaskID:  taskID,
		cmd:     cmd,
		ptmx:    ptmx,
		out:     NewBuffer(bufCap),
		done:    make(chan struct{}),
		started: time.Now(),
	}

	go s.pump()
	return s, nil
}

// pump copies PTY output into the buffer until the child exits, then
// records the outcome. Runs in its own goroutine; the consumer is only ever
// suspended on the buffer, never on the child.
func (s *Session) pump() {
	_, copyErr := io.Copy(s.out, s.ptmx)
	// Reading a PTY master after the child side closes yields EIO on
	// Linux; that is the normal EOF signal, not a failure.
	if copyErr != nil && !errors.Is(copyErr, syscall.EIO) {
		s.outcome.Err = copyErr
	}

	waitErr := s.cmd.Wait()
	s.ptmx.Close()

	switch {
	case waitErr == nil:
		s.outcome.Success = true
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			s.outcome.ExitCode = exitErr.ExitCode()
		} else {
			s.outcome.Err = waitErr
		}
	}
	s.outcome.Cancelled = s.cancelled.Load()

	s.out.Close()
	close(s.done)
}

// shellBuiltins lists command words the shell resolves itself; LookPath
// cannot vouch for these.
var shellBuiltins = map[string]bool{
	"cd": true, "exit": true, "read": true, "set": true, "export": true,
	"exec": true, "wait": true, "trap": true, "eval": true, "ulimit": true,
	"umask": true, "shift": true, "unset": true, "true": true, "false": true,
	":": true, ".": true,
}

// simpleCommandWord returns the leading executable name of a plain command,
// or "" when the command uses shell syntax the preflight cannot reason about.
func simpleCommandWord(command string) string {
	if strings.ContainsAny(command, ";|&$(){}<>`\n") {
		return ""
	}
	fields := strings.Fields(command)
	if len(fields) == 0 || strings.Contains(fields[0], "=") {
		return ""
	}
	return fields[0]
}

// Output returns the session's byte stream buffer.
func (s *Session) Output() *Buffer { return s.out }

// StartedAt returns when the process was spawned.
func (s *Session) StartedAt() time.Time { return s.started }

// Input writes bytes to the task's terminal, for interactive control of
// long-running tasks.
func (s *Session) Input(p []byte) error {
	_, err := s.ptmx.Write(p)
	return err
}

// Wait suspends the caller until the child exits or ctx is cancelled.
// After Terminate has been requested it resolves within the grace period.
func (s *Session) Wait(ctx context.Context) (ExitOutcome, error) {
	select {
	case <-s.done:
		return s.outcome, nil
	case <-ctx.Done():
		return ExitOutcome{}, ctx.Err()
	}
}

// Done returns a channel closed when the child has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Terminate requests shutdown: SIGTERM to the child's process group, then
// SIGKILL once the grace period elapses without an exit.
func (s *Session) Terminate(grace time.Duration) {
	s.cancelled.Store(true)

	if s.cmd.Process == nil {
		return
	}
	pid := s.cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)

	go func() {
		select {
		case <-s.done:
		case <-time.After(grace):
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		}
	}()
}
