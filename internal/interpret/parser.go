package interpret

import (
	"bytes"
	"sync"
)

// Parser consumes one complete line of task output and updates the semantic
// state in place. Implementations must never fail on malformed input:
// unmatched content is simply not mapped to a metric.
type Parser interface {
	// Name identifies the parser in the registry.
	Name() string
	// ParseLine folds a single output line into the state.
	ParseLine(line string, st *State)
}

// Registry maps task-type annotations to registered parsers. A task type
// with no registered parser falls back to a pattern parser with an empty
// rule set, i.e. raw capture only.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser // parser name -> parser
	types   map[string]string // task type -> parser name
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[string]Parser),
		types:   make(map[string]string),
	}
}

// DefaultRegistry returns a registry with the built-in parsers registered:
// the generic pattern parser and the training-output parser.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(DefaultPatternParser(), "generic", "build", "test", "data_processing")
	r.Register(NewTrainingParser(), "training", "ml_training", "deep_learning")
	return r
}

// Register adds a parser and maps the given task types to it.
func (r *Registry) Register(p Parser, taskTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.parsers[p.Name()] = p
	for _, tt := range taskTypes {
		r.types[tt] = p.Name()
	}
}

// ForType returns the parser registered for the given task type. An unknown
// or empty type yields the raw-capture fallback.
func (r *Registry) ForType(taskType string) Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := r.types[taskType]; ok {
		if p, ok := r.parsers[name]; ok {
			return p
		}
	}
	return rawFallback
}

// rawFallback extracts nothing; output is still captured, just not mapped.
var rawFallback = NewPatternParser("raw", nil)

// Session binds a parser to one task run. It buffers partial lines split
// across stream chunks and owns the run's semantic state. Not safe for
// concurrent use; the scheduler feeds each session from a single goroutine.
type Session struct {
	parser  Parser
	partial []byte
	state   *State
}

// NewSession creates a session with a fresh state.
func NewSession(p Parser) *Session {
	return &Session{parser: p, state: NewState()}
}

// Consume folds a chunk of raw output into the semantic state. Bytes after
// the last line terminator are buffered until the line completes.
func (s *Session) Consume(chunk []byte) {
	s.partial = append(s.partial, chunk...)
	for {
		idx := bytes.IndexByte(s.partial, '\n')
		if idx < 0 {
			return
		}
		line := s.partial[:idx]
		s.partial = s.partial[idx+1:]
		// PTYs emit CRLF line endings.
		line = bytes.TrimSuffix(line, []byte{'\r'})
		s.parser.ParseLine(string(line), s.state)
	}
}

// Flush parses any buffered partial line. Called once when the stream ends.
func (s *Session) Flush() {
	if len(s.partial) == 0 {
		return
	}
	line := bytes.TrimSuffix(s.partial, []byte{'\r'})
	s.partial = nil
	s.parser.ParseLine(string(line), s.state)
}

// State returns a snapshot copy of the current semantic state.
func (s *Session) State() *State {
	return s.state.Clone()
}
