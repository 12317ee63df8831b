package interpret

// ValueKind discriminates the typed metric values a parser may extract.
type ValueKind int

const (
	KindFloat   ValueKind = iota // Numeric gauge
	KindInt                      // Integer counter
	KindPercent                  // Percentage, normalized to 0..1
	KindLabel                    // Free-text phase/enum label
)

// Value is one typed metric value.
type Value struct {
	Kind  ValueKind
	Float float64 // KindFloat, KindPercent
	Int   int64   // KindInt
	Label string  // KindLabel
}

// FloatValue builds a numeric gauge value.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// IntValue builds an integer counter value.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// PercentValue builds a normalized percentage value.
func PercentValue(v float64) Value { return Value{Kind: KindPercent, Float: v} }

// LabelValue builds a free-text label value.
func LabelValue(v string) Value { return Value{Kind: KindLabel, Label: v} }

// AsFloat returns the numeric representation of the value, if it has one.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindFloat, KindPercent:
		return v.Float, true
	case KindInt:
		return float64(v.Int), true
	}
	return 0, false
}

// State is the evolving semantic view of one task's output: extracted
// metrics, a progress estimate, the current phase label, and a monotonically
// appended list of detected errors. It is owned by a single Session and is
// rebuilt from scratch on task restart.
type State struct {
	Progress float64 // 0..1; stays 0 until a progress signal is seen
	Metrics  map[string]Value
	Phase    string
	Errors   []string
}

// NewState returns an empty semantic state.
func NewState() *State {
	return &State{Metrics: make(map[string]Value)}
}

// Set stores a metric value under name.
func (s *State) Set(name string, v Value) {
	if s.Metrics == nil {
		s.Metrics = make(map[string]Value)
	}
	s.Metrics[name] = v
}

// AddError appends a detected error message. The list only grows.
func (s *State) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// Clone returns an independent deep copy, safe to hand to observers while
// the original keeps evolving.
func (s *State) Clone() *State {
	cp := &State{
		Progress: s.Progress,
		Phase:    s.Phase,
		Metrics:  make(map[string]Value, len(s.Metrics)),
	}
	for k, v := range s.Metrics {
		cp.Metrics[k] = v
	}
	if s.Errors != nil {
		cp.Errors = append([]string(nil), s.Errors...)
	}
	return cp
}
