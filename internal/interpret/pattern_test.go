package interpret

import (
	"math"
	"regexp"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestDefaultPatternParser covers the built-in progress, phase and error
// patterns over typical build/test output.
func TestDefaultPatternParser(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantProgress float64
		wantPhase    string
		wantErrors   int
	}{
		{
			name:         "fraction progress",
			line:         "Processing file 3/10",
			wantProgress: 0.3,
		},
		{
			name:         "percent progress",
			line:         "Downloading... 45%",
			wantProgress: 0.45,
		},
		{
			name:         "fractional percent",
			line:         "done 87.5%",
			wantProgress: 0.875,
		},
		{
			name:      "phase label",
			line:      "Phase: compile",
			wantPhase: "compile",
		},
		{
			name:      "stage label",
			line:      "Stage: link",
			wantPhase: "link",
		},
		{
			name:       "error line",
			line:       "error: undefined symbol",
			wantErrors: 1,
		},
		{
			name:       "failed line case-insensitive",
			line:       "Build FAILED after 3s",
			wantErrors: 1,
		},
		{
			name:       "exception line",
			line:       "Unhandled exception in worker",
			wantErrors: 1,
		},
		{
			name: "plain output extracts nothing",
			line: "compiling main.go",
		},
		{
			name: "garbage input does not fail",
			line: "\x1b[31m%%//:::\x00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPatternParser()
			st := NewState()
			p.ParseLine(tt.line, st)

			if !almostEqual(st.Progress, tt.wantProgress) {
				t.Errorf("Expected progress %v, got %v", tt.wantProgress, st.Progress)
			}
			if st.Phase != tt.wantPhase {
				t.Errorf("Expected phase %q, got %q", tt.wantPhase, st.Phase)
			}
			if len(st.Errors) != tt.wantErrors {
				t.Errorf("Expected %d errors, got %v", tt.wantErrors, st.Errors)
			}
		})
	}
}

func TestPatternParserRules(t *testing.T) {
	p := NewPatternParser("custom", []Rule{
		{Metric: "items", Pattern: regexp.MustCompile(`items=(\d+)`), Kind: KindInt},
		{Metric: "rate", Pattern: regexp.MustCompile(`rate=([\d.]+)`), Kind: KindFloat},
		{Metric: "cache", Pattern: regexp.MustCompile(`cache hit ([\d.]+)%`), Kind: KindPercent},
		{Metric: "worker", Pattern: regexp.MustCompile(`worker=(\w+)`), Kind: KindLabel},
	})

	st := NewState()
	p.ParseLine("items=42 rate=3.5 cache hit 90% worker=alpha", st)

	if v, ok := st.Metrics["items"]; !ok || v.Int != 42 {
		t.Errorf("Expected items=42, got %+v", v)
	}
	if v, ok := st.Metrics["rate"]; !ok || !almostEqual(v.Float, 3.5) {
		t.Errorf("Expected rate=3.5, got %+v", v)
	}
	if v, ok := st.Metrics["cache"]; !ok || !almostEqual(v.Float, 0.9) {
		t.Errorf("Expected cache=0.9, got %+v", v)
	}
	if v, ok := st.Metrics["worker"]; !ok || v.Label != "alpha" {
		t.Errorf("Expected worker=alpha, got %+v", v)
	}
}

func TestPatternParserUnparseableValue(t *testing.T) {
	p := NewPatternParser("custom", []Rule{
		{Metric: "n", Pattern: regexp.MustCompile(`n=(\S+)`), Kind: KindInt},
	})

	st := NewState()
	p.ParseLine("n=oops", st)

	if _, ok := st.Metrics["n"]; ok {
		t.Errorf("Expected no metric for unparseable value, got %+v", st.Metrics["n"])
	}
}

// TestProgressMonotonicPerLine checks the latest matching line wins.
func TestProgressUpdates(t *testing.T) {
	p := DefaultPatternParser()
	st := NewState()

	p.ParseLine("step 1/4", st)
	p.ParseLine("step 2/4", st)
	p.ParseLine("step 3/4", st)

	if !almostEqual(st.Progress, 0.75) {
		t.Errorf("Expected progress 0.75, got %v", st.Progress)
	}
}

// TestSessionChunkSplit feeds a line split across chunk boundaries and
// expects a single parse once the terminator arrives.
func TestSessionChunkSplit(t *testing.T) {
	sess := NewSession(DefaultPatternParser())

	sess.Consume([]byte("Processing fi"))
	if st := sess.State(); st.Progress != 0 {
		t.Fatalf("Expected no progress before line completes, got %v", st.Progress)
	}

	sess.Consume([]byte("le 5/1"))
	sess.Consume([]byte("0\r\nPhase: ver"))
	st := sess.State()
	if !almostEqual(st.Progress, 0.5) {
		t.Errorf("Expected progress 0.5, got %v", st.Progress)
	}
	if st.Phase != "" {
		t.Errorf("Expected partial phase line unparsed, got %q", st.Phase)
	}

	sess.Consume([]byte("ify\n"))
	if st := sess.State(); st.Phase != "verify" {
		t.Errorf("Expected phase verify, got %q", st.Phase)
	}
}

func TestSessionFlush(t *testing.T) {
	sess := NewSession(DefaultPatternParser())

	sess.Consume([]byte("83%"))
	if st := sess.State(); st.Progress != 0 {
		t.Fatalf("Expected unterminated line held back, got progress %v", st.Progress)
	}

	sess.Flush()
	if st := sess.State(); !almostEqual(st.Progress, 0.83) {
		t.Errorf("Expected progress 0.83 after flush, got %v", st.Progress)
	}

	// Flush with nothing buffered is a no-op.
	sess.Flush()
}

func TestSessionStateIsolated(t *testing.T) {
	sess := NewSession(DefaultPatternParser())
	sess.Consume([]byte("1/2\n"))

	snap := sess.State()
	snap.Progress = 0.99
	snap.Metrics["injected"] = IntValue(1)

	if st := sess.State(); !almostEqual(st.Progress, 0.5) || len(st.Metrics) != 0 {
		t.Errorf("Snapshot mutation leaked into session state: %+v", st)
	}
}

func TestRegistryForType(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		taskType string
		wantName string
	}{
		{"build", "pattern"},
		{"test", "pattern"},
		{"training", "training"},
		{"ml_training", "training"},
		{"", "raw"},
		{"unknown_type", "raw"},
	}

	for _, tt := range tests {
		if got := r.ForType(tt.taskType).Name(); got != tt.wantName {
			t.Errorf("ForType(%q) = %q, want %q", tt.taskType, got, tt.wantName)
		}
	}
}

func TestRegistryCustomParser(t *testing.T) {
	r := DefaultRegistry()
	custom := NewPatternParser("deploy", []Rule{
		{Metric: "pods", Pattern: regexp.MustCompile(`(\d+) pods ready`), Kind: KindInt},
	})
	r.Register(custom, "deploy")

	p := r.ForType("deploy")
	if p.Name() != "deploy" {
		t.Fatalf("Expected deploy parser, got %q", p.Name())
	}

	st := NewState()
	p.ParseLine("3 pods ready", st)
	if v := st.Metrics["pods"]; v.Int != 3 {
		t.Errorf("Expected pods=3, got %+v", v)
	}
}
