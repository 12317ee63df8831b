package interpret

import (
	"regexp"
	"strconv"
	"strings"
)

// TrainingParser recognizes iterative numeric-training output: epoch/step
// counters, loss/accuracy-style metrics, phase transitions, and known fatal
// tokens surfaced as first-class error signals.
type TrainingParser struct {
	epoch    *regexp.Regexp
	step     *regexp.Regexp
	loss     *regexp.Regexp
	accuracy *regexp.Regexp
	lr       *regexp.Regexp
}

// NewTrainingParser creates the training-output parser.
func NewTrainingParser() *TrainingParser {
	return &TrainingParser{
		epoch:    regexp.MustCompile(`(?i)epoch\s*(\d+)\s*/\s*(\d+)`),
		step:     regexp.MustCompile(`(?i)step\s*(\d+)\s*/\s*(\d+)`),
		loss:     regexp.MustCompile(`(?i)loss[:=]\s*([\d.]+)`),
		accuracy: regexp.MustCompile(`(?i)(?:acc|accuracy)[:=]\s*([\d.]+)`),
		lr:       regexp.MustCompile(`(?i)(?:lr|learning.?rate)[:=]\s*([\d.eE+-]+)`),
	}
}

// Name implements Parser.
func (p *TrainingParser) Name() string { return "training" }

// ParseLine implements Parser.
func (p *TrainingParser) ParseLine(line string, st *State) {
	if m := p.epoch.FindStringSubmatch(line); m != nil {
		current, err1 := strconv.ParseInt(m[1], 10, 64)
		total, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 == nil && err2 == nil && total > 0 {
			st.Set("epoch", IntValue(current))
			st.Set("total_epochs", IntValue(total))
			st.Progress = float64(current) / float64(total)
		}
	} else if m := p.step.FindStringSubmatch(line); m != nil {
		current, err1 := strconv.ParseInt(m[1], 10, 64)
		total, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 == nil && err2 == nil && total > 0 {
			st.Set("step", IntValue(current))
			st.Progress = float64(current) / float64(total)
		}
	}

	if m := p.loss.FindStringSubmatch(line); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			st.Set("loss", FloatValue(f))
		}
	}
	if m := p.accuracy.FindStringSubmatch(line); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			st.Set("accuracy", FloatValue(f))
		}
	}
	if m := p.lr.FindStringSubmatch(line); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			st.Set("learning_rate", FloatValue(f))
		}
	}

	switch {
	case strings.Contains(line, "Validat"):
		st.Phase = "Validation"
	case strings.Contains(line, "Test"):
		st.Phase = "Testing"
	case strings.Contains(line, "Train") || strings.Contains(line, "Epoch"):
		st.Phase = "Training"
	}

	p.detectFatal(line, st)
}

// detectFatal appends known fatal tokens to the error list. The exit code
// stays authoritative for task failure; these are soft signals only.
func (p *TrainingParser) detectFatal(line string, st *State) {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "loss") && strings.Contains(lower, "nan"):
		st.AddError("loss is NaN, training diverged")
	case strings.Contains(line, "CUDA out of memory"):
		st.AddError("out of GPU memory")
	case strings.Contains(lower, "error:"):
		st.AddError(line)
	}
}
