package interpret

import (
	"regexp"
	"strconv"
)

// Rule is one named extraction rule for the pattern parser: a regular
// expression, the metric it populates, and how the captured group is parsed.
type Rule struct {
	Metric  string
	Pattern *regexp.Regexp
	Group   int // Capture group holding the value (defaults to 1)
	Kind    ValueKind
}

// ProgressRule extracts a progress estimate. With TotalGroup set, progress
// is current/total; otherwise the captured value is read as a percentage.
type ProgressRule struct {
	Pattern      *regexp.Regexp
	CurrentGroup int
	TotalGroup   int // 0 = none
}

// PatternParser is the generic rule-driven parser. With no rules it degrades
// to raw capture: nothing is extracted and nothing fails.
type PatternParser struct {
	name     string
	rules    []Rule
	progress []ProgressRule
	phase    *regexp.Regexp
	errors   []*regexp.Regexp
}

// NewPatternParser creates a parser named name with the given metric rules
// and no progress, phase or error patterns.
func NewPatternParser(name string, rules []Rule) *PatternParser {
	return &PatternParser{name: name, rules: rules}
}

// DefaultPatternParser returns a parser with common progress, phase and
// error patterns and no metric rules.
func DefaultPatternParser() *PatternParser {
	return &PatternParser{
		name: "pattern",
		progress: []ProgressRule{
			{Pattern: regexp.MustCompile(`(\d+)/(\d+)`), CurrentGroup: 1, TotalGroup: 2},
			{Pattern: regexp.MustCompile(`(\d+(?:\.\d+)?)%`), CurrentGroup: 1},
		},
		phase: regexp.MustCompile(`(?:Phase|Stage):\s*(\w+)`),
		errors: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\berror:`),
			regexp.MustCompile(`(?i)\bfailed\b`),
			regexp.MustCompile(`(?i)\bexception\b`),
		},
	}
}

// WithProgress appends a progress rule and returns the parser.
func (p *PatternParser) WithProgress(r ProgressRule) *PatternParser {
	p.progress = append(p.progress, r)
	return p
}

// WithPhase sets the phase pattern (first capture group is the label).
func (p *PatternParser) WithPhase(re *regexp.Regexp) *PatternParser {
	p.phase = re
	return p
}

// WithErrors appends error-detection patterns.
func (p *PatternParser) WithErrors(res ...*regexp.Regexp) *PatternParser {
	p.errors = append(p.errors, res...)
	return p
}

// Name implements Parser.
func (p *PatternParser) Name() string { return p.name }

// ParseLine implements Parser.
func (p *PatternParser) ParseLine(line string, st *State) {
	for _, rule := range p.rules {
		m := rule.Pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		group := rule.Group
		if group == 0 {
			group = 1
		}
		if group >= len(m) {
			continue
		}
		if v, ok := parseValue(m[group], rule.Kind); ok {
			st.Set(rule.Metric, v)
		}
	}

	for _, pr := range p.progress {
		m := pr.Pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		current, err := strconv.ParseFloat(m[pr.CurrentGroup], 64)
		if err != nil {
			continue
		}
		if pr.TotalGroup > 0 {
			total, err := strconv.ParseFloat(m[pr.TotalGroup], 64)
			if err != nil || total <= 0 {
				continue
			}
			st.Progress = current / total
		} else {
			st.Progress = current / 100
		}
		break
	}

	if p.phase != nil {
		if m := p.phase.FindStringSubmatch(line); m != nil {
			st.Phase = m[1]
		}
	}

	for _, re := range p.errors {
		if re.MatchString(line) {
			st.AddError(line)
			break
		}
	}
}

// parseValue converts a captured string per the rule's value kind.
// Unparseable input yields ok=false and the metric is left untouched.
func parseValue(raw string, kind ValueKind) (Value, bool) {
	switch kind {
	case KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, false
		}
		return IntValue(n), true
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, false
		}
		return FloatValue(f), true
	case KindPercent:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, false
		}
		return PercentValue(f / 100), true
	case KindLabel:
		return LabelValue(raw), true
	}
	return Value{}, false
}
