package filter_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/signalnine/tracesift/internal/filter"
	"github.com/signalnine/tracesift/internal/tokens"
	"github.com/signalnine/tracesift/internal/trace"
)

func prompt(text string, length any) *trace.Event {
	attrs := map[string]any{trace.AttrPrompt: text}
	if length != nil {
		attrs[trace.AttrPromptLength] = length
	}
	return trace.NewEvent(trace.EventUserPrompt, attrs)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want filter.Policy
		err  bool
	}{
		{"", filter.Lenient, false},
		{"lenient", filter.Lenient, false},
		{"strict", filter.Strict, false},
		{"paranoid", "", true},
	}
	for _, tt := range tests {
		got, err := filter.ParsePolicy(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParsePolicy(%q) error = %v", tt.in, err)
		}
		if err != nil && !errors.Is(err, filter.ErrUnknownPolicy) {
			t.Errorf("ParsePolicy(%q) error should wrap ErrUnknownPolicy", tt.in)
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIntegrity(t *testing.T) {
	tests := []struct {
		name    string
		policy  filter.Policy
		metrics trace.Metrics
		want    string
	}{
		{"clean", filter.Lenient, trace.Metrics{trace.MetricExitFailCount: 0}, ""},
		{"exit failure", filter.Lenient, trace.Metrics{trace.MetricExitFailCount: 1}, filter.ReasonExitFailure},
		{"retry failure", filter.Lenient, trace.Metrics{trace.MetricContentRetryFailCount: 2}, filter.ReasonContentRetryFailure},
		{"exit failure wins", filter.Lenient, trace.Metrics{trace.MetricExitFailCount: 1, trace.MetricContentRetryFailCount: 1}, filter.ReasonExitFailure},
		{"missing lenient", filter.Lenient, trace.Metrics{}, ""},
		{"missing strict", filter.Strict, trace.Metrics{}, "MISSING_REQUIRED_FIELD: exit.fail.count"},
		{"retry metric optional under strict", filter.Strict, trace.Metrics{trace.MetricExitFailCount: 0}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rejected := filter.Integrity{Policy: tt.policy}.Check(trace.New("t", tt.metrics, nil))
			if got != tt.want || rejected != (tt.want != "") {
				t.Errorf("Check() = (%q, %v), want %q", got, rejected, tt.want)
			}
		})
	}
}

func TestProductivity(t *testing.T) {
	tests := []struct {
		name    string
		policy  filter.Policy
		metrics trace.Metrics
		want    string
	}{
		{"productive", filter.Lenient, trace.Metrics{trace.MetricFileOperationCount: 1, trace.MetricLinesChanged: 5}, ""},
		{"no file ops", filter.Lenient, trace.Metrics{trace.MetricFileOperationCount: 0}, ""},
		{"ops without lines", filter.Lenient, trace.Metrics{trace.MetricFileOperationCount: 2}, filter.ReasonIneffectiveFileOp},
		{"ops with explicit zero lines", filter.Lenient, trace.Metrics{trace.MetricFileOperationCount: 2, trace.MetricLinesChanged: 0}, filter.ReasonIneffectiveFileOp},
		{"missing lenient", filter.Lenient, trace.Metrics{trace.MetricLinesChanged: 3}, ""},
		{"missing strict", filter.Strict, trace.Metrics{}, "MISSING_REQUIRED_FIELD: file.operation.count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rejected := filter.Productivity{Policy: tt.policy}.Check(trace.New("t", tt.metrics, nil))
			if got != tt.want || rejected != (tt.want != "") {
				t.Errorf("Check() = (%q, %v), want %q", got, rejected, tt.want)
			}
		})
	}
}

func TestContextTruncation(t *testing.T) {
	clean := trace.New("t", nil, []*trace.Event{trace.NewEvent(trace.EventAPIResponse, nil)})
	if _, rejected := (filter.ContextTruncation{}).Check(clean); rejected {
		t.Error("clean trace should pass")
	}
	truncated := trace.New("t", nil, []*trace.Event{
		trace.NewEvent(trace.EventAPIResponse, nil),
		trace.NewEvent(trace.EventToolOutputTruncated, nil),
	})
	if reason, rejected := (filter.ContextTruncation{}).Check(truncated); !rejected || reason != filter.ReasonToolOutputTruncated {
		t.Errorf("got (%q, %v)", reason, rejected)
	}
}

func TestPromptRichness(t *testing.T) {
	tests := []struct {
		name   string
		policy filter.Policy
		events []*trace.Event
		want   string
	}{
		{"short prompt", filter.Lenient, []*trace.Event{prompt("fix bug", 7)}, "PROMPT_TOO_SHORT (len=7)"},
		{"rich prompt", filter.Lenient, []*trace.Event{prompt("Fix the failing parser test", 28)}, ""},
		{"exactly minimum", filter.Lenient, []*trace.Event{prompt("0123456789", 10)}, ""},
		{"float length from json", filter.Lenient, []*trace.Event{prompt("x", 3.0)}, "PROMPT_TOO_SHORT (len=3)"},
		{"only first prompt counts", filter.Lenient, []*trace.Event{prompt("hi", 2), prompt("a much longer follow-up message", 31)}, "PROMPT_TOO_SHORT (len=2)"},
		{"long text recomputed passes", filter.Lenient, []*trace.Event{prompt(strings.Repeat("word ", 20), nil)}, ""},
		{"no prompt lenient", filter.Lenient, nil, ""},
		{"no prompt strict", filter.Strict, nil, filter.ReasonMissingUserPrompt},
		{"no length no text lenient", filter.Lenient, []*trace.Event{trace.NewEvent(trace.EventUserPrompt, nil)}, ""},
		{"no length no text strict", filter.Strict, []*trace.Event{trace.NewEvent(trace.EventUserPrompt, nil)}, "MISSING_REQUIRED_FIELD: prompt_length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := filter.PromptRichness{Policy: tt.policy, MinLength: filter.DefaultMinPromptLength}
			got, rejected := f.Check(trace.New("t", nil, tt.events))
			if got != tt.want || rejected != (tt.want != "") {
				t.Errorf("Check() = (%q, %v), want %q", got, rejected, tt.want)
			}
		})
	}
}

func TestPromptRichnessEstimator(t *testing.T) {
	enc, err := tokens.NewTiktoken(tokens.DefaultEncoding)
	if err != nil {
		t.Fatalf("NewTiktoken: %v", err)
	}
	tests := []struct {
		name string
		est  tokens.Estimator
		text string
		want string
	}{
		{"heuristic", tokens.Heuristic{}, strings.Repeat("word ", 10), "PROMPT_TOO_SHORT (len=12)"},
		{"heuristic passes", tokens.Heuristic{}, "Refactor internationalization configuration", ""},
		{"cl100k", enc, "Refactor internationalization configuration", "PROMPT_TOO_SHORT (len=5)"},
		{"nil uses default", nil, "Refactor internationalization configuration", "PROMPT_TOO_SHORT (len=5)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := filter.PromptRichness{Policy: filter.Lenient, MinLength: filter.DefaultMinPromptLength, Estimator: tt.est}
			got, rejected := f.Check(trace.New("t", nil, []*trace.Event{prompt(tt.text, nil)}))
			if got != tt.want || rejected != (tt.want != "") {
				t.Errorf("Check() = (%q, %v), want %q", got, rejected, tt.want)
			}
		})
	}
}

func TestChainCollectsAllReasons(t *testing.T) {
	chain := filter.Chain{
		filter.Integrity{},
		filter.Productivity{},
		filter.ContextTruncation{},
		filter.PromptRichness{},
	}
	tr := trace.New("t",
		trace.Metrics{trace.MetricExitFailCount: 1, trace.MetricFileOperationCount: 1},
		[]*trace.Event{prompt("Run", 3), trace.NewEvent(trace.EventToolOutputTruncated, nil)},
	)
	got := chain.Run(tr)
	want := []string{
		filter.ReasonExitFailure,
		filter.ReasonIneffectiveFileOp,
		filter.ReasonToolOutputTruncated,
		"PROMPT_TOO_SHORT (len=3)",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if names := chain.Names(); !reflect.DeepEqual(names, []string{"integrity", "productivity", "context_truncation", "prompt_richness"}) {
		t.Errorf("names: got %v", names)
	}
}

func TestChainPass(t *testing.T) {
	chain := filter.Chain{filter.Integrity{}, filter.ContextTruncation{}}
	if got := chain.Run(trace.New("t", trace.Metrics{trace.MetricExitFailCount: 0}, nil)); len(got) != 0 {
		t.Errorf("expected no reasons, got %v", got)
	}
}
