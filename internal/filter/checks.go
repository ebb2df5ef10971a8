package filter

import (
	"fmt"

	"github.com/signalnine/tracesift/internal/tokens"
	"github.com/signalnine/tracesift/internal/trace"
)

// Integrity rejects sessions whose process or content generation failed.
type Integrity struct {
	Policy Policy
}

func (Integrity) Name() string { return "integrity" }

func (f Integrity) Check(t *trace.Trace) (string, bool) {
	exitFails, ok := t.Metrics.Lookup(trace.MetricExitFailCount)
	if !ok {
		if reason, rejected := f.Policy.missing(trace.MetricExitFailCount); rejected {
			return reason, true
		}
	}
	if exitFails > 0 {
		return ReasonExitFailure, true
	}
	if t.Metrics.Value(trace.MetricContentRetryFailCount) > 0 {
		return ReasonContentRetryFailure, true
	}
	return "", false
}

// Productivity rejects sessions that touched files without changing any
// lines.
type Productivity struct {
	Policy Policy
}

func (Productivity) Name() string { return "productivity" }

func (f Productivity) Check(t *trace.Trace) (string, bool) {
	fileOps, ok := t.Metrics.Lookup(trace.MetricFileOperationCount)
	if !ok {
		return f.Policy.missing(trace.MetricFileOperationCount)
	}
	if fileOps > 0 && t.Metrics.Value(trace.MetricLinesChanged) == 0 {
		return ReasonIneffectiveFileOp, true
	}
	return "", false
}

// ContextTruncation rejects sessions where a tool output was cut short, so
// the model acted on incomplete context.
type ContextTruncation struct{}

func (ContextTruncation) Name() string { return "context_truncation" }

func (ContextTruncation) Check(t *trace.Trace) (string, bool) {
	if _, found := t.First(trace.EventToolOutputTruncated); found {
		return ReasonToolOutputTruncated, true
	}
	return "", false
}

// PromptRichness rejects sessions whose opening prompt is too short to
// describe a task.
type PromptRichness struct {
	Policy    Policy
	MinLength int
	// Estimator measures the prompt when no length was recorded.
	Estimator tokens.Estimator
}

func (PromptRichness) Name() string { return "prompt_richness" }

func (f PromptRichness) Check(t *trace.Trace) (string, bool) {
	prompt, found := t.First(trace.EventUserPrompt)
	if !found {
		if f.Policy == Strict {
			return ReasonMissingUserPrompt, true
		}
		return "", false
	}

	length, ok := prompt.Number(trace.AttrPromptLength)
	if !ok {
		text, hasText := prompt.String(trace.AttrPrompt)
		if !hasText {
			return f.Policy.missing(trace.AttrPromptLength)
		}
		est := f.Estimator
		if est == nil {
			est = tokens.Default
		}
		length = float64(est.Count(text))
	}

	minLen := f.MinLength
	if minLen <= 0 {
		minLen = DefaultMinPromptLength
	}
	if length < float64(minLen) {
		return fmt.Sprintf("%s (len=%d)", ReasonPromptTooShort, int(length)), true
	}
	return "", false
}
