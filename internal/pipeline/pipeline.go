// Package pipeline runs traces through a scenario's filters and scorers
// and labels each one for dataset export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
	"github.com/signalnine/tracesift/internal/adapter"
	"github.com/signalnine/tracesift/internal/convert"
	"github.com/signalnine/tracesift/internal/runner"
	"github.com/signalnine/tracesift/internal/scenario"
	"github.com/signalnine/tracesift/internal/source"
	"github.com/signalnine/tracesift/internal/tokens"
	"github.com/signalnine/tracesift/internal/trace"
)

// ReasonAnalysisError prefixes the reason recorded when analyzing a trace
// panicked.
const ReasonAnalysisError = "ANALYSIS_ERROR"

// DatasetType is the label a trace earns.
type DatasetType string

const (
	SFT      DatasetType = "SFT"
	RLHF     DatasetType = "RLHF"
	Rejected DatasetType = "REJECTED"
)

// Metadata carries diagnostics alongside a result.
type Metadata struct {
	Metrics   trace.Metrics      `json:"metrics"`
	Scenario  string             `json:"scenario"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// Result is the outcome of analyzing one trace. Reasons is empty unless
// DatasetType is Rejected.
type Result struct {
	TraceID     string                         `json:"trace_id"`
	Score       float64                        `json:"score"`
	DatasetType DatasetType                    `json:"dataset_type"`
	Reasons     []string                       `json:"reasons"`
	Messages    []openai.ChatCompletionMessage `json:"normalized_messages,omitempty"`
	Metadata    Metadata                       `json:"metadata"`
}

// Passed reports whether the trace survived every filter.
func (r Result) Passed() bool {
	return r.DatasetType != Rejected
}

// Classify maps the filter outcome and recovery signal to a label.
func Classify(rejected, recovered bool) DatasetType {
	switch {
	case rejected:
		return Rejected
	case recovered:
		return RLHF
	default:
		return SFT
	}
}

// Recovered reports whether the metrics show a failure that the session
// went on to recover from.
func Recovered(m trace.Metrics) bool {
	return m.Value(trace.MetricRecoveryAttemptCount) > 0 || m.Value(trace.MetricContentRetryCount) > 0
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithAdapter replaces the transcript adapter.
func WithAdapter(a *adapter.Adapter) Option {
	return func(p *Pipeline) {
		p.adapter = a
	}
}

// WithEstimator sets the token estimator shared by the default adapter and
// the scenario's prompt checks.
func WithEstimator(e tokens.Estimator) Option {
	return func(p *Pipeline) {
		p.estimator = e
	}
}

// WithRejectedTranscripts makes rejected results carry their normalized
// transcript too.
func WithRejectedTranscripts(keep bool) Option {
	return func(p *Pipeline) {
		p.keepRejected = keep
	}
}

// Pipeline analyzes traces against one scenario. It holds no per-trace
// state and is safe for concurrent use.
type Pipeline struct {
	scenario     scenario.Scenario
	adapter      *adapter.Adapter
	estimator    tokens.Estimator
	logger       *slog.Logger
	keepRejected bool
}

// New creates a Pipeline for the given scenario.
func New(s scenario.Scenario, opts ...Option) *Pipeline {
	p := &Pipeline{
		estimator: tokens.Default,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.scenario = s.WithEstimator(p.estimator)
	if p.adapter == nil {
		p.adapter = adapter.New(adapter.WithEstimator(p.estimator), adapter.WithLogger(p.logger))
	}
	return p
}

// Scenario returns the scenario the pipeline scores against.
func (p *Pipeline) Scenario() scenario.Scenario {
	return p.scenario
}

// ProcessTrace analyzes a structured trace. The caller's metrics map is
// copied, never retained.
func (p *Pipeline) ProcessTrace(traceID string, metrics trace.Metrics, events []*trace.Event) Result {
	return p.Analyze(trace.New(traceID, metrics.Clone(), events))
}

// ProcessTranscript analyzes a raw chat transcript.
func (p *Pipeline) ProcessTranscript(traceID string, messages []openai.ChatCompletionMessage) Result {
	return p.Analyze(p.adapter.ToTrace(traceID, messages))
}

// Process analyzes a loaded record in whichever form it arrived.
func (p *Pipeline) Process(rec source.Record) Result {
	if rec.IsTranscript() {
		return p.ProcessTranscript(rec.ID, rec.Messages)
	}
	return p.ProcessTrace(rec.ID, rec.Metrics, rec.Events)
}

// Analyze runs the filters, then scores, classifies and converts a
// passing trace. A rejected trace scores 0 and skips scoring.
func (p *Pipeline) Analyze(t *trace.Trace) Result {
	res := Result{
		TraceID: t.ID,
		Reasons: p.scenario.Filters.Run(t),
		Metadata: Metadata{
			Metrics:  t.Metrics.Clone(),
			Scenario: p.scenario.Name,
		},
	}
	if res.Reasons == nil {
		res.Reasons = []string{}
	}

	rejected := len(res.Reasons) > 0
	res.DatasetType = Classify(rejected, Recovered(t.Metrics))
	if !rejected {
		res.Score, res.Metadata.Breakdown = p.scenario.Scorers.Score(t)
	}
	if !rejected || p.keepRejected {
		res.Messages = convert.ToMessages(t)
	}

	p.logger.Debug("analyzed trace",
		"trace_id", res.TraceID,
		"dataset_type", res.DatasetType,
		"score", res.Score,
		"reasons", res.Reasons,
	)
	return res
}

// Run analyzes records on a pool of workers and returns results in input
// order. A record whose analysis panics becomes a rejected result with an
// ANALYSIS_ERROR reason. If ctx is cancelled the results analyzed so far
// are returned along with ctx.Err().
func (p *Pipeline) Run(ctx context.Context, records []source.Record, workers int) ([]Result, error) {
	results := make([]Result, len(records))
	errs := runner.RunPool(ctx, workers, len(records), func(_ context.Context, i int) error {
		results[i] = p.Process(records[i])
		return nil
	})

	out := make([]Result, 0, len(records))
	var cancelled error
	for i, err := range errs {
		var pe *runner.PanicError
		switch {
		case err == nil:
			out = append(out, results[i])
		case errors.As(err, &pe):
			p.logger.Error("analysis panicked", "trace_id", records[i].ID, "panic", pe.Value)
			out = append(out, p.failed(records[i], pe.Value))
		default:
			cancelled = err
		}
	}
	if cancelled != nil {
		return out, fmt.Errorf("analyzing records: %w", cancelled)
	}
	return out, nil
}

func (p *Pipeline) failed(rec source.Record, cause any) Result {
	return Result{
		TraceID:     rec.ID,
		DatasetType: Rejected,
		Reasons:     []string{fmt.Sprintf("%s: %v", ReasonAnalysisError, cause)},
		Metadata: Metadata{
			Metrics:  rec.Metrics.Clone(),
			Scenario: p.scenario.Name,
		},
	}
}
