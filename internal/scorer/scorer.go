// Package scorer computes the quality dimensions that add up to a trace's
// score.
package scorer

import (
	"math"

	"github.com/signalnine/tracesift/internal/trace"
)

// TurnPenaltyFloor bounds how negative TurnEfficiency can go.
const TurnPenaltyFloor = -10.0

// Scorer computes one quality dimension. Missing metrics or events score
// as the dimension's zero case; a scorer never fails.
type Scorer interface {
	Name() string
	Score(t *trace.Trace) float64
}

// Set is an ordered list of scorers whose outputs are summed.
type Set []Scorer

// Score returns the total rounded to two decimals and the unrounded
// contribution of each scorer keyed by name.
func (s Set) Score(t *trace.Trace) (float64, map[string]float64) {
	breakdown := make(map[string]float64, len(s))
	var total float64
	for _, sc := range s {
		v := sc.Score(t)
		breakdown[sc.Name()] += v
		total += v
	}
	return Round2(total), breakdown
}

// Names lists the scorers in order.
func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, sc := range s {
		names[i] = sc.Name()
	}
	return names
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CodeProduction rewards changed lines, saturating at MaxScore.
type CodeProduction struct {
	WeightPerLine float64
	MaxScore      float64
}

func (CodeProduction) Name() string { return "code_production" }

func (s CodeProduction) Score(t *trace.Trace) float64 {
	lines := t.Metrics.Value(trace.MetricLinesChanged)
	return math.Min(lines*s.WeightPerLine, s.MaxScore)
}

// ReasoningDepth rewards thought density: reasoning tokens over output
// tokens across all model responses.
type ReasoningDepth struct {
	MaxScore float64
}

func (ReasoningDepth) Name() string { return "reasoning_depth" }

func (s ReasoningDepth) Score(t *trace.Trace) float64 {
	return ThoughtDensity(t) * s.MaxScore
}

// ThoughtDensity is the ratio of reasoning tokens to output tokens over all
// api_response events, or 0 when no output tokens were recorded.
func ThoughtDensity(t *trace.Trace) float64 {
	var thoughts, output float64
	for _, e := range t.Named(trace.EventAPIResponse) {
		n, _ := e.Number(trace.AttrThoughtsTokens)
		thoughts += n
		n, _ = e.Number(trace.AttrOutputTokens)
		output += n
	}
	if output <= 0 {
		return 0
	}
	return thoughts / output
}

// ToolDiversity rewards the number of distinct tools used.
type ToolDiversity struct {
	WeightPerTool float64
	MaxScore      float64
}

func (ToolDiversity) Name() string { return "tool_diversity" }

func (s ToolDiversity) Score(t *trace.Trace) float64 {
	seen := map[string]struct{}{}
	for _, e := range t.Named(trace.EventToolCall) {
		if name, ok := e.String(trace.AttrFunctionName); ok && name != "" {
			seen[name] = struct{}{}
		}
	}
	return math.Min(float64(len(seen))*s.WeightPerTool, s.MaxScore)
}

// ToolSuccess rewards the share of tool calls that succeeded. Calls
// without a recorded outcome count as unsuccessful.
type ToolSuccess struct {
	MaxScore float64
}

func (ToolSuccess) Name() string { return "tool_success" }

func (s ToolSuccess) Score(t *trace.Trace) float64 {
	calls := t.Named(trace.EventToolCall)
	if len(calls) == 0 {
		return 0
	}
	succeeded := 0
	for _, e := range calls {
		if ok, _ := e.Bool(trace.AttrSuccess); ok {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(calls)) * s.MaxScore
}

// TurnEfficiency gives full marks up to OptimalTurns and then loses
// PenaltyPerTurn for each extra turn, never below TurnPenaltyFloor.
// Fewer than two turns is a greeting rather than a task and scores 0.
type TurnEfficiency struct {
	MaxScore       float64
	OptimalTurns   int
	PenaltyPerTurn float64
}

func (TurnEfficiency) Name() string { return "turn_efficiency" }

func (s TurnEfficiency) Score(t *trace.Trace) float64 {
	turns := t.Metrics.Value(trace.MetricAgentTurns)
	if turns < 2 {
		return 0
	}
	optimal := float64(s.OptimalTurns)
	if turns <= optimal {
		return s.MaxScore
	}
	return math.Max(s.MaxScore-(turns-optimal)*s.PenaltyPerTurn, TurnPenaltyFloor)
}
