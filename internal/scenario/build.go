package scenario

import (
	"errors"
	"fmt"

	"github.com/signalnine/tracesift/internal/config"
	"github.com/signalnine/tracesift/internal/filter"
	"github.com/signalnine/tracesift/internal/scorer"
)

const (
	defaultWeightPerLine  = 0.5
	defaultWeightPerTool  = 3.0
	defaultOptimalTurns   = 10
	defaultPenaltyPerTurn = 1.0
)

var (
	ErrUnknownFilter = errors.New("unknown filter type")
	ErrUnknownScorer = errors.New("unknown scorer type")
)

// default caps per scorer type, used when max_score is omitted
var defaultMaxScore = map[string]float64{
	"code_production": 20,
	"reasoning_depth": 20,
	"tool_diversity":  15,
	"tool_success":    30,
	"turn_efficiency": 15,
}

// FromSpec builds a scenario from its config declaration.
func FromSpec(spec config.ScenarioSpec, policy filter.Policy) (Scenario, error) {
	s := Scenario{Name: spec.Name, Description: spec.Description}
	for i, fs := range spec.Filters {
		f, err := buildFilter(fs, policy)
		if err != nil {
			return Scenario{}, fmt.Errorf("scenario %q: filter %d: %w", spec.Name, i, err)
		}
		s.Filters = append(s.Filters, f)
	}
	for i, ss := range spec.Scorers {
		sc, err := buildScorer(ss)
		if err != nil {
			return Scenario{}, fmt.Errorf("scenario %q: scorer %d: %w", spec.Name, i, err)
		}
		s.Scorers = append(s.Scorers, sc)
	}
	return s, nil
}

// FromConfig builds the registry for a loaded config: built-ins plus the
// config's custom scenarios, all under the config's missing-data policy.
func FromConfig(cfg *config.Config) (*Registry, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	extra := make([]Scenario, 0, len(cfg.Scenarios))
	for _, spec := range cfg.Scenarios {
		s, err := FromSpec(spec, policy)
		if err != nil {
			return nil, err
		}
		extra = append(extra, s)
	}
	return NewRegistry(policy, extra...), nil
}

func buildFilter(fs config.FilterSpec, policy filter.Policy) (filter.Filter, error) {
	switch fs.Type {
	case "integrity":
		return filter.Integrity{Policy: policy}, nil
	case "productivity":
		return filter.Productivity{Policy: policy}, nil
	case "context_truncation":
		return filter.ContextTruncation{}, nil
	case "prompt_richness":
		minLen := fs.MinLength
		if minLen == 0 {
			minLen = filter.DefaultMinPromptLength
		}
		return filter.PromptRichness{Policy: policy, MinLength: minLen}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, fs.Type)
}

func buildScorer(ss config.ScorerSpec) (scorer.Scorer, error) {
	maxScore := ss.MaxScore
	if maxScore == 0 {
		maxScore = defaultMaxScore[ss.Type]
	}
	switch ss.Type {
	case "code_production":
		return scorer.CodeProduction{WeightPerLine: orDefault(ss.WeightPerLine, defaultWeightPerLine), MaxScore: maxScore}, nil
	case "reasoning_depth":
		return scorer.ReasoningDepth{MaxScore: maxScore}, nil
	case "tool_diversity":
		return scorer.ToolDiversity{WeightPerTool: orDefault(ss.WeightPerTool, defaultWeightPerTool), MaxScore: maxScore}, nil
	case "tool_success":
		return scorer.ToolSuccess{MaxScore: maxScore}, nil
	case "turn_efficiency":
		optimal := ss.OptimalTurns
		if optimal == 0 {
			optimal = defaultOptimalTurns
		}
		return scorer.TurnEfficiency{
			MaxScore:       maxScore,
			OptimalTurns:   optimal,
			PenaltyPerTurn: orDefault(ss.PenaltyPerTurn, defaultPenaltyPerTurn),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScorer, ss.Type)
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
