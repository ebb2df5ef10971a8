// Package scenario bundles filter chains and scorer sets into named task
// profiles.
package scenario

import (
	"fmt"
	"slices"
	"sort"

	"github.com/signalnine/tracesift/internal/filter"
	"github.com/signalnine/tracesift/internal/scorer"
	"github.com/signalnine/tracesift/internal/tokens"
)

// Names of the built-in scenarios and the registry keys they answer to.
const (
	GeneralCodingName = "general_coding"
	SWEBenchName      = "swe_bench"
	ChatQAName        = "chat_qa"

	DefaultKey = "default"
	QAKey      = "qa"
)

// Scenario is a named, read-only pairing of filters and scorers.
type Scenario struct {
	Name        string
	Description string
	Filters     filter.Chain
	Scorers     scorer.Set
}

// GeneralCoding balances code output, tool use and efficiency, and
// requires sessions that write files to actually change lines.
func GeneralCoding(policy filter.Policy) Scenario {
	return Scenario{
		Name:        GeneralCodingName,
		Description: "Standard coding tasks. Rewards efficiency and code production.",
		Filters: filter.Chain{
			filter.Integrity{Policy: policy},
			filter.Productivity{Policy: policy},
			filter.ContextTruncation{},
			filter.PromptRichness{Policy: policy, MinLength: filter.DefaultMinPromptLength},
		},
		Scorers: scorer.Set{
			scorer.CodeProduction{WeightPerLine: 0.5, MaxScore: 20},
			scorer.ReasoningDepth{MaxScore: 20},
			scorer.ToolDiversity{WeightPerTool: defaultWeightPerTool, MaxScore: 15},
			scorer.ToolSuccess{MaxScore: 30},
			scorer.TurnEfficiency{MaxScore: 15, OptimalTurns: defaultOptimalTurns, PenaltyPerTurn: 2},
		},
	}
}

// SWEBench targets repository-level bug fixing: long sessions and one-line
// fixes are normal, so reasoning and tool success carry the score.
func SWEBench(policy filter.Policy) Scenario {
	return Scenario{
		Name:        SWEBenchName,
		Description: "Repository level bug fixing. Tolerates long turns and small diffs.",
		Filters: filter.Chain{
			filter.Integrity{Policy: policy},
			filter.ContextTruncation{},
		},
		Scorers: scorer.Set{
			scorer.CodeProduction{WeightPerLine: 5, MaxScore: 10},
			scorer.ReasoningDepth{MaxScore: 40},
			scorer.ToolSuccess{MaxScore: 40},
			scorer.TurnEfficiency{MaxScore: 10, OptimalTurns: 20, PenaltyPerTurn: 0.1},
		},
	}
}

// ChatQA targets pure question answering with no file output.
func ChatQA(policy filter.Policy) Scenario {
	return Scenario{
		Name:        ChatQAName,
		Description: "Pure logic reasoning or QA. No file operations required.",
		Filters: filter.Chain{
			filter.Integrity{Policy: policy},
			filter.PromptRichness{Policy: policy, MinLength: filter.DefaultMinPromptLength},
		},
		Scorers: scorer.Set{
			scorer.ReasoningDepth{MaxScore: 50},
			scorer.TurnEfficiency{MaxScore: 50, OptimalTurns: defaultOptimalTurns, PenaltyPerTurn: defaultPenaltyPerTurn},
		},
	}
}

// Registry resolves scenario names. Build it once at startup and share it
// read-only.
type Registry struct {
	byKey    map[string]Scenario
	fallback Scenario
}

// NewRegistry returns a registry holding the built-in scenarios, each
// constructed with the given missing-data policy, plus any extras. Extras
// replace built-ins of the same name.
func NewRegistry(policy filter.Policy, extra ...Scenario) *Registry {
	general := GeneralCoding(policy)
	r := &Registry{
		byKey:    map[string]Scenario{},
		fallback: general,
	}
	r.add(general, DefaultKey)
	r.add(SWEBench(policy))
	r.add(ChatQA(policy), QAKey)
	for _, s := range extra {
		r.add(s)
	}
	return r
}

func (r *Registry) add(s Scenario, aliases ...string) {
	r.byKey[s.Name] = s
	for _, a := range aliases {
		r.byKey[a] = s
	}
}

// Lookup returns a copy of the scenario registered under name.
func (r *Registry) Lookup(name string) (Scenario, bool) {
	s, ok := r.byKey[name]
	if !ok {
		return Scenario{}, false
	}
	return s.clone(), true
}

// Get returns a copy of the scenario registered under name, or of general
// coding when the name is unknown.
func (r *Registry) Get(name string) Scenario {
	if s, ok := r.byKey[name]; ok {
		return s.clone()
	}
	return r.fallback.clone()
}

// Names returns every registered key, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (s Scenario) clone() Scenario {
	s.Filters = slices.Clone(s.Filters)
	s.Scorers = slices.Clone(s.Scorers)
	return s
}

// WithEstimator returns a copy whose prompt checks measure unrecorded
// prompt lengths with e.
func (s Scenario) WithEstimator(e tokens.Estimator) Scenario {
	s = s.clone()
	for i, f := range s.Filters {
		if pr, ok := f.(filter.PromptRichness); ok {
			pr.Estimator = e
			s.Filters[i] = pr
		}
	}
	return s
}

// Describe renders a one-line summary of the scenario's composition.
func (s Scenario) Describe() string {
	return fmt.Sprintf("filters=%v scorers=%v", s.Filters.Names(), s.Scorers.Names())
}
