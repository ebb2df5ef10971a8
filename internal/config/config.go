package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/signalnine/tracesift/internal/filter"
	"gopkg.in/yaml.v3"
)

const (
	DefaultScenario   = "default"
	DefaultResultsDir = "results"
)

type Config struct {
	Scenario                string         `yaml:"scenario"`
	MissingData             string         `yaml:"missing_data"`
	KeepRejectedTranscripts bool           `yaml:"keep_rejected_transcripts"`
	Workers                 int            `yaml:"workers"`
	MetricPrefix            string         `yaml:"metric_prefix"`
	Results                 Results        `yaml:"results"`
	Export                  Export         `yaml:"export"`
	Scenarios               []ScenarioSpec `yaml:"scenarios"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

type Export struct {
	IncludeRLHF bool `yaml:"include_rlhf"`
}

// ScenarioSpec declares a custom scenario. Filters and scorers run in the
// order listed.
type ScenarioSpec struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Filters     []FilterSpec `yaml:"filters"`
	Scorers     []ScorerSpec `yaml:"scorers"`
}

type FilterSpec struct {
	Type      string `yaml:"type"`
	MinLength int    `yaml:"min_length"`
}

// ScorerSpec parameterizes one scorer. Fields a scorer type does not use
// are ignored; zero values fall back to that scorer's defaults.
type ScorerSpec struct {
	Type           string  `yaml:"type"`
	WeightPerLine  float64 `yaml:"weight_per_line"`
	WeightPerTool  float64 `yaml:"weight_per_tool"`
	MaxScore       float64 `yaml:"max_score"`
	OptimalTurns   int     `yaml:"optimal_turns"`
	PenaltyPerTurn float64 `yaml:"penalty_per_turn"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist and the caller did not ask for it explicitly.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return nil, err
}

// Policy returns the parsed missing-data policy.
func (c *Config) Policy() (filter.Policy, error) {
	return filter.ParsePolicy(c.MissingData)
}

func (c *Config) applyDefaults() {
	if c.Scenario == "" {
		c.Scenario = DefaultScenario
	}
	if c.MissingData == "" {
		c.MissingData = string(filter.Lenient)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Results.Dir == "" {
		c.Results.Dir = DefaultResultsDir
	}
}

func validate(cfg *Config) error {
	if _, err := cfg.Policy(); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i, s := range cfg.Scenarios {
		if s.Name == "" {
			return fmt.Errorf("scenario %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("scenario %q: defined more than once", s.Name)
		}
		seen[s.Name] = true
		if len(s.Scorers) == 0 {
			return fmt.Errorf("scenario %q: at least one scorer is required", s.Name)
		}
		for j, f := range s.Filters {
			if f.Type == "" {
				return fmt.Errorf("scenario %q: filter %d: type is required", s.Name, j)
			}
			if f.MinLength < 0 {
				return fmt.Errorf("scenario %q: filter %d: min_length must not be negative", s.Name, j)
			}
		}
		for j, sc := range s.Scorers {
			if sc.Type == "" {
				return fmt.Errorf("scenario %q: scorer %d: type is required", s.Name, j)
			}
			if sc.MaxScore < 0 || sc.WeightPerLine < 0 || sc.WeightPerTool < 0 || sc.PenaltyPerTurn < 0 || sc.OptimalTurns < 0 {
				return fmt.Errorf("scenario %q: scorer %d: parameters must not be negative", s.Name, j)
			}
		}
	}
	return nil
}
