package cmd

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/tracesift/internal/config"
	"github.com/signalnine/tracesift/internal/pipeline"
	"github.com/signalnine/tracesift/internal/result"
)

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(*testing.T, *config.Config)
	}{
		{"no flags keep file values", nil, func(t *testing.T, c *config.Config) {
			if c.Scenario != "default" || c.MissingData != "lenient" || c.Workers != 1 {
				t.Errorf("unexpected config: %+v", c)
			}
		}},
		{"scenario", []string{"--scenario", "swe_bench"}, func(t *testing.T, c *config.Config) {
			if c.Scenario != "swe_bench" {
				t.Errorf("scenario: got %q", c.Scenario)
			}
		}},
		{"strict and workers", []string{"--strict", "--workers", "8"}, func(t *testing.T, c *config.Config) {
			if c.MissingData != "strict" || c.Workers != 8 {
				t.Errorf("got %q / %d", c.MissingData, c.Workers)
			}
		}},
		{"results and prefix", []string{"--results", "out", "--metric-prefix", "gemini_cli."}, func(t *testing.T, c *config.Config) {
			if c.Results.Dir != "out" || c.MetricPrefix != "gemini_cli." {
				t.Errorf("got %q / %q", c.Results.Dir, c.MetricPrefix)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := NewRootCmd()
			if err := root.ParseFlags(tt.args); err != nil {
				t.Fatalf("parsing flags: %v", err)
			}
			cfg := config.Default()
			applyOverrides(cfg, root)
			tt.check(t, cfg)
		})
	}
}

func TestAnalyzeCommand(t *testing.T) {
	base := t.TempDir()
	export := filepath.Join(base, "sft.jsonl")

	root := NewRootCmd()
	root.SetArgs([]string{
		"analyze", "../testdata/traces/native.jsonl",
		"--config", "../testdata/minimal.yaml",
		"--results", filepath.Join(base, "results"),
		"--metric-prefix", "gemini_cli.",
		"--export", export,
	})
	if err := root.Execute(); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	runDir, err := filepath.EvalSymlinks(filepath.Join(base, "results", "latest"))
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	results, err := result.ReadRun(runDir)
	if err != nil {
		t.Fatalf("ReadRun: %v", err)
	}
	want := map[string]pipeline.DatasetType{
		"trace_001":      pipeline.SFT,
		"trace_002_fail": pipeline.Rejected,
		"trace_003_rlhf": pipeline.RLHF,
	}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for _, r := range results {
		if r.DatasetType != want[r.TraceID] {
			t.Errorf("%s: got %s, want %s (reasons %v)", r.TraceID, r.DatasetType, want[r.TraceID], r.Reasons)
		}
	}
	if results[0].Score != 78 {
		t.Errorf("trace_001 score: got %v, want 78", results[0].Score)
	}

	meta, err := result.ReadMeta(runDir)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Skipped != 1 || meta.Total != 3 {
		t.Errorf("meta: %+v", meta)
	}

	f, err := os.Open(export)
	if err != nil {
		t.Fatalf("export not written: %v", err)
	}
	defer f.Close()
	lines := 0
	for sc := bufio.NewScanner(f); sc.Scan(); {
		lines++
	}
	if lines != 1 {
		t.Errorf("export lines: got %d, want 1", lines)
	}
}
