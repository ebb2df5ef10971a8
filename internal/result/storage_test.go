package result_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/signalnine/tracesift/internal/pipeline"
	"github.com/signalnine/tracesift/internal/result"
	"github.com/signalnine/tracesift/internal/trace"
)

func sampleResults() []pipeline.Result {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "Agent tools: code_edit"},
		{Role: openai.ChatMessageRoleUser, Content: "Write a fast sort function in Python"},
	}
	return []pipeline.Result{
		{TraceID: "sft", Score: 78, DatasetType: pipeline.SFT, Reasons: []string{}, Messages: msgs,
			Metadata: pipeline.Metadata{Metrics: trace.Metrics{trace.MetricAgentTurns: 5}, Scenario: "general_coding"}},
		{TraceID: "rlhf", Score: 40.5, DatasetType: pipeline.RLHF, Reasons: []string{}, Messages: msgs},
		{TraceID: "bad", DatasetType: pipeline.Rejected, Reasons: []string{"CLI_EXIT_FAILURE"}},
	}
}

func TestWriteAndReadRun(t *testing.T) {
	dir := t.TempDir()
	meta := &result.RunMeta{
		Scenario:  "general_coding",
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Total:     3,
		Counts:    result.Count(sampleResults()),
	}
	if err := result.WriteRun(dir, meta, sampleResults()); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}

	got, err := result.ReadRun(dir)
	if err != nil {
		t.Fatalf("ReadRun: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0].TraceID != "sft" || got[0].Score != 78 || got[0].Metadata.Metrics[trace.MetricAgentTurns] != 5 {
		t.Errorf("first result: %+v", got[0])
	}
	if got[0].Messages[1].Content != "Write a fast sort function in Python" {
		t.Errorf("messages not kept: %+v", got[0].Messages)
	}
	if got[2].DatasetType != pipeline.Rejected || got[2].Reasons[0] != "CLI_EXIT_FAILURE" {
		t.Errorf("rejected result: %+v", got[2])
	}

	gotMeta, err := result.ReadMeta(dir)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if gotMeta.Counts[pipeline.SFT] != 1 || gotMeta.Counts[pipeline.Rejected] != 1 {
		t.Errorf("counts: %v", gotMeta.Counts)
	}
	if !gotMeta.StartedAt.Equal(meta.StartedAt) {
		t.Errorf("started_at: got %v", gotMeta.StartedAt)
	}
}

func TestAppendResults(t *testing.T) {
	dir := t.TempDir()
	rs := sampleResults()
	if err := result.AppendResults(dir, rs[:1]); err != nil {
		t.Fatal(err)
	}
	if err := result.AppendResults(dir, rs[1:]); err != nil {
		t.Fatal(err)
	}
	got, err := result.ReadRun(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[1].TraceID != "rlhf" {
		t.Errorf("unexpected results: %+v", got)
	}
}

func TestReadRunMissing(t *testing.T) {
	if _, err := result.ReadRun(t.TempDir()); err == nil {
		t.Error("expected error for empty run dir")
	}
}

func TestExportDataset(t *testing.T) {
	tests := []struct {
		name        string
		includeRLHF bool
		want        []string
	}{
		{"sft only", false, []string{"sft"}},
		{"with rlhf", true, []string{"sft", "rlhf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", "dataset.jsonl")
			n, err := result.ExportDataset(path, sampleResults(), tt.includeRLHF)
			if err != nil {
				t.Fatalf("ExportDataset: %v", err)
			}
			if n != len(tt.want) {
				t.Errorf("wrote %d lines, want %d", n, len(tt.want))
			}

			f, err := os.Open(path)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			var ids []string
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				var line map[string]json.RawMessage
				if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
					t.Fatalf("bad line %s: %v", sc.Text(), err)
				}
				for _, key := range []string{"trace_id", "dataset_type", "messages"} {
					if _, ok := line[key]; !ok {
						t.Errorf("line missing %q: %s", key, sc.Text())
					}
				}
				var id string
				_ = json.Unmarshal(line["trace_id"], &id)
				ids = append(ids, id)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ids: got %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("ids: got %v, want %v", ids, tt.want)
				}
			}
		})
	}
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}
}
