package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/signalnine/tracesift/internal/pipeline"
	"github.com/signalnine/tracesift/internal/report"
	"github.com/signalnine/tracesift/internal/result"
)

func user(text string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "Agent tools: standard tools"},
		{Role: openai.ChatMessageRoleUser, Content: text},
	}
}

func sample() []pipeline.Result {
	return []pipeline.Result{
		{TraceID: "b", Score: 40, DatasetType: pipeline.SFT, Reasons: []string{}, Messages: user("Write a fast sort function in Python")},
		{TraceID: "c", DatasetType: pipeline.Rejected, Reasons: []string{"CLI_EXIT_FAILURE", "PROMPT_TOO_SHORT (len=3)"}},
		{TraceID: "a", Score: 40, DatasetType: pipeline.RLHF, Reasons: []string{}, Messages: user(strings.Repeat("x", 80))},
		{TraceID: "d", Score: 78.5, DatasetType: pipeline.SFT, Reasons: []string{}, Messages: user("Fix <the> | parser")},
	}
}

func TestBuild(t *testing.T) {
	lb := report.Build(sample())
	var ids []string
	for _, r := range lb.Rows {
		ids = append(ids, r.ID)
	}
	if strings.Join(ids, ",") != "d,a,b,c" {
		t.Errorf("order: got %v, want [d a b c]", ids)
	}
	if lb.Counts[pipeline.SFT] != 2 || lb.Counts[pipeline.RLHF] != 1 || lb.Counts[pipeline.Rejected] != 1 {
		t.Errorf("counts: %v", lb.Counts)
	}
	if lb.Rows[3].Status != "FAIL" || lb.Rows[0].Status != "PASS" {
		t.Errorf("status: %+v", lb.Rows)
	}
	if lb.Rows[3].Summary != "No content" {
		t.Errorf("summary without messages: %q", lb.Rows[3].Summary)
	}
	if got := lb.Rows[1].Summary; got != strings.Repeat("x", 60)+"..." {
		t.Errorf("long summary: %q", got)
	}
	if lb.MeanScore != 39.625 {
		t.Errorf("mean: got %v", lb.MeanScore)
	}
}

func TestWriteFormats(t *testing.T) {
	tests := []struct {
		format string
		want   []string
	}{
		{"table", []string{"ID", "SCORE", "d", "78.50", "CLI_EXIT_FAILURE; PROMPT_TOO_SHORT (len=3)", "REJECTED=1"}},
		{"markdown", []string{"| ID | Score |", "| d | 78.50 |", `Fix <the> \| parser`}},
		{"html", []string{"<h1>Trace Leaderboard</h1>", "Fix &lt;the&gt; | parser", "REJECTED 1", "[USER]:"}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := report.Write(sample(), tt.format, &buf); err != nil {
				t.Fatalf("Write: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Write(sample(), "json", &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var lb report.Leaderboard
	if err := json.Unmarshal(buf.Bytes(), &lb); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if lb.Total != 4 || lb.Rows[0].ID != "d" {
		t.Errorf("unexpected leaderboard: %+v", lb)
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	if err := report.Write(nil, "pdf", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestGenerate(t *testing.T) {
	runDir := t.TempDir()
	if err := result.WriteRun(runDir, &result.RunMeta{Scenario: "general_coding"}, sample()); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := report.Generate(runDir, "table", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(buf.String(), "Write a fast sort function") {
		t.Errorf("expected summary in output:\n%s", buf.String())
	}
}
