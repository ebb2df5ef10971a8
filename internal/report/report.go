// Package report renders analysis results as a leaderboard.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"github.com/signalnine/tracesift/internal/pipeline"
	"github.com/signalnine/tracesift/internal/result"
)

// Formats accepted by Write.
const (
	FormatTable    = "table"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatHTML     = "html"
)

const (
	summaryChars = 60
	noContent    = "No content"
)

// Row is one leaderboard line.
type Row struct {
	ID        string               `json:"trace_id"`
	Score     float64              `json:"score"`
	Type      pipeline.DatasetType `json:"dataset_type"`
	Status    string               `json:"status"`
	Summary   string               `json:"summary"`
	Reasons   []string             `json:"reasons"`
	FullTrace string               `json:"-"`
}

// Leaderboard is the report model: rows sorted best first, plus totals.
type Leaderboard struct {
	Rows      []Row                        `json:"rows"`
	Counts    map[pipeline.DatasetType]int `json:"counts"`
	Total     int                          `json:"total"`
	MeanScore float64                      `json:"mean_score"`
}

// Build ranks results by score, highest first, breaking ties by trace id.
func Build(results []pipeline.Result) Leaderboard {
	lb := Leaderboard{
		Rows:   make([]Row, 0, len(results)),
		Counts: result.Count(results),
		Total:  len(results),
	}
	var sum float64
	for _, r := range results {
		status := "PASS"
		if !r.Passed() {
			status = "FAIL"
		}
		lb.Rows = append(lb.Rows, Row{
			ID:        r.TraceID,
			Score:     r.Score,
			Type:      r.DatasetType,
			Status:    status,
			Summary:   summarize(r.Messages),
			Reasons:   r.Reasons,
			FullTrace: fullTrace(r.Messages),
		})
		sum += r.Score
	}
	if len(results) > 0 {
		lb.MeanScore = sum / float64(len(results))
	}
	sort.SliceStable(lb.Rows, func(i, j int) bool {
		if lb.Rows[i].Score != lb.Rows[j].Score {
			return lb.Rows[i].Score > lb.Rows[j].Score
		}
		return lb.Rows[i].ID < lb.Rows[j].ID
	})
	return lb
}

// Generate renders the results stored in runDir.
func Generate(runDir, format string, w io.Writer) error {
	results, err := result.ReadRun(runDir)
	if err != nil {
		return err
	}
	return Write(results, format, w)
}

// Write renders results in the given format.
func Write(results []pipeline.Result, format string, w io.Writer) error {
	lb := Build(results)
	switch format {
	case FormatMarkdown:
		return writeMarkdown(lb, w)
	case FormatJSON:
		return writeJSON(lb, w)
	case FormatHTML:
		return writeHTML(lb, w)
	case FormatTable, "":
		return writeTable(lb, w)
	}
	return fmt.Errorf("unknown report format %q", format)
}

func summarize(msgs []openai.ChatCompletionMessage) string {
	for _, m := range msgs {
		if m.Role != openai.ChatMessageRoleUser {
			continue
		}
		if utf8.RuneCountInString(m.Content) <= summaryChars {
			return m.Content
		}
		return string([]rune(m.Content)[:summaryChars]) + "..."
	}
	return noContent
}

func fullTrace(msgs []openai.ChatCompletionMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		content := m.Content
		if content == "" && len(m.ToolCalls) > 0 {
			data, _ := json.MarshalIndent(m.ToolCalls, "", "  ")
			content = string(data)
		}
		fmt.Fprintf(&b, "[%s]:\n%s\n%s\n", strings.ToUpper(m.Role), content, strings.Repeat("-", 20))
	}
	return b.String()
}

func countsLine(lb Leaderboard) string {
	return fmt.Sprintf("total=%d SFT=%d RLHF=%d REJECTED=%d mean_score=%.2f",
		lb.Total, lb.Counts[pipeline.SFT], lb.Counts[pipeline.RLHF], lb.Counts[pipeline.Rejected], lb.MeanScore)
}

func writeTable(lb Leaderboard, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCORE\tTYPE\tSTATUS\tSUMMARY\tREASONS")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, r := range lb.Rows {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\t%s\t%s\n",
			r.ID, r.Score, r.Type, r.Status, oneLine(r.Summary), strings.Join(r.Reasons, "; "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, countsLine(lb))
	return err
}

func writeMarkdown(lb Leaderboard, w io.Writer) error {
	fmt.Fprintln(w, "| ID | Score | Type | Status | Summary | Reasons |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|")
	for _, r := range lb.Rows {
		fmt.Fprintf(w, "| %s | %.2f | %s | %s | %s | %s |\n",
			mdEscape(r.ID), r.Score, r.Type, r.Status, mdEscape(oneLine(r.Summary)), mdEscape(strings.Join(r.Reasons, "; ")))
	}
	fmt.Fprintln(w)
	_, err := fmt.Fprintln(w, countsLine(lb))
	return err
}

func writeJSON(lb Leaderboard, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(lb)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
