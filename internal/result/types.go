package result

import (
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/signalnine/tracesift/internal/pipeline"
)

// RunMeta summarizes one analysis run.
type RunMeta struct {
	Scenario  string                       `json:"scenario"`
	StartedAt time.Time                    `json:"started_at"`
	Sources   []string                     `json:"sources,omitempty"`
	Total     int                          `json:"total"`
	Skipped   int                          `json:"skipped"`
	Counts    map[pipeline.DatasetType]int `json:"counts"`
}

// Count tallies results per dataset type.
func Count(results []pipeline.Result) map[pipeline.DatasetType]int {
	counts := map[pipeline.DatasetType]int{
		pipeline.SFT:      0,
		pipeline.RLHF:     0,
		pipeline.Rejected: 0,
	}
	for _, r := range results {
		counts[r.DatasetType]++
	}
	return counts
}

// ExportLine is one training example in an exported dataset.
type ExportLine struct {
	TraceID     string                         `json:"trace_id"`
	DatasetType pipeline.DatasetType           `json:"dataset_type"`
	Messages    []openai.ChatCompletionMessage `json:"messages"`
}
