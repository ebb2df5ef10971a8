// Package source loads trace records from disk and watches inbox
// directories for new ones.
package source

import (
	"github.com/sashabaranov/go-openai"
	"github.com/signalnine/tracesift/internal/trace"
)

// Record is one unit of pipeline input: either a structured trace
// (metrics and events) or a raw chat transcript.
type Record struct {
	ID       string                         `json:"trace_id"`
	Metrics  trace.Metrics                  `json:"metrics,omitempty"`
	Events   []*trace.Event                 `json:"events,omitempty"`
	Messages []openai.ChatCompletionMessage `json:"messages,omitempty"`
}

// IsTranscript reports whether the record carries a raw transcript.
func (r Record) IsTranscript() bool {
	return r.Messages != nil
}
