package trace

import (
	"encoding/json"
	"maps"
	"strings"
)

// Metric names recorded for an agent session.
const (
	MetricLinesChanged          = "lines.changed"
	MetricFileOperationCount    = "file.operation.count"
	MetricAgentTurns            = "agent.turns"
	MetricToolCallCount         = "tool.call.count"
	MetricRecoveryAttemptCount  = "agent.recovery_attempt.count"
	MetricExitFailCount         = "exit.fail.count"
	MetricContentRetryCount     = "chat.content_retry.count"
	MetricContentRetryFailCount = "chat.content_retry_failure.count"
)

// Event names in a session timeline.
const (
	EventConfig              = "config"
	EventUserPrompt          = "user_prompt"
	EventAPIResponse         = "api_response"
	EventToolCall            = "tool_call"
	EventToolOutputTruncated = "tool_output_truncated"
)

// Attribute keys used by the events above.
const (
	AttrCoreToolsEnabled = "core_tools_enabled"
	AttrPrompt           = "prompt"
	AttrPromptLength     = "prompt_length"
	AttrResponseText     = "response_text"
	AttrOutputTokens     = "output_token_count"
	AttrThoughtsTokens   = "thoughts_token_count"
	AttrFunctionName     = "function_name"
	AttrFunctionArgs     = "function_args"
	AttrToolCallID       = "tool_call_id"
	AttrSuccess          = "success"
	AttrError            = "error"
)

// Metrics maps a metric name to its value. An absent key means the value
// is unknown, which is not the same as an explicit zero.
type Metrics map[string]float64

// Lookup returns the metric value and whether it was recorded at all.
func (m Metrics) Lookup(name string) (float64, bool) {
	v, ok := m[name]
	return v, ok
}

// Value returns the metric value, treating an absent metric as zero.
func (m Metrics) Value(name string) float64 {
	return m[name]
}

// Clone returns an independent copy.
func (m Metrics) Clone() Metrics {
	if m == nil {
		return Metrics{}
	}
	return maps.Clone(m)
}

// TrimPrefix returns a copy with prefix removed from every metric name.
// When both "p.x" and "x" are present, the unprefixed "x" is kept.
func (m Metrics) TrimPrefix(prefix string) Metrics {
	if prefix == "" {
		return m.Clone()
	}
	out := make(Metrics, len(m))
	for k, v := range m {
		if !strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	for k, v := range m {
		name, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		if _, taken := m[name]; taken && !strings.HasPrefix(name, prefix) {
			continue
		}
		out[name] = v
	}
	return out
}

// Event is one entry in the session timeline. The shape of Attributes
// depends on Name.
type Event struct {
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes"`
}

// NewEvent creates an event with a non-nil attribute map.
func NewEvent(name string, attrs map[string]any) *Event {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return &Event{Name: name, Attributes: attrs}
}

// String returns a string attribute.
func (e *Event) String(key string) (string, bool) {
	s, ok := e.Attributes[key].(string)
	return s, ok
}

// Number returns a numeric attribute. Values decoded from JSON arrive as
// float64 while values built in Go are usually int, so both are accepted.
func (e *Event) Number(key string) (float64, bool) {
	switch v := e.Attributes[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Bool returns a boolean attribute.
func (e *Event) Bool(key string) (bool, bool) {
	b, ok := e.Attributes[key].(bool)
	return b, ok
}

// Map returns a nested object attribute.
func (e *Event) Map(key string) (map[string]any, bool) {
	m, ok := e.Attributes[key].(map[string]any)
	return m, ok
}

// Trace is the canonical in-memory representation of one agent session.
// Events are kept in chronological order.
type Trace struct {
	ID      string   `json:"trace_id"`
	Metrics Metrics  `json:"metrics"`
	Events  []*Event `json:"events"`
}

// New creates a trace. A nil metrics map is replaced by an empty one.
func New(id string, metrics Metrics, events []*Event) *Trace {
	if metrics == nil {
		metrics = Metrics{}
	}
	return &Trace{ID: id, Metrics: metrics, Events: events}
}

// Config returns the attributes of the first config event, or an empty map
// when the trace carries none.
func (t *Trace) Config() map[string]any {
	for _, e := range t.Events {
		if e != nil && e.Name == EventConfig {
			if e.Attributes == nil {
				return map[string]any{}
			}
			return e.Attributes
		}
	}
	return map[string]any{}
}

// First returns the first event with the given name.
func (t *Trace) First(name string) (*Event, bool) {
	for _, e := range t.Events {
		if e != nil && e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Named returns all events with the given name, in timeline order.
func (t *Trace) Named(name string) []*Event {
	var out []*Event
	for _, e := range t.Events {
		if e != nil && e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
