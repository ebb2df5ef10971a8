// Package adapter rebuilds trace records from raw chat transcripts.
//
// A finished transcript lacks most of what live telemetry records. Counts
// that can be read off the conversation (turns, tool calls, lines written)
// are inferred. Process-level signals such as crashes, transport errors and
// resource usage are not observable and stay at zero.
package adapter

import (
	"encoding/json"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"github.com/signalnine/tracesift/internal/tokens"
	"github.com/signalnine/tracesift/internal/trace"
)

const (
	// errorScanChars is how much of a tool result is searched for failure
	// markers.
	errorScanChars = 200
	// errorExcerptChars bounds the error text attached to a failed call.
	errorExcerptChars = 100

	inferredConfigMarker = "inferred_from_trace"
)

var (
	writeTools     = []string{"write_file", "create_file", "update_file", "apply_diff", "replace_string"}
	errorMarkers   = []string{"error", "exception", "failed"}
	payloadKeys    = []string{"content", "code", "diff"}
	inferredFields = []string{
		trace.MetricLinesChanged,
		trace.MetricFileOperationCount,
		trace.MetricAgentTurns,
		trace.MetricToolCallCount,
		trace.MetricRecoveryAttemptCount,
		trace.MetricExitFailCount,
	}
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithEstimator sets the token estimator for assistant output.
func WithEstimator(e tokens.Estimator) Option {
	return func(a *Adapter) {
		a.estimator = e
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// Adapter converts OpenAI-style chat transcripts into trace records.
// It holds no per-transcript state and is safe for concurrent use.
type Adapter struct {
	estimator tokens.Estimator
	logger    *slog.Logger
}

// New creates an Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		estimator: tokens.Default,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ToTrace builds a trace record from an ordered transcript. It never fails:
// malformed tool arguments become an empty map and tool results without a
// matching call are dropped.
func (a *Adapter) ToTrace(traceID string, messages []openai.ChatCompletionMessage) *trace.Trace {
	b := &builder{
		adapter: a,
		metrics: make(trace.Metrics, len(inferredFields)),
		calls:   make(map[string]*trace.Event),
	}
	for _, name := range inferredFields {
		b.metrics[name] = 0
	}
	b.emit(trace.NewEvent(trace.EventConfig, map[string]any{
		trace.AttrCoreToolsEnabled: inferredConfigMarker,
	}))

	for _, msg := range messages {
		switch msg.Role {
		case openai.ChatMessageRoleUser:
			b.userMessage(msg)
		case openai.ChatMessageRoleAssistant:
			b.assistantMessage(msg)
		case openai.ChatMessageRoleTool:
			b.toolMessage(msg)
		}
	}

	return trace.New(traceID, b.metrics, b.events)
}

// builder accumulates one transcript. calls indexes tool_call events by
// correlation id; a later call with the same id replaces the earlier one
// so results bind to the most recent invocation.
type builder struct {
	adapter *Adapter
	metrics trace.Metrics
	events  []*trace.Event
	calls   map[string]*trace.Event
}

func (b *builder) emit(e *trace.Event) {
	b.events = append(b.events, e)
}

func (b *builder) userMessage(msg openai.ChatCompletionMessage) {
	text := messageText(msg)
	b.emit(trace.NewEvent(trace.EventUserPrompt, map[string]any{
		trace.AttrPrompt:       text,
		trace.AttrPromptLength: utf8.RuneCountInString(text),
	}))
}

func (b *builder) assistantMessage(msg openai.ChatCompletionMessage) {
	b.metrics[trace.MetricAgentTurns]++

	text := messageText(msg)
	b.emit(trace.NewEvent(trace.EventAPIResponse, map[string]any{
		trace.AttrResponseText:   text,
		trace.AttrOutputTokens:   b.adapter.estimator.Count(text),
		trace.AttrThoughtsTokens: thoughtTokens(text),
	}))

	for _, tc := range msg.ToolCalls {
		name := tc.Function.Name
		args := parseArguments(tc.Function.Arguments)
		b.metrics[trace.MetricToolCallCount]++

		if lines := linesWritten(name, args); lines > 0 {
			b.metrics[trace.MetricLinesChanged] += float64(lines)
			b.metrics[trace.MetricFileOperationCount]++
		}

		call := trace.NewEvent(trace.EventToolCall, map[string]any{
			trace.AttrFunctionName: name,
			trace.AttrFunctionArgs: args,
			trace.AttrToolCallID:   tc.ID,
		})
		b.calls[tc.ID] = call
		b.emit(call)
	}
}

func (b *builder) toolMessage(msg openai.ChatCompletionMessage) {
	content := messageText(msg)
	failed := looksLikeError(content)
	if failed {
		b.metrics[trace.MetricRecoveryAttemptCount]++
	}

	call, ok := b.calls[msg.ToolCallID]
	if !ok {
		b.adapter.logger.Debug("tool result has no matching call", "tool_call_id", msg.ToolCallID)
		return
	}
	call.Attributes[trace.AttrSuccess] = !failed
	if failed {
		call.Attributes[trace.AttrError] = truncate(content, errorExcerptChars)
	}
}

// thoughtTokens would count reasoning delimited inside the response text.
// No delimiter convention is fixed across agents, so transcripts always
// report zero and the reasoning score only reflects native telemetry.
func thoughtTokens(string) int {
	return 0
}

func parseArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// linesWritten returns the number of lines in the payload of a
// write-oriented tool call, or 0 for any other call.
func linesWritten(function string, args map[string]any) int {
	lower := strings.ToLower(function)
	isWrite := false
	for _, w := range writeTools {
		if strings.Contains(lower, w) {
			isWrite = true
			break
		}
	}
	if !isWrite {
		return 0
	}
	for _, key := range payloadKeys {
		v := args[key]
		if empty(v) {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return 0
		}
		return countLines(s)
	}
	return 0
}

// empty reports whether a decoded JSON value carries no payload: null,
// false, zero, an empty string or an empty collection.
func empty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// countLines counts newline-delimited lines; a trailing newline does not
// start a new line.
func countLines(s string) int {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Count(s, "\n") + 1
}

func looksLikeError(content string) bool {
	head := strings.ToLower(truncate(content, errorScanChars))
	for _, m := range errorMarkers {
		if strings.Contains(head, m) {
			return true
		}
	}
	return false
}

func messageText(msg openai.ChatCompletionMessage) string {
	if msg.Content != "" || len(msg.MultiContent) == 0 {
		return msg.Content
	}
	var parts []string
	for _, p := range msg.MultiContent {
		if p.Type == openai.ChatMessagePartTypeText {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
