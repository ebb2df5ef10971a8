// Package convert rebuilds a normalized chat transcript from a trace.
//
// The conversion is one-way and lossy: thought content is dropped, tool
// results collapse to a success marker or a short error, and call ids are
// synthesized. Identical input always yields identical output.
package convert

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/signalnine/tracesift/internal/trace"
)

const (
	defaultTools  = "standard tools"
	redacted      = "<REDACTED>"
	successResult = "Success"
	noResult      = "no result observed"
	callIDPrefix  = "call_"
	callIDHexLen  = 24
)

// callNamespace scopes synthesized call ids.
var callNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tracesift/tool-call"))

// ToMessages converts the trace's events, in order, into chat messages.
func ToMessages(t *trace.Trace) []openai.ChatCompletionMessage {
	msgs := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: "Agent tools: " + toolsSummary(t.Config()),
	}}
	for i, e := range t.Events {
		if e == nil {
			continue
		}
		switch e.Name {
		case trace.EventUserPrompt:
			prompt, ok := e.String(trace.AttrPrompt)
			if !ok {
				prompt = redacted
			}
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
		case trace.EventAPIResponse:
			text, _ := e.String(trace.AttrResponseText)
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text})
		case trace.EventToolCall:
			msgs = append(msgs, toolExchange(e, i)...)
		}
	}
	return msgs
}

func toolExchange(e *trace.Event, position int) []openai.ChatCompletionMessage {
	name, _ := e.String(trace.AttrFunctionName)
	id := CallID(e, position)
	call := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:   id,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      name,
				Arguments: arguments(e),
			},
		}},
	}
	result := openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    outcome(e),
		ToolCallID: id,
	}
	return []openai.ChatCompletionMessage{call, result}
}

// CallID derives the synthesized identifier for a tool_call event from its
// function name, its attributes and its position in the timeline.
func CallID(e *trace.Event, position int) string {
	name, _ := e.String(trace.AttrFunctionName)
	key, err := json.Marshal(struct {
		Name       string         `json:"name"`
		Attributes map[string]any `json:"attributes"`
		Position   int            `json:"position"`
	}{name, e.Attributes, position})
	if err != nil {
		key = []byte(fmt.Sprintf("%s|%v|%d", name, e.Attributes, position))
	}
	u := uuid.NewSHA1(callNamespace, key)
	return callIDPrefix + hex.EncodeToString(u[:])[:callIDHexLen]
}

func arguments(e *trace.Event) string {
	switch v := e.Attributes[trace.AttrFunctionArgs].(type) {
	case nil:
		return "{}"
	case string:
		if v == "" {
			return "{}"
		}
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "{}"
		}
		return string(b)
	}
}

func outcome(e *trace.Event) string {
	success, known := e.Bool(trace.AttrSuccess)
	if known && success {
		return successResult
	}
	msg, _ := e.String(trace.AttrError)
	if !known && msg == "" {
		msg = noResult
	}
	return "Error: " + msg
}

func toolsSummary(cfg map[string]any) string {
	switch v := cfg[trace.AttrCoreToolsEnabled].(type) {
	case nil:
		return defaultTools
	case string:
		if v == "" {
			return defaultTools
		}
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprint(v)
	}
}
