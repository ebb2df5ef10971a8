// Package filter holds the hard-reject checks applied to a trace before it
// is scored.
package filter

import (
	"errors"
	"fmt"

	"github.com/signalnine/tracesift/internal/trace"
)

// Rejection codes.
const (
	ReasonExitFailure          = "CLI_EXIT_FAILURE"
	ReasonContentRetryFailure  = "CONTENT_RETRY_FAILURE"
	ReasonIneffectiveFileOp    = "INEFFECTIVE_FILE_OPERATION"
	ReasonToolOutputTruncated  = "TOOL_OUTPUT_TRUNCATED"
	ReasonMissingUserPrompt    = "MISSING_USER_PROMPT"
	ReasonPromptTooShort       = "PROMPT_TOO_SHORT"
	ReasonMissingRequiredField = "MISSING_REQUIRED_FIELD"
)

// DefaultMinPromptLength is the shortest prompt accepted by PromptRichness.
const DefaultMinPromptLength = 10

// ErrUnknownPolicy is returned by ParsePolicy for unrecognised names.
var ErrUnknownPolicy = errors.New("unknown missing-data policy")

// Policy decides what a filter does when the data it needs is absent.
type Policy string

const (
	// Lenient lets the trace through; the filter abstains.
	Lenient Policy = "lenient"
	// Strict rejects the trace with a MISSING_REQUIRED_FIELD reason.
	Strict Policy = "strict"
)

// ParsePolicy parses a policy name. The empty string means Lenient.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", Lenient:
		return Lenient, nil
	case Strict:
		return Strict, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// missing applies the policy to an absent field.
func (p Policy) missing(field string) (string, bool) {
	if p != Strict {
		return "", false
	}
	return fmt.Sprintf("%s: %s", ReasonMissingRequiredField, field), true
}

// Filter inspects a trace and reports whether it must be rejected.
// Implementations never modify the trace.
type Filter interface {
	Name() string
	// Check returns the rejection code and true when the trace fails.
	Check(t *trace.Trace) (string, bool)
}

// Chain is an ordered set of filters.
type Chain []Filter

// Run applies every filter, without short-circuiting, and returns all
// rejection codes in filter order. An empty result means the trace passed.
func (c Chain) Run(t *trace.Trace) []string {
	var reasons []string
	for _, f := range c {
		if reason, rejected := f.Check(t); rejected {
			reasons = append(reasons, reason)
		}
	}
	return reasons
}

// Names lists the filters in order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, f := range c {
		names[i] = f.Name()
	}
	return names
}
