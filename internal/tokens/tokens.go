// Package tokens estimates token counts for prompt and response text.
package tokens

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const (
	DefaultEncoding      = "cl100k_base"
	DefaultCharsPerToken = 4
)

// Estimator counts tokens in a piece of text.
type Estimator interface {
	Count(text string) int
}

// BPE ranks ship in the binary; no network fetch at startup.
var offlineRanks sync.Once

// Tiktoken counts tokens with a BPE encoding. It is safe for concurrent use.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	offlineRanks.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Heuristic approximates tokens as a fixed number of characters each.
// It is the fallback when no encoding can be loaded.
type Heuristic struct {
	CharsPerToken int
}

func (h Heuristic) Count(text string) int {
	per := h.CharsPerToken
	if per < 1 {
		per = DefaultCharsPerToken
	}
	return utf8.RuneCountInString(text) / per
}

// Default is cl100k_base, or Heuristic if the encoding failed to load.
var Default = newDefault()

func newDefault() Estimator {
	t, err := NewTiktoken(DefaultEncoding)
	if err != nil {
		return Heuristic{CharsPerToken: DefaultCharsPerToken}
	}
	return t
}

// Count uses Default.
func Count(text string) int { return Default.Count(text) }
