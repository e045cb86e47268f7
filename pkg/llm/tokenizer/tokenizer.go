// Package tokenizer counts prompt tokens client-side so the agent can keep
// its conversation inside the model's input budget.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/entrhq/webpilot/pkg/types"
)

// Encoding is the BPE used for counting. cl100k_base is close enough for
// every provider in the registry.
const Encoding = "cl100k_base"

// messageOverhead approximates role and delimiter tokens per chat message.
const messageOverhead = 4

// Tokenizer counts tokens with a tiktoken encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New loads the encoding. tiktoken-go may download the BPE ranks on first
// use, so this can fail offline.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, err
	}
	return &Tokenizer{enc: enc}, nil
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || t.enc == nil {
		return Estimate(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessagesTokens counts a conversation including per-message overhead.
func (t *Tokenizer) CountMessagesTokens(messages []*types.Message) int {
	total := 2
	for _, m := range messages {
		total += messageOverhead + t.CountTokens(string(m.Role)) + t.CountTokens(m.Content)
	}
	return total
}

// Estimate is the fallback when no encoding is available: about four
// characters per token.
func Estimate(text string) int {
	return (len(text) + 3) / 4
}

var (
	shared     *Tokenizer
	sharedOnce sync.Once
)

// CountTokens counts with a lazily loaded shared tokenizer, falling back to
// Estimate when the encoding cannot be loaded.
func CountTokens(text string) int {
	sharedOnce.Do(func() {
		tok, err := New()
		if err == nil {
			shared = tok
		}
	})
	return shared.CountTokens(text)
}
