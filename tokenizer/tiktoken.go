// Package tokenizer provides a tiktoken-backed types.Tokenizer for accurate
// token accounting against OpenAI-family encodings, with a character-estimate
// fallback when the encoding cannot be initialized.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/agentkit-go/agentkit/types"
)

// modelEncodings maps model names to tiktoken encodings.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

const defaultEncoding = "cl100k_base"

// Tokenizer counts tokens with tiktoken. Initialization is lazy because the
// first GetEncoding may fetch the vocabulary; on failure every count falls
// back to the estimate tokenizer so callers never see an error here.
type Tokenizer struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback *types.EstimateTokenizer

	// per-message framing overhead, matching the OpenAI chat format.
	msgOverhead int
}

// New creates a Tokenizer for the given model name. Unknown models use the
// cl100k_base encoding; prefix matches cover dated model variants.
func New(model string) *Tokenizer {
	encoding, ok := modelEncodings[model]
	if !ok {
		for prefix, enc := range modelEncodings {
			if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
				encoding, ok = enc, true
				break
			}
		}
	}
	if !ok {
		encoding = defaultEncoding
	}
	return &Tokenizer{
		encoding:    encoding,
		fallback:    types.NewEstimateTokenizer(),
		msgOverhead: 4,
	}
}

func (t *Tokenizer) init() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err == nil {
			t.enc = enc
		}
	})
	return t.enc
}

// CountTokens counts tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	enc := t.init()
	if enc == nil {
		return t.fallback.CountTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessageTokens counts tokens in a single message including framing.
func (t *Tokenizer) CountMessageTokens(msg types.Message) int {
	tokens := t.msgOverhead
	tokens += t.CountTokens(msg.Content)
	if msg.Name != "" {
		tokens += t.CountTokens(msg.Name)
	}
	for _, tc := range msg.ToolCalls {
		tokens += t.CountTokens(tc.Name)
		tokens += len(tc.Arguments) / 4
	}
	return tokens
}

// CountMessagesTokens counts total tokens in a message slice.
func (t *Tokenizer) CountMessagesTokens(msgs []types.Message) int {
	total := 0
	for _, msg := range msgs {
		total += t.CountMessageTokens(msg)
	}
	return total
}
