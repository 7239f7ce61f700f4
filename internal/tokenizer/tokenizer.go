// Package tokenizer provides a fallback token counter used when a provider
// response omits usage accounting, satisfying the root package's
// TokenCounter interface.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// encodingFor maps a canonical model id (or a recognizable prefix of one)
// to the tiktoken encoding it was trained with. Models outside the GPT
// family don't have a real tiktoken encoding; cl100k_base is used as a
// reasonable universal approximation (SPEC_FULL §5.6 only requires a
// fallback estimate, not exact provider-side accounting).
var encodingFor = map[string]string{
	"gpt-4o":      "o200k_base",
	"gpt-4o-mini": "o200k_base",
	"gpt-4-turbo": "cl100k_base",
	"gpt-4":       "cl100k_base",
	"gpt-3.5":     "cl100k_base",
}

const defaultEncoding = "cl100k_base"

// Tokenizer estimates token counts with tiktoken, lazily initializing the
// underlying encoding on first use.
type Tokenizer struct {
	encoding string

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// New constructs a Tokenizer for model, picking the closest matching
// tiktoken encoding by prefix.
func New(model string) *Tokenizer {
	encoding := defaultEncoding
	longest := 0
	for prefix, enc := range encodingFor {
		if len(prefix) > longest && len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			encoding = enc
			longest = len(prefix)
		}
	}
	return &Tokenizer{encoding: encoding}
}

func (t *Tokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = err
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Count returns the estimated token count for text, satisfying
// aigateway.TokenCounter. On encoding-initialization failure it falls back
// to a coarse character-based estimate rather than erroring, since a
// missing usage estimate should degrade pricing accuracy, not the request.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	if err := t.init(); err != nil {
		return estimateByLength(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// estimateByLength approximates token count at ~4 characters per token,
// the commonly cited English-text rule of thumb.
func estimateByLength(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
