package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"dialogue-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.TokenCounter = (*TiktokenCounter)(nil)

// TiktokenCounter counts tokens with the model's BPE encoding, falling back
// to cl100k_base for unknown models and to a byte heuristic when no encoding
// can be loaded at all. Encodings are cached per model.
type TiktokenCounter struct {
	mu   sync.Mutex
	encs map[string]*tiktoken.Tiktoken
}

func NewTokenCounter() *TiktokenCounter {
	return &TiktokenCounter{encs: make(map[string]*tiktoken.Tiktoken)}
}

func (c *TiktokenCounter) Count(model, text string) int {
	if text == "" {
		return 0
	}
	enc := c.encoding(model)
	if enc == nil {
		return approxTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encs[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		enc = nil
	}
	c.encs[model] = enc
	return enc
}

// approxTokens is roughly four bytes per token for English text.
func approxTokens(text string) int {
	return len(text)/4 + 1
}

// HeuristicCounter never loads an encoding.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(_ string, text string) int {
	if text == "" {
		return 0
	}
	return approxTokens(text)
}
