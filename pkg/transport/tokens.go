package transport

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/christopherdebeer/dygram/pkg/execution"
)

// TokenCounter gives an approximate token estimate for a conversation,
// independent of whatever count the transport's usage block eventually
// reports. The executor does not call it; the token counts folded into
// ExecutionState come from that usage block. Anthropic's own tokenizer is not public,
// so cl100k_base is used as the nearest available approximation, same as
// the rest of the pack does for non-OpenAI models.
type TokenCounter struct {
	mu       sync.RWMutex
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache = map[string]*tiktoken.Tiktoken{}
	encodingMu    sync.RWMutex
)

// NewTokenCounter builds a counter for model, falling back to cl100k_base
// when the model has no known tiktoken encoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	encodingMu.RLock()
	cached, ok := encodingCache[model]
	encodingMu.RUnlock()
	if ok {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("token counter: get encoding: %w", err)
		}
	}

	encodingMu.Lock()
	encodingCache[model] = enc
	encodingMu.Unlock()

	return &TokenCounter{encoding: enc, model: model}, nil
}

// Count returns the token length of a single string.
func (tc *TokenCounter) Count(text string) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountConversation estimates the token cost of a full conversation,
// including the per-message role/structure overhead OpenAI's own counting
// recipe applies — close enough across vendors for budget purposes.
func (tc *TokenCounter) CountConversation(conversation []execution.Message) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	const perMessageOverhead = 3
	total := perMessageOverhead // reply priming
	for _, m := range conversation {
		total += perMessageOverhead
		total += len(tc.encoding.Encode(m.Role, nil, nil))
		for _, c := range m.Content {
			total += len(tc.encoding.Encode(c.Text, nil, nil))
			if c.ToolName != "" {
				total += len(tc.encoding.Encode(c.ToolName, nil, nil))
			}
		}
	}
	return total
}
