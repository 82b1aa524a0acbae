package llm

import (
	"context"
)

// Request is a single chat-style call to the model.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Client defines the interface for LLM providers. The returned string is
// the raw completion text; callers parse it defensively (see ExtractJSONValue).
type Client interface {
	Chat(ctx context.Context, req Request) (string, error)
}
