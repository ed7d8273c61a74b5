// Package llm is the adapter for the generation backend (the model
// gateway sidecar). Components never build HTTP requests themselves;
// they depend on Client and receive typed failures from the shared
// error taxonomy.
package llm

import "context"

// Request is one generation request.
type Request struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Completion is a single structured result.
type Completion struct {
	Content    string `json:"content"`
	Model      string `json:"model,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// Chunk is one fragment of a streamed completion. A terminal transport
// failure is delivered in-band via Err; the channel is closed after
// the last chunk either way.
type Chunk struct {
	Content string
	Err     error
}

// Client is the generation backend capability. Implementations must
// honor ctx cancellation on every call; these calls are the only
// suspension points of a pipeline run.
type Client interface {
	// Complete returns a single full completion.
	Complete(ctx context.Context, req Request) (Completion, error)
	// Stream returns a lazy, finite, non-restartable token sequence.
	// The returned channel is closed when the sequence ends.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}
