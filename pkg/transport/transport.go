// Package transport implements the LLM transport contract the Effect
// Executor (pkg/executor) calls on InvokeLLM: invokeWithTools(messages,
// tools, options) -> { content, stopReason }. The core never references a
// vendor SDK type — every transport in this package consumes and produces
// only execution.Message, execution.ToolDefinition, and execution.StopReason,
// so pkg/execution stays free of any transport dependency while pkg/executor
// wires a concrete implementation in.
package transport

import (
	"context"

	"github.com/christopherdebeer/dygram/pkg/execution"
)

// Options carries the per-request knobs a transport needs beyond the
// message/tool catalogue: which model to address, the resolved system
// prompt (rendered separately from the conversation since several vendor
// wire formats, Anthropic included, carry it in its own field), and
// generation limits.
type Options struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// Response is the vendor-agnostic shape every LLMTransport returns.
type Response struct {
	Content    []execution.ContentBlock
	StopReason execution.StopReason
	Tokens     int
}

// LLMTransport is the request/response contract described above. A live
// transport performs the actual network call; a recording transport wraps
// one to persist responses; a playback transport never touches the network
// at all.
type LLMTransport interface {
	InvokeWithTools(ctx context.Context, conversation []execution.Message, tools []execution.ToolDefinition, opts Options) (Response, error)
}
