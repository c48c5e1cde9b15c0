package execution

// Message is one turn of conversation in a path's turnState.Conversation.
// This, not any vendor SDK type, is the shape the Execution Runtime and the
// LLM transport contract (pkg/transport) agree on, so the core never takes
// a dependency on a specific vendor's message format.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one block of a Message's content array: text, a tool
// invocation request, or a tool result fed back to the model.
type ContentBlock struct {
	Type string `json:"type"` // "text" | "tool_use" | "tool_result"

	Text string `json:"text,omitempty"`

	ToolUseID string         `json:"toolUseId,omitempty"`
	ToolName  string         `json:"toolName,omitempty"`
	Input     map[string]any `json:"input,omitempty"`

	Output  map[string]any `json:"output,omitempty"`
	Success *bool          `json:"success,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ToolDefinition is the JSON-Schema-shaped tool description sent alongside
// a conversation to the transport, mirroring pkg/tool.Definition without
// importing pkg/tool (message.go stays a leaf of the pure core).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// StopReason enumerates why an LLM turn ended.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopError     StopReason = "error"
)
