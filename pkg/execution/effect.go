package execution

// Effect is produced by the runtime for the Effect Executor (C6) to
// perform. Exactly one EffectKind-named field is meaningful per value; the
// tagged-union shape keeps serialization simple without reflection-based
// interface marshaling.
type EffectKind string

const (
	EffectLog                 EffectKind = "Log"
	EffectUpdateNodeVisit     EffectKind = "UpdateNodeVisit"
	EffectInvokeLLM           EffectKind = "InvokeLLM"
	EffectInvokeTool          EffectKind = "InvokeTool"
	EffectWriteVFS            EffectKind = "WriteVFS"
	EffectSpawnPath           EffectKind = "SpawnPath"
	EffectTransitionPath      EffectKind = "TransitionPath"
	EffectCompletePath        EffectKind = "CompletePath"
	EffectFailPath            EffectKind = "FailPath"
	EffectCheckpointRequested EffectKind = "CheckpointRequested"
	EffectAwaitApproval       EffectKind = "AwaitApproval"
)

// Effect is the tagged-union record described above.
type Effect struct {
	Kind EffectKind `json:"kind"`

	// Log
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`

	// UpdateNodeVisit / InvokeLLM / InvokeTool / TransitionPath /
	// CompletePath / FailPath / AwaitApproval / SpawnPath(parent)
	PathID string `json:"pathId,omitempty"`
	Node   string `json:"node,omitempty"`

	// InvokeLLM
	Model        string           `json:"model,omitempty"`
	SystemPrompt string           `json:"systemPrompt,omitempty"`
	Conversation []Message        `json:"conversation,omitempty"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Fingerprint  string           `json:"fingerprint,omitempty"`

	// InvokeTool
	ToolUseID string         `json:"toolUseId,omitempty"`
	ToolName  string         `json:"toolName,omitempty"`
	Input     map[string]any `json:"input,omitempty"`

	// WriteVFS
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`

	// SpawnPath
	FromNode    string `json:"fromNode,omitempty"`
	ToNode      string `json:"toNode,omitempty"`
	CopyContext bool   `json:"copyContext,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	Name        string `json:"name,omitempty"`

	// TransitionPath / FailPath / CompletePath
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`

	// CheckpointRequested
	Label string `json:"label,omitempty"`
}

func logEffect(level, message string) Effect {
	return Effect{Kind: EffectLog, Level: level, Message: message}
}
