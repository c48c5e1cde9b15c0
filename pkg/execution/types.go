// Package execution implements the pure, deterministic decision core of a
// running machine: it performs no I/O — every side effect is described by
// an Effect value for the Effect Executor (pkg/executor) to perform, and
// every external event is folded back in as an Observation via Apply.
package execution

import (
	"time"

	"github.com/christopherdebeer/dygram/pkg/machine"
)

// PathStatus enumerates a path's lifecycle state.
type PathStatus string

const (
	PathActive               PathStatus = "active"
	PathSuspendedAtBarrier   PathStatus = "suspended-at-barrier"
	PathAwaitingLLM          PathStatus = "awaiting-llm"
	PathAwaitingToolResult   PathStatus = "awaiting-tool-result"
	PathAwaitingApproval     PathStatus = "awaiting-approval"
	PathCompleted            PathStatus = "completed"
	PathFailed               PathStatus = "failed"
)

// TurnState is present iff the path is inside an open LLM turn: a
// request/response/tool-result cycle at a task node that has not yet
// closed with `end_turn`.
type TurnState struct {
	NodeName        string     `json:"nodeName"`
	TurnIndex       int        `json:"turnIndex"`
	StepIndex       int        `json:"stepIndex"`
	Conversation    []Message  `json:"conversation"`
	AvailableTools  []string   `json:"availableTools"`
	PendingToolUses []string   `json:"pendingToolUses,omitempty"` // tool_use ids awaiting ToolResult
	TokensUsed      int        `json:"tokensUsed"`

	// LastStopReason records the stop reason of the most recently folded
	// LLMResponse so StepPath can decide what to do next without
	// re-inspecting raw content blocks. Empty in a fresh TurnState; a turn
	// re-opened at the same node keeps it until the next LLMResponse.
	LastStopReason StopReason `json:"lastStopReason,omitempty"`

	// ApprovedToolNames holds tool names that an operator has approved via
	// ApprovalGranted, so a re-evaluated tool_use step does not re-gate them.
	ApprovedToolNames []string `json:"approvedToolNames,omitempty"`

	// Reflected records whether this turn has already spent its one
	// @reflect double-check round (SUPPLEMENTED FEATURES #3), so a node
	// with @reflect enabled never asks twice in the same turn.
	Reflected bool `json:"reflected,omitempty"`
}

// Path is an independent cursor into the machine graph.
type Path struct {
	ID            string            `json:"id"`
	Status        PathStatus        `json:"status"`
	CurrentNode   string            `json:"currentNode"`
	Visited       []string          `json:"visited"`
	ContextValues map[string]any    `json:"contextValues"`
	TurnState     *TurnState        `json:"turnState,omitempty"`
	Priority      int               `json:"priority"`
	FailureKind   string            `json:"failureKind,omitempty"`
	FailureReason string            `json:"failureReason,omitempty"`

	// createdSeq breaks priority ties by creation order (earlier wins). Not
	// persisted meaningfully beyond relative order within one ExecutionState.
	createdSeq int
}

// PendingApproval describes an in-flight tool approval gate for a path in
// PathAwaitingApproval (SPEC_FULL.md's first supplemented feature).
type PendingApproval struct {
	ToolName string         `json:"toolName"`
	Input    map[string]any `json:"input"`
}

// Barrier is a named rendezvous point where multiple paths pause until all
// expected participants arrive. ExpectedPathIDs is populated as paths
// arrive (so state.json shows who is actually waiting); the arrival count
// a barrier needs to release is fixed at creation from the number of
// outbound edges in the snapshot sharing its id, since the participant set
// itself is only known in full once every sibling has actually shown up.
type Barrier struct {
	ExpectedPathIDs map[string]bool `json:"expectedPathIds"`
	ArrivedPathIDs  map[string]bool `json:"arrivedPathIds"`
	ExpectedCount   int             `json:"expectedCount"`
	Merge           bool            `json:"merge"`
}

// Satisfied reports whether every expected participant has arrived.
func (b *Barrier) Satisfied() bool {
	if b.ExpectedCount > 0 {
		return len(b.ArrivedPathIDs) >= b.ExpectedCount
	}
	for id := range b.ExpectedPathIDs {
		if !b.ArrivedPathIDs[id] {
			return false
		}
	}
	return true
}

// Mode enumerates the Turn Loop's stepping granularity; carried in Metadata
// purely as a record of the mode the execution was last driven under — the
// pure core never branches on it itself.
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeStep        Mode = "step"
	ModeStepTurn    Mode = "step-turn"
	ModeStepPath    Mode = "step-path"
	ModePlayback    Mode = "playback"
)

// Metadata carries execution-wide counters and bookkeeping.
type Metadata struct {
	StepCount    int       `json:"stepCount"`
	TurnCount    int       `json:"turnCount"`
	ErrorCount   int       `json:"errorCount"`
	StartedAt    time.Time `json:"startedAt"`
	LastUpdated  time.Time `json:"lastUpdated"`
	Mode         Mode      `json:"mode"`
	TotalTokens  int       `json:"totalTokens"`
}

// ExecutionState is the entire state the Execution Runtime owns
// exclusively; the Effect Executor and Turn Loop never mutate it directly.
type ExecutionState struct {
	Paths            []*Path             `json:"paths"`
	Barriers         map[string]*Barrier `json:"barriers"`
	PendingApprovals map[string]PendingApproval `json:"pendingApprovals,omitempty"`
	Metadata         Metadata            `json:"metadata"`
	MachineSnapshot  *machine.Machine    `json:"machineSnapshot"`
	MachineHash      string              `json:"machineHash"`

	nextPathSeq int
}

// PathByID returns the path with the given id, or nil.
func (s *ExecutionState) PathByID(id string) *Path {
	for _, p := range s.Paths {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// NonTerminalPaths returns every path not yet completed or failed.
func (s *ExecutionState) NonTerminalPaths() []*Path {
	var out []*Path
	for _, p := range s.Paths {
		if p.Status != PathCompleted && p.Status != PathFailed {
			out = append(out, p)
		}
	}
	return out
}

// HighestPriorityActive returns the PathActive path the Turn Loop should
// step next in step-path mode: highest Priority first, ties broken by
// creation order (earlier path wins), the same two fields Path carries for
// this exact purpose. Returns nil if no path is currently active.
func (s *ExecutionState) HighestPriorityActive() *Path {
	var best *Path
	for _, p := range s.Paths {
		if p.Status != PathActive {
			continue
		}
		if best == nil || p.Priority > best.Priority || (p.Priority == best.Priority && p.createdSeq < best.createdSeq) {
			best = p
		}
	}
	return best
}
