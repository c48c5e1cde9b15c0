// Package persistence implements the on-disk execution record (C8): the
// state/metadata/machine-snapshot/history directory an execution is
// checkpointed into between steps, plus the recording/playback store the
// LLM transport replays fingerprinted exchanges against.
//
// Modeled on pkg/checkpoint's Storage/State split in the teacher — state
// capture and recovery keyed by an id, loaded back into the same shape it
// was saved from — adapted from session-state-embedded checkpoints to a
// plain directory tree, since this module has no session.Service to host
// state inside.
package persistence

import (
	"time"

	"github.com/christopherdebeer/dygram/pkg/execution"
)

// Metadata is metadata.json: the execution record's header, kept separate
// from state.json so a lightweight `exec list` can stat every execution's
// metadata without parsing its (potentially large) conversation state.
type Metadata struct {
	ID             string          `json:"id"`
	MachineFile    string          `json:"machineFile"`
	MachineSource  string          `json:"machineSource"` // hash of the machine file's bytes at save time
	StartedAt      time.Time       `json:"startedAt"`
	LastExecutedAt time.Time       `json:"lastExecutedAt"`
	TurnCount      int             `json:"turnCount"`
	StepCount      int             `json:"stepCount"`
	Status         string          `json:"status"`
	Mode           execution.Mode  `json:"mode"`
	ClientConfig   map[string]any  `json:"clientConfig,omitempty"`
}

// HistoryEntry is one line of history.jsonl: a closed turn's summary,
// appended once per turn, never rewritten.
type HistoryEntry struct {
	Turn      int       `json:"turn"`
	Timestamp time.Time `json:"timestamp"`
	Node      string    `json:"node"`
	Tools     []string  `json:"tools,omitempty"`
	Output    string    `json:"output"`
	Status    string    `json:"status"`
}

// statusOf derives metadata.json's status string from an ExecutionState:
// running while any path remains non-terminal, otherwise completed or
// failed depending on whether any path ended in failure.
func statusOf(st *execution.ExecutionState) string {
	anyFailed := false
	for _, p := range st.Paths {
		switch p.Status {
		case execution.PathCompleted:
		case execution.PathFailed:
			anyFailed = true
		default:
			return "running"
		}
	}
	if anyFailed {
		return "failed"
	}
	return "completed"
}
