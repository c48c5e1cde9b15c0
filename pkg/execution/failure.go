package execution

import "fmt"

// FailureKind enumerates the stable, machine-readable reasons a path or an
// execution can fail.
type FailureKind string

const (
	FailureInputError             FailureKind = "input_error"
	FailureAmbiguousTransition    FailureKind = "ambiguous_transition"
	FailureAmbiguousTermination   FailureKind = "ambiguous_termination"
	FailureGuardEvaluationError   FailureKind = "guard_evaluation_error"
	FailureTemplateResolutionErr  FailureKind = "template_resolution_error"
	FailureToolError              FailureKind = "tool_error"
	FailureLLMTransportError      FailureKind = "llm_unavailable"
	FailureRecordingMissing       FailureKind = "recording_missing"
	FailureRecordingMismatch      FailureKind = "recording_mismatch"
	FailureCycleDetected          FailureKind = "cycle_detected"
	FailureMaxSteps               FailureKind = "max_steps"
	FailureMaxNodeInvocations     FailureKind = "max_node_invocations"
	FailureTimeout                FailureKind = "timeout"
	FailureMachineDrift           FailureKind = "machine_drift"
	FailureCancelled              FailureKind = "cancelled"
	FailureNodeRemoved            FailureKind = "node_removed"
)

// Failure is the core's structural error type: a stable, machine-readable
// kind plus a human message, carrying enough context (path, node) for
// `exec status` and state.json to surface without further interpretation.
type Failure struct {
	Kind    FailureKind
	PathID  string
	Node    string
	Message string
}

func (f *Failure) Error() string {
	if f.PathID != "" {
		return fmt.Sprintf("%s: path %s at %s: %s", f.Kind, f.PathID, f.Node, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// NewFailure constructs a Failure.
func NewFailure(kind FailureKind, pathID, node, message string) *Failure {
	return &Failure{Kind: kind, PathID: pathID, Node: node, Message: message}
}
