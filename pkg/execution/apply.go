package execution

import "time"

// Apply folds an Observation produced by the Effect Executor back into
// state, returning the new state. It never emits Effects itself — whatever
// the folded-in observation unblocks is decided on the next StepPath call.
func Apply(in *ExecutionState, obs Observation) *ExecutionState {
	st := cloneState(in)
	st.Metadata.LastUpdated = lastUpdated()

	switch obs.Kind {
	case ObsLLMResponse:
		applyLLMResponse(st, obs)
	case ObsToolResult:
		applyToolResult(st, obs)
	case ObsApprovalGranted:
		applyApprovalGranted(st, obs)
	case ObsApprovalDenied:
		applyApprovalDenied(st, obs)
	case ObsCancelRequested:
		failAllNonTerminal(st, FailureCancelled, "cancelled")
	case ObsTimeout:
		failAllNonTerminal(st, FailureTimeout, "timeout: "+string(obs.Scope))
	}
	return st
}

// lastUpdated is a seam so tests can stand in a fixed value; the execution
// core otherwise never calls time.Now directly outside this function.
var lastUpdated = func() time.Time { return time.Now() }

func applyLLMResponse(st *ExecutionState, obs Observation) {
	path := st.PathByID(obs.PathID)
	if path == nil || path.TurnState == nil || path.Status != PathAwaitingLLM {
		return
	}
	path = clonePath(path)
	path.TurnState.Conversation = append(path.TurnState.Conversation, Message{Role: "assistant", Content: obs.Content})
	path.TurnState.LastStopReason = obs.StopReason
	path.TurnState.TokensUsed += obs.Tokens
	path.Status = PathActive
	st.Metadata.TurnCount++
	st.Metadata.TotalTokens += obs.Tokens
	replacePath(st, path)
}

func applyToolResult(st *ExecutionState, obs Observation) {
	path := st.PathByID(obs.PathID)
	if path == nil || path.TurnState == nil || path.Status != PathAwaitingToolResult {
		return
	}
	path = clonePath(path)

	success := obs.Success
	block := ContentBlock{
		Type:      "tool_result",
		ToolUseID: obs.ToolUseID,
		ToolName:  obs.ToolName,
		Output:    obs.Output,
		Success:   &success,
		Error:     obs.Error,
	}
	path.TurnState.Conversation = append(path.TurnState.Conversation, Message{Role: "user", Content: []ContentBlock{block}})
	path.TurnState.PendingToolUses = removeString(path.TurnState.PendingToolUses, obs.ToolUseID)

	if !obs.Success {
		st.Metadata.ErrorCount++
	}
	if len(path.TurnState.PendingToolUses) == 0 {
		path.Status = PathActive
	}
	replacePath(st, path)
}

func applyApprovalGranted(st *ExecutionState, obs Observation) {
	pending, ok := st.PendingApprovals[obs.PathID]
	if !ok {
		return
	}
	path := st.PathByID(obs.PathID)
	if path == nil || path.TurnState == nil {
		return
	}
	path = clonePath(path)
	path.TurnState.ApprovedToolNames = append(path.TurnState.ApprovedToolNames, pending.ToolName)
	path.Status = PathActive
	delete(st.PendingApprovals, obs.PathID)
	replacePath(st, path)
}

func applyApprovalDenied(st *ExecutionState, obs Observation) {
	pending, ok := st.PendingApprovals[obs.PathID]
	if !ok {
		return
	}
	path := st.PathByID(obs.PathID)
	if path == nil || path.TurnState == nil {
		return
	}
	path = clonePath(path)
	delete(st.PendingApprovals, obs.PathID)

	success := false
	block := ContentBlock{Type: "tool_result", ToolName: pending.ToolName, Success: &success, Error: "denied by operator"}
	path.TurnState.Conversation = append(path.TurnState.Conversation, Message{Role: "user", Content: []ContentBlock{block}})
	path.Status = PathActive
	replacePath(st, path)
}

func failAllNonTerminal(st *ExecutionState, kind FailureKind, reason string) {
	for _, p := range st.NonTerminalPaths() {
		p.Status = PathFailed
		p.FailureKind = string(kind)
		p.FailureReason = reason
		p.TurnState = nil
	}
}

func removeString(in []string, s string) []string {
	out := in[:0]
	for _, v := range in {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
