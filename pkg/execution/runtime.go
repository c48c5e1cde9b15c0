package execution

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/christopherdebeer/dygram/pkg/machine"
	"github.com/christopherdebeer/dygram/pkg/state"
	"github.com/christopherdebeer/dygram/pkg/template"
	"github.com/christopherdebeer/dygram/pkg/tool"
)

// NextAction tells the caller (the Turn Loop) what StepPath just did, so it
// can decide whether to keep stepping this path, move to another, or stop.
type NextAction string

const (
	ActionContinue  NextAction = "continue"  // more work ready without external input
	ActionSuspended NextAction = "suspended" // waiting on an Observation or a barrier
	ActionTerminal  NextAction = "terminal"  // path completed or failed
)

func hasPrompt(d *state.NodeDescriptor) (string, bool) {
	for _, a := range d.Node.Attributes {
		if a.Name == "prompt" {
			if s, ok := a.Value.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// hasSystemPrompt resolves a node's `systemPrompt` attribute, falling back
// to a machine-level `systemPrompt` attribute so one default can cover
// every task node that doesn't override it. Mirrors hasPrompt's shape.
func hasSystemPrompt(d *state.NodeDescriptor, cache *state.Cache) (string, bool) {
	for _, a := range d.Node.Attributes {
		if a.Name == "systemPrompt" {
			if s, ok := a.Value.(string); ok {
				return s, true
			}
		}
	}
	for _, a := range cache.Machine.Attributes {
		if a.Name == "systemPrompt" {
			if s, ok := a.Value.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

func toolDefinitions(tools []tool.Tool) []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, ToolDefinition{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()})
	}
	return defs
}

func toolNames(tools []tool.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name())
	}
	return names
}

// Init places the first path at the machine's logical start node and
// performs that node's arrival processing (visit accounting). It does not
// spawn async paths, invoke an LLM or emit a transition —
// the first StepPath call does that.
func Init(cache *state.Cache, budgets Budgets, mode Mode) (*ExecutionState, []Effect, error) {
	startNode, err := machine.FindInitNode(cache.Machine, cache.Index)
	if err != nil {
		return nil, nil, err
	}
	st := &ExecutionState{
		Paths:    []*Path{},
		Barriers: map[string]*Barrier{},
		Metadata: Metadata{Mode: mode},
	}
	root := &Path{
		ID:            uuid.NewString(),
		Status:        PathActive,
		ContextValues: map[string]any{},
		Priority:      0,
	}
	st.nextPathSeq = 1
	st.Paths = append(st.Paths, root)

	var effects []Effect
	st, effects = arriveAtNode(st, root, startNode)
	return st, effects, nil
}

// StepPath advances the named path by the smallest meaningful unit,
// returning the updated state, the effects the caller must perform, and
// what the path is now waiting on (if anything).
func StepPath(cache *state.Cache, tools *tool.Registry, budgets Budgets, in *ExecutionState, pathID string, log *slog.Logger) (*ExecutionState, []Effect, NextAction) {
	st := cloneState(in)
	path := st.PathByID(pathID)
	if path == nil {
		return st, nil, ActionTerminal
	}

	switch path.Status {
	case PathCompleted, PathFailed:
		return st, nil, ActionTerminal
	case PathAwaitingLLM, PathAwaitingToolResult, PathAwaitingApproval, PathSuspendedAtBarrier:
		return st, nil, ActionSuspended
	}

	st.Metadata.StepCount++

	desc, ok := cache.Get(path.CurrentNode)
	if !ok {
		var effects []Effect
		st, effects = failPath(st, path, FailureNodeRemoved, "current node no longer exists in snapshot")
		return st, effects, ActionTerminal
	}

	if n := visitCount(path.Visited, path.CurrentNode); n > budgets.MaxNodeInvocations {
		var effects []Effect
		st, effects = failPath(st, path, FailureMaxNodeInvocations, "node invocation budget exceeded")
		return st, effects, ActionTerminal
	}
	if cycleDetected(path.Visited, path.CurrentNode, budgets.CycleDetectionWindow) {
		var effects []Effect
		st, effects = failPath(st, path, FailureCycleDetected, "node recurred within the cycle detection window")
		return st, effects, ActionTerminal
	}
	if st.Metadata.StepCount > budgets.MaxSteps {
		var effects []Effect
		st, effects = failPath(st, path, FailureMaxSteps, "execution step budget exceeded")
		return st, effects, ActionTerminal
	}

	if desc.InferredType == state.TypeTask {
		return stepTaskNode(cache, tools, budgets, st, path, desc, log)
	}
	return stepPlainNode(cache, st, path, desc, log)
}

// resolveModel returns the node's `model` attribute override if present,
// otherwise the budgets' configured default.
func resolveModel(desc *state.NodeDescriptor, budgets Budgets) string {
	for _, a := range desc.Node.Attributes {
		if a.Name == "model" {
			if s, ok := a.Value.(string); ok && s != "" {
				return s
			}
		}
	}
	return budgets.DefaultModel
}

// stepPlainNode evaluates a non-task node's outbound edges and commits the
// single satisfied transition, spawning any additive async forks first.
func stepPlainNode(cache *state.Cache, st *ExecutionState, path *Path, desc *state.NodeDescriptor, log *slog.Logger) (*ExecutionState, []Effect, NextAction) {
	view := state.PathView{CurrentNode: path.CurrentNode, ContextValues: path.ContextValues}
	transitionable, pureAsync := satisfiedOutbound(cache, desc, view, log)

	var effects []Effect
	st, effects = spawnAsyncEdges(st, path, pureAsync)

	outcome, chosen := chooseTransition(desc, transitionable)
	switch outcome {
	case outcomeComplete:
		var ce []Effect
		st, ce = completePath(st, path, "terminal")
		return st, append(effects, ce...), ActionTerminal
	case outcomeTransition:
		var te []Effect
		st, te = commitTransition(cache, st, path, chosen, "guard satisfied", log)
		effects = append(effects, te...)
		next := st.PathByID(path.ID)
		if next != nil && next.Status == PathSuspendedAtBarrier {
			return st, effects, ActionSuspended
		}
		return st, effects, ActionContinue
	case outcomeAmbiguous:
		var fe []Effect
		st, fe = failPath(st, path, FailureAmbiguousTransition, "multiple outbound edges satisfied")
		return st, append(effects, fe...), ActionTerminal
	default:
		// No satisfied edge and the node isn't terminal: nothing to do until
		// context changes; the loop should not keep re-stepping this path.
		return st, effects, ActionSuspended
	}
}

// stepTaskNode drives the LLM turn lifecycle at a task node: opening a
// turn, reacting to a folded-in LLMResponse's stop reason, and re-opening
// the next turn round once pending tool results have all resolved.
func stepTaskNode(cache *state.Cache, tools *tool.Registry, budgets Budgets, st *ExecutionState, path *Path, desc *state.NodeDescriptor, log *slog.Logger) (*ExecutionState, []Effect, NextAction) {
	view := state.PathView{CurrentNode: path.CurrentNode, ContextValues: path.ContextValues}
	model := resolveModel(desc, budgets)

	if path.TurnState == nil {
		scope := state.BuildScope(cache, view)
		prompt, _ := hasPrompt(desc)
		rendered := template.Render(prompt, scope, log)
		systemPrompt := renderedSystemPrompt(desc, cache, scope, log)
		exposed := tools.ToolsExposed(cache, desc, view, log)

		path.TurnState = &TurnState{
			NodeName:       path.CurrentNode,
			TurnIndex:      0,
			Conversation:   []Message{{Role: "user", Content: []ContentBlock{{Type: "text", Text: rendered}}}},
			AvailableTools: toolNames(exposed),
		}
		path.Status = PathAwaitingLLM
		st = replacePath(st, path)

		defs := toolDefinitions(exposed)
		effect := Effect{
			Kind:         EffectInvokeLLM,
			PathID:       path.ID,
			Node:         path.CurrentNode,
			Model:        model,
			Conversation: path.TurnState.Conversation,
			Tools:        defs,
			SystemPrompt: systemPrompt,
			Fingerprint:  Fingerprint(model, path.TurnState.Conversation, defs, systemPrompt),
		}
		return st, []Effect{effect}, ActionSuspended
	}

	last := path.TurnState.Conversation[len(path.TurnState.Conversation)-1]

	if last.Role == "user" {
		// Tool results (if any) have all resolved — re-open the LLM turn.
		if len(path.TurnState.PendingToolUses) > 0 {
			return st, nil, ActionSuspended
		}
		path.TurnState.TurnIndex++
		path.TurnState.StepIndex = 0
		path.Status = PathAwaitingLLM
		st = replacePath(st, path)

		scope := state.BuildScope(cache, view)
		systemPrompt := renderedSystemPrompt(desc, cache, scope, log)
		exposed := tools.ToolsExposed(cache, desc, view, log)
		defs := toolDefinitions(exposed)
		effect := Effect{
			Kind:         EffectInvokeLLM,
			PathID:       path.ID,
			Node:         path.CurrentNode,
			Model:        model,
			Conversation: path.TurnState.Conversation,
			Tools:        defs,
			SystemPrompt: systemPrompt,
			Fingerprint:  Fingerprint(model, path.TurnState.Conversation, defs, systemPrompt),
		}
		return st, []Effect{effect}, ActionSuspended
	}

	// last.Role == "assistant": a response has been folded in; react to it.
	switch path.TurnState.LastStopReason {
	case StopMaxTokens:
		var fe []Effect
		st, fe = failPath(st, path, FailureLLMTransportError, "response truncated at max_tokens")
		return st, fe, ActionTerminal

	case StopToolUse:
		toolUses := toolUseBlocks(last)
		if len(toolUses) == 0 {
			// Boundary case: tool_use with zero blocks behaves as end_turn.
			return finishTurn(cache, tools, budgets, st, path, desc, view, log)
		}
		if target := transitionTarget(toolUses[0]); target != "" {
			return commitTaskTransition(cache, tools, budgets, st, path, desc, view, target, toolUses[0], log)
		}
		return emitToolInvocations(tools, st, path, toolUses)

	default: // StopEndTurn, StopError treated as end_turn per the turn-close rule
		return finishTurn(cache, tools, budgets, st, path, desc, view, log)
	}
}

// renderedSystemPrompt resolves and templates a node's (or machine's)
// systemPrompt attribute, the same way rendered task prompts are. Returns
// "" when neither declares one, so the effect and its fingerprint behave
// exactly as before this attribute existed.
func renderedSystemPrompt(desc *state.NodeDescriptor, cache *state.Cache, scope *template.Scope, log *slog.Logger) string {
	systemPrompt, ok := hasSystemPrompt(desc, cache)
	if !ok {
		return ""
	}
	return template.Render(systemPrompt, scope, log)
}

func toolUseBlocks(m Message) []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == "tool_use" {
			out = append(out, b)
		}
	}
	return out
}

func transitionTarget(b ContentBlock) string {
	return tool.TransitionTarget(b.ToolName)
}

// commitTaskTransition handles a task node's turn closing via an explicit
// transition_to_* tool call rather than a bare end_turn.
func commitTaskTransition(cache *state.Cache, tools *tool.Registry, budgets Budgets, st *ExecutionState, path *Path, desc *state.NodeDescriptor, view state.PathView, target string, use ContentBlock, log *slog.Logger) (*ExecutionState, []Effect, NextAction) {
	var chosen state.OutboundEdge
	found := false
	for _, oe := range desc.Outbound {
		if oe.Target == target {
			chosen, found = oe, true
			break
		}
	}
	if !found {
		var fe []Effect
		st, fe = failPath(st, path, FailureAmbiguousTermination, "transition tool named an edge not present on this node")
		return st, fe, ActionTerminal
	}
	reason, _ := use.Input["reason"].(string)
	if shouldReflect(desc, path) {
		st, effects := beginReflection(cache, tools, budgets, st, path, desc, view, target, reason, log)
		return st, effects, ActionSuspended
	}
	st, effects := commitTransition(cache, st, path, chosen, reason, log)
	next := st.PathByID(path.ID)
	if next != nil && next.Status == PathSuspendedAtBarrier {
		return st, effects, ActionSuspended
	}
	return st, effects, ActionContinue
}

func finishTurn(cache *state.Cache, tools *tool.Registry, budgets Budgets, st *ExecutionState, path *Path, desc *state.NodeDescriptor, view state.PathView, log *slog.Logger) (*ExecutionState, []Effect, NextAction) {
	transitionable, pureAsync := satisfiedOutbound(cache, desc, view, log)
	var effects []Effect
	st, effects = spawnAsyncEdges(st, path, pureAsync)

	outcome, chosen := chooseTransition(desc, transitionable)
	switch outcome {
	case outcomeComplete:
		var ce []Effect
		st, ce = completePath(st, path, "terminal")
		return st, append(effects, ce...), ActionTerminal
	case outcomeTransition:
		if shouldReflect(desc, path) {
			st, re := beginReflection(cache, tools, budgets, st, path, desc, view, chosen.Target, "end_turn", log)
			return st, append(effects, re...), ActionSuspended
		}
		var te []Effect
		st, te = commitTransition(cache, st, path, chosen, "end_turn", log)
		effects = append(effects, te...)
		next := st.PathByID(path.ID)
		if next != nil && next.Status == PathSuspendedAtBarrier {
			return st, effects, ActionSuspended
		}
		return st, effects, ActionContinue
	default:
		var fe []Effect
		st, fe = failPath(st, path, FailureAmbiguousTermination, "end_turn with zero or multiple satisfied outbound edges")
		return st, append(effects, fe...), ActionTerminal
	}
}

// shouldReflect reports whether desc's @reflect annotation (SUPPLEMENTED
// FEATURES #3) is enabled and hasn't already spent this turn's one
// reflection round.
func shouldReflect(desc *state.NodeDescriptor, path *Path) bool {
	return desc.Reflect != nil && desc.Reflect.Enabled && path.TurnState != nil && !path.TurnState.Reflected
}

// beginReflection issues the @reflect annotation's one extra internal LLM
// turn: rather than committing target outright, it appends a user message
// asking the model to re-check its choice against this node's declared
// guards and re-opens the LLM turn, exactly like any other re-opened turn
// in this file — reflection is not a new effect kind, just one more
// ordinary InvokeLLM round. path.TurnState.Reflected is set first so the
// model's answer this second time is always honored, whichever transition
// tool it calls.
func beginReflection(cache *state.Cache, tools *tool.Registry, budgets Budgets, st *ExecutionState, path *Path, desc *state.NodeDescriptor, view state.PathView, target, reason string, log *slog.Logger) (*ExecutionState, []Effect) {
	path.TurnState.Reflected = true
	prompt := fmt.Sprintf("Before committing, double-check: you chose to transition to %q (%s). Does this still satisfy this node's declared guards? Call the same transition tool to confirm, or a different one if it no longer holds.", target, reason)
	path.TurnState.Conversation = append(path.TurnState.Conversation, Message{Role: "user", Content: []ContentBlock{{Type: "text", Text: prompt}}})
	path.TurnState.TurnIndex++
	path.TurnState.StepIndex = 0
	path.Status = PathAwaitingLLM
	st = replacePath(st, path)

	model := resolveModel(desc, budgets)
	scope := state.BuildScope(cache, view)
	systemPrompt := renderedSystemPrompt(desc, cache, scope, log)
	exposed := tools.ToolsExposed(cache, desc, view, log)
	defs := toolDefinitions(exposed)
	effect := Effect{
		Kind:         EffectInvokeLLM,
		PathID:       path.ID,
		Node:         path.CurrentNode,
		Model:        model,
		Conversation: path.TurnState.Conversation,
		Tools:        defs,
		SystemPrompt: systemPrompt,
		Fingerprint:  Fingerprint(model, path.TurnState.Conversation, defs, systemPrompt),
	}
	return st, []Effect{effect}
}

// emitToolInvocations dispatches the turn's tool_use blocks. If any of them
// names a tool requiring approval, the whole step pauses on that one
// instead of mixing dispatched and gated calls in a single round.
func emitToolInvocations(tools *tool.Registry, st *ExecutionState, path *Path, uses []ContentBlock) (*ExecutionState, []Effect, NextAction) {
	for _, use := range uses {
		if contains(path.TurnState.ApprovedToolNames, use.ToolName) {
			continue
		}
		if t, ok := tools.StaticTool(use.ToolName); ok && t.RequiresApproval() {
			st.PendingApprovals = ensurePendingApprovals(st.PendingApprovals)
			st.PendingApprovals[path.ID] = PendingApproval{ToolName: use.ToolName, Input: use.Input}
			path.Status = PathAwaitingApproval
			st = replacePath(st, path)
			return st, []Effect{{Kind: EffectAwaitApproval, PathID: path.ID, ToolName: use.ToolName, Input: use.Input}}, ActionSuspended
		}
	}

	pending := make([]string, 0, len(uses))
	effects := make([]Effect, 0, len(uses))
	for _, use := range uses {
		pending = append(pending, use.ToolUseID)
		effects = append(effects, Effect{Kind: EffectInvokeTool, PathID: path.ID, ToolUseID: use.ToolUseID, ToolName: use.ToolName, Input: use.Input})
	}
	path.TurnState.PendingToolUses = pending
	path.Status = PathAwaitingToolResult
	st = replacePath(st, path)
	return st, effects, ActionSuspended
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func ensurePendingApprovals(m map[string]PendingApproval) map[string]PendingApproval {
	if m == nil {
		return map[string]PendingApproval{}
	}
	return m
}
