package execution

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/christopherdebeer/dygram/pkg/state"
)

// satisfiedOutbound returns every outbound edge at desc whose guard
// currently holds, split into the edges eligible to be chosen as the
// node's transition (everything except a pure, non-barrier async fork) and
// the pure-async edges, which spawn additively regardless of what the
// transition choice turns out to be.
func satisfiedOutbound(cache *state.Cache, desc *state.NodeDescriptor, view state.PathView, log *slog.Logger) (transitionable, pureAsync []state.OutboundEdge) {
	for _, oe := range desc.Outbound {
		if !state.EdgeSatisfied(cache, view, oe, log) {
			continue
		}
		if oe.Async != nil && oe.Async.Enabled && oe.Barrier == nil {
			pureAsync = append(pureAsync, oe)
			continue
		}
		transitionable = append(transitionable, oe)
	}
	return transitionable, pureAsync
}

// isTerminalNode reports whether desc has no real transition to make: no
// outbound edges, every outbound edge is a pure async fork (so the node's
// only purpose is to spawn, never to hand the path onward itself), or an
// explicit `end` attribute marks it as a declared end state.
func isTerminalNode(desc *state.NodeDescriptor) bool {
	hasNonAsyncEdge := false
	for _, oe := range desc.Outbound {
		if !(oe.Async != nil && oe.Async.Enabled && oe.Barrier == nil) {
			hasNonAsyncEdge = true
			break
		}
	}
	if !hasNonAsyncEdge {
		return true
	}
	for _, a := range desc.Node.Attributes {
		if a.Name == "end" {
			if b, ok := a.Value.(bool); ok {
				return b
			}
			if s, ok := a.Value.(string); ok {
				return s == "true"
			}
		}
	}
	return false
}

// chooseOutcome is what chooseTransition decided to do about the node's
// transition, independent of any additive async spawns it also triggered.
type chooseOutcome int

const (
	outcomeNone chooseOutcome = iota
	outcomeComplete
	outcomeTransition
	outcomeAmbiguous
)

func chooseTransition(desc *state.NodeDescriptor, transitionable []state.OutboundEdge) (chooseOutcome, state.OutboundEdge) {
	switch len(transitionable) {
	case 0:
		if isTerminalNode(desc) {
			return outcomeComplete, state.OutboundEdge{}
		}
		return outcomeNone, state.OutboundEdge{}
	case 1:
		return outcomeTransition, transitionable[0]
	default:
		return outcomeAmbiguous, state.OutboundEdge{}
	}
}

// spawnAsyncEdges emits a SpawnPath effect and inserts the new sibling path
// for every pure-async edge satisfied at the source path's current node.
// The source path itself is left untouched here — per the additive fork
// decision it continues past the fork on its own terms.
func spawnAsyncEdges(st *ExecutionState, source *Path, pureAsync []state.OutboundEdge) (*ExecutionState, []Effect) {
	var effects []Effect
	for _, oe := range pureAsync {
		child := &Path{
			ID:          uuid.NewString(),
			Status:      PathActive,
			CurrentNode: source.CurrentNode,
			Priority:    source.Priority,
			createdSeq:  st.nextPathSeq,
		}
		st.nextPathSeq++
		if oe.Async.Priority != 0 {
			child.Priority = oe.Async.Priority
		}
		if oe.Async.CopyContext {
			child.ContextValues = make(map[string]any, len(source.ContextValues))
			for k, v := range source.ContextValues {
				child.ContextValues[k] = v
			}
		} else {
			child.ContextValues = map[string]any{}
		}
		effects = append(effects, Effect{
			Kind:        EffectSpawnPath,
			PathID:      source.ID,
			FromNode:    source.CurrentNode,
			ToNode:      oe.Target,
			CopyContext: oe.Async.CopyContext,
			Priority:    child.Priority,
			Name:        oe.Async.Name,
		})
		st = replacePath(st, child)
		var arriveEffects []Effect
		st, arriveEffects = arriveAtNode(st, child, oe.Target)
		effects = append(effects, arriveEffects...)
	}
	return st, effects
}

// arriveAtNode records a path's arrival at node: appends to visited, emits
// UpdateNodeVisit, and clears any stale turn state from the node it left.
// It is the single place a path's CurrentNode is ever set.
func arriveAtNode(st *ExecutionState, p *Path, node string) (*ExecutionState, []Effect) {
	p.CurrentNode = node
	p.Visited = append(p.Visited, node)
	p.TurnState = nil
	st = replacePath(st, p)
	return st, []Effect{{Kind: EffectUpdateNodeVisit, PathID: p.ID, Node: node}}
}

// commitTransition moves path onto oe, handling the plain, barrier, and
// (already-additive) async cases. The async case is handled by the caller
// via spawnAsyncEdges before this is reached, since async edges are never
// themselves "the" chosen transition.
func commitTransition(cache *state.Cache, st *ExecutionState, path *Path, oe state.OutboundEdge, reason string, log *slog.Logger) (*ExecutionState, []Effect) {
	if oe.Barrier != nil {
		return arriveAtBarrier(cache, st, path, oe, log)
	}
	st, effects := arriveAtNode(st, path, oe.Target)
	effects = append([]Effect{{Kind: EffectTransitionPath, PathID: path.ID, Node: oe.Target, Reason: reason}}, effects...)
	return st, effects
}

// FailPath fails pathID from outside the normal StepPath decision flow, for
// the cases where the I/O boundary itself is what failed rather than
// anything the pure core decided: an InvokeLLM effect exhausting its
// retries, or a playback transport reporting recording_missing. The Turn
// Loop calls this instead of threading those failures back through
// StepPath, since the runtime never otherwise sees executor-level errors.
func FailPath(in *ExecutionState, pathID string, kind FailureKind, message string) *ExecutionState {
	st := cloneState(in)
	path := st.PathByID(pathID)
	if path == nil {
		return st
	}
	st, _ = failPath(st, path, kind, message)
	return st
}

func failPath(st *ExecutionState, path *Path, kind FailureKind, message string) (*ExecutionState, []Effect) {
	path.Status = PathFailed
	path.FailureKind = string(kind)
	path.FailureReason = message
	path.TurnState = nil
	st = replacePath(st, path)
	return st, []Effect{{Kind: EffectFailPath, PathID: path.ID, Node: path.CurrentNode, Error: fmt.Sprintf("%s: %s", kind, message)}}
}

func completePath(st *ExecutionState, path *Path, reason string) (*ExecutionState, []Effect) {
	path.Status = PathCompleted
	path.TurnState = nil
	st = replacePath(st, path)
	return st, []Effect{{Kind: EffectCompletePath, PathID: path.ID, Node: path.CurrentNode, Reason: reason}}
}
