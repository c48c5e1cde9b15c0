package execution

import (
	"log/slog"

	"github.com/christopherdebeer/dygram/pkg/state"
)

// barrierFanIn counts how many outbound edges across the whole snapshot
// carry id: the structural multiplicity a barrier must see arrive before
// it releases, since the actual participant path ids are only known one
// arrival at a time.
func barrierFanIn(cache *state.Cache, id string) int {
	count := 0
	for _, d := range cache.Descriptors {
		for _, oe := range d.Outbound {
			if oe.Barrier != nil && oe.Barrier.ID == id {
				count++
			}
		}
	}
	if count == 0 {
		return 1
	}
	return count
}

// arriveAtBarrier suspends path at the barrier named by oe.Barrier.ID and
// releases it per spec: a merging barrier transitions the last arrival and
// completes every other arrived sibling as "merged"; a non-merging barrier
// releases every arrived participant independently once all have shown up.
func arriveAtBarrier(cache *state.Cache, st *ExecutionState, path *Path, oe state.OutboundEdge, log *slog.Logger) (*ExecutionState, []Effect) {
	id := oe.Barrier.ID
	b, ok := st.Barriers[id]
	if !ok {
		b = &Barrier{
			ExpectedPathIDs: map[string]bool{},
			ArrivedPathIDs:  map[string]bool{},
			ExpectedCount:   barrierFanIn(cache, id),
			Merge:           oe.Barrier.Merge,
		}
		st.Barriers[id] = b
	}

	var arriveEffects []Effect
	st, arriveEffects = arriveAtNode(st, path, oe.Target)
	path.Status = PathSuspendedAtBarrier
	st = replacePath(st, path)
	b.ExpectedPathIDs[path.ID] = true
	b.ArrivedPathIDs[path.ID] = true

	effects := append([]Effect{{Kind: EffectLog, Level: "debug", Message: "path " + path.ID + " arrived at barrier " + id}}, arriveEffects...)

	if !b.Satisfied() {
		return st, effects
	}

	arrived := make([]string, 0, len(b.ArrivedPathIDs))
	for pid := range b.ArrivedPathIDs {
		arrived = append(arrived, pid)
	}
	delete(st.Barriers, id)

	if !b.Merge {
		for _, pid := range arrived {
			p := st.PathByID(pid)
			if p == nil {
				continue
			}
			p.Status = PathActive
			st = replacePath(st, p)
			effects = append(effects, Effect{Kind: EffectTransitionPath, PathID: pid, Node: oe.Target, Reason: "barrier"})
		}
		return st, effects
	}

	// Merge: the arriving path (the last to arrive, since Satisfied just
	// flipped true) proceeds; every other sibling completes as merged.
	releasing := path.ID
	for _, pid := range arrived {
		p := st.PathByID(pid)
		if p == nil {
			continue
		}
		if pid == releasing {
			p.Status = PathActive
			st = replacePath(st, p)
			effects = append(effects, Effect{Kind: EffectTransitionPath, PathID: pid, Node: oe.Target, Reason: "barrier-merge"})
			continue
		}
		var completeEffects []Effect
		st, completeEffects = completePath(st, p, "merged")
		effects = append(effects, completeEffects...)
	}
	return st, effects
}
