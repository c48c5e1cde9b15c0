// Package visualize implements the Visualization Snapshot (C9): a pure,
// read-only projection of an ExecutionState for external inspectors (a
// CLI status view, a future web UI) to render without ever being able to
// mutate the execution they're looking at.
package visualize

import (
	"sort"

	"github.com/christopherdebeer/dygram/pkg/execution"
	"github.com/christopherdebeer/dygram/pkg/state"
)

// PathSummary is one path's projected state.
type PathSummary struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CurrentNode string `json:"currentNode"`
	Priority    int    `json:"priority"`
}

// NodeState summarizes one node's visit history across every path.
type NodeState struct {
	VisitCount int  `json:"visitCount"`
	IsActive   bool `json:"isActive"`
}

// Transition is one outbound edge available from a node right now, given
// the context of a specific active path sitting on it.
type Transition struct {
	PathID string `json:"pathId"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// Snapshot is the full projection: every path, every visited node's
// aggregate state, and the transitions currently available to active
// paths.
type Snapshot struct {
	ActivePaths         []PathSummary        `json:"activePaths"`
	AllPaths            []PathSummary        `json:"allPaths"`
	NodeStates          map[string]NodeState `json:"nodeStates"`
	AvailableTransitions []Transition        `json:"availableTransitions"`
}

// Project builds a Snapshot from st. It reads st and cache but never
// mutates either; calling it repeatedly against the same state always
// returns an equal result.
func Project(cache *state.Cache, st *execution.ExecutionState) Snapshot {
	snap := Snapshot{
		NodeStates: map[string]NodeState{},
	}

	for _, p := range st.Paths {
		summary := PathSummary{ID: p.ID, Status: string(p.Status), CurrentNode: p.CurrentNode, Priority: p.Priority}
		snap.AllPaths = append(snap.AllPaths, summary)
		if p.Status == execution.PathActive {
			snap.ActivePaths = append(snap.ActivePaths, summary)
		}

		for _, node := range p.Visited {
			ns := snap.NodeStates[node]
			ns.VisitCount++
			snap.NodeStates[node] = ns
		}
		if ns, ok := snap.NodeStates[p.CurrentNode]; ok {
			ns.IsActive = ns.IsActive || p.Status == execution.PathActive
			snap.NodeStates[p.CurrentNode] = ns
		} else {
			snap.NodeStates[p.CurrentNode] = NodeState{IsActive: p.Status == execution.PathActive}
		}
	}

	for _, p := range st.Paths {
		if p.Status != execution.PathActive {
			continue
		}
		desc, ok := cache.Get(p.CurrentNode)
		if !ok {
			continue
		}
		view := state.PathView{CurrentNode: p.CurrentNode, ContextValues: p.ContextValues}
		for _, oe := range desc.Outbound {
			if !state.EdgeSatisfied(cache, view, oe, nil) {
				continue
			}
			snap.AvailableTransitions = append(snap.AvailableTransitions, Transition{PathID: p.ID, From: p.CurrentNode, To: oe.Target})
		}
	}

	sort.Slice(snap.AllPaths, func(i, j int) bool { return snap.AllPaths[i].ID < snap.AllPaths[j].ID })
	sort.Slice(snap.ActivePaths, func(i, j int) bool { return snap.ActivePaths[i].ID < snap.ActivePaths[j].ID })
	sort.Slice(snap.AvailableTransitions, func(i, j int) bool {
		if snap.AvailableTransitions[i].PathID != snap.AvailableTransitions[j].PathID {
			return snap.AvailableTransitions[i].PathID < snap.AvailableTransitions[j].PathID
		}
		return snap.AvailableTransitions[i].To < snap.AvailableTransitions[j].To
	})

	return snap
}
