package visualize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopherdebeer/dygram/pkg/execution"
	"github.com/christopherdebeer/dygram/pkg/machine"
	"github.com/christopherdebeer/dygram/pkg/state"
)

func linearMachine() *machine.Machine {
	return &machine.Machine{
		Title: "pipeline",
		Nodes: []machine.Node{
			{Name: "start", Type: "init"},
			{Name: "A"},
			{Name: "B"},
		},
		Edges: []machine.Edge{
			{Source: "start", Segments: []machine.Segment{{Target: "A"}}},
			{Source: "A", Segments: []machine.Segment{{Target: "B"}}},
		},
	}
}

func TestProjectReflectsActivePathAndAvailableTransitions(t *testing.T) {
	m := linearMachine()
	cache := state.Build(m, nil)
	st, _, err := execution.Init(cache, execution.DefaultBudgets(), execution.ModeInteractive)
	require.NoError(t, err)

	snap := Project(cache, st)

	require.Len(t, snap.ActivePaths, 1)
	assert.Equal(t, "start", snap.ActivePaths[0].CurrentNode)
	require.Contains(t, snap.NodeStates, "start")
	assert.Equal(t, 1, snap.NodeStates["start"].VisitCount)
	assert.True(t, snap.NodeStates["start"].IsActive)

	require.Len(t, snap.AvailableTransitions, 1)
	assert.Equal(t, "start", snap.AvailableTransitions[0].From)
	assert.Equal(t, "A", snap.AvailableTransitions[0].To)
}

func TestProjectDoesNotMutateState(t *testing.T) {
	m := linearMachine()
	cache := state.Build(m, nil)
	st, _, err := execution.Init(cache, execution.DefaultBudgets(), execution.ModeInteractive)
	require.NoError(t, err)

	before := st.Paths[0].CurrentNode
	_ = Project(cache, st)
	assert.Equal(t, before, st.Paths[0].CurrentNode)
}

func TestProjectCompletedPathIsNotActive(t *testing.T) {
	m := linearMachine()
	cache := state.Build(m, nil)
	st, _, err := execution.Init(cache, execution.DefaultBudgets(), execution.ModeInteractive)
	require.NoError(t, err)
	st.Paths[0].Status = execution.PathCompleted

	snap := Project(cache, st)
	assert.Empty(t, snap.ActivePaths)
	require.Len(t, snap.AllPaths, 1)
	assert.Equal(t, "completed", snap.AllPaths[0].Status)
}
