package visualize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		ActivePaths: []PathSummary{
			{ID: "p1", Status: "active", CurrentNode: "A", Priority: 0},
		},
		AllPaths: []PathSummary{
			{ID: "p1", Status: "active", CurrentNode: "A", Priority: 0},
		},
		NodeStates: map[string]NodeState{
			"start": {VisitCount: 1, IsActive: false},
			"A":     {VisitCount: 1, IsActive: true},
		},
		AvailableTransitions: []Transition{
			{PathID: "p1", From: "A", To: "B"},
		},
	}
}

func TestRenderTextListsPathsNodesAndTransitions(t *testing.T) {
	out := RenderText(sampleSnapshot())
	assert.Contains(t, out, "p1")
	assert.Contains(t, out, "active")
	assert.Contains(t, out, "A -> B")
	assert.Contains(t, out, "start")
}

func TestRenderDOTProducesValidGraphSyntax(t *testing.T) {
	out := RenderDOT(sampleSnapshot())
	require.True(t, strings.HasPrefix(out, "digraph execution {"))
	assert.Contains(t, out, `"A" -> "B"`)
	assert.Contains(t, out, "fillcolor=lightgreen")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "}"))
}

func TestRenderSVGEmbedsNodeLabelsAndIsWellFormed(t *testing.T) {
	out := RenderSVG(sampleSnapshot())
	require.True(t, strings.HasPrefix(out, "<svg"))
	assert.Contains(t, out, "<text")
	assert.Contains(t, out, "A (1)")
	assert.Contains(t, out, "</svg>")
}

func TestRenderSVGEscapesNodeNames(t *testing.T) {
	snap := Snapshot{NodeStates: map[string]NodeState{"a&b": {VisitCount: 2}}}
	out := RenderSVG(snap)
	assert.Contains(t, out, "a&amp;b")
	assert.NotContains(t, out, "a&b (2)")
}
