package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopherdebeer/dygram/pkg/machine"
)

func buildGuardedMachine() *machine.Machine {
	return &machine.Machine{
		Nodes: []machine.Node{
			{Name: "pick", Type: "task"},
			{Name: "Fast", Type: "state"},
			{Name: "Slow", Type: "state"},
		},
		Edges: []machine.Edge{
			{Source: "pick", Segments: []machine.Segment{
				{Target: "Fast", Label: []machine.LabelPart{
					{Value: []machine.LabelValuePart{{Name: "when", Text: `cfg.mode == "fast"`}}},
				}},
				{Target: "Slow", Label: []machine.LabelPart{
					{Value: []machine.LabelValuePart{{Name: "when", Text: `cfg.mode == "slow"`}}},
				}},
			}},
		},
	}
}

func TestBuildDerivesOutboundEdgesWithGuards(t *testing.T) {
	m := buildGuardedMachine()
	cache := Build(m, nil)

	d, ok := cache.Get("pick")
	require.True(t, ok)
	require.Len(t, d.Outbound, 2)
	assert.Equal(t, "Fast", d.Outbound[0].Target)
	assert.Equal(t, `cfg.mode == "fast"`, d.Outbound[0].Guard)
}

func TestInferTypeForTaskViaPromptAttribute(t *testing.T) {
	m := &machine.Machine{
		Nodes: []machine.Node{
			{Name: "n", Attributes: []machine.Attribute{{Name: "prompt", Value: "do X"}}},
		},
	}
	cache := Build(m, nil)
	d, _ := cache.Get("n")
	assert.Equal(t, TypeTask, d.InferredType)
}

func TestInferTypeForInitWhenNoIncoming(t *testing.T) {
	m := &machine.Machine{
		Nodes: []machine.Node{{Name: "n"}},
	}
	cache := Build(m, nil)
	d, _ := cache.Get("n")
	assert.Equal(t, TypeInit, d.InferredType)
}

func TestEdgeSatisfiedEvaluatesGuardAgainstContextValues(t *testing.T) {
	m := buildGuardedMachine()
	cache := Build(m, nil)
	d, _ := cache.Get("pick")

	view := PathView{CurrentNode: "pick", ContextValues: map[string]interface{}{"cfg.mode": "fast"}}

	assert.True(t, EdgeSatisfied(cache, view, d.Outbound[0], nil))
	assert.False(t, EdgeSatisfied(cache, view, d.Outbound[1], nil))
}

func TestEdgeWithNoGuardIsAlwaysSatisfied(t *testing.T) {
	oe := OutboundEdge{Target: "x"}
	assert.True(t, EdgeSatisfied(&Cache{Machine: &machine.Machine{}, Descriptors: map[string]*NodeDescriptor{}}, PathView{}, oe, nil))
}

func TestBarrierAndAsyncAnnotationsAreClassified(t *testing.T) {
	m := &machine.Machine{
		Nodes: []machine.Node{{Name: "a"}, {Name: "b"}},
		Edges: []machine.Edge{
			{Source: "a", Segments: []machine.Segment{
				{Target: "b", Label: []machine.LabelPart{
					{Annotation: &machine.Annotation{Name: "barrier", Value: "j"}},
				}},
			}},
		},
	}
	cache := Build(m, nil)
	d, _ := cache.Get("a")
	require.Len(t, d.BarrierBound, 1)
	require.NotNil(t, d.Outbound[0].Barrier)
	assert.Equal(t, "j", d.Outbound[0].Barrier.ID)
}

// TestBareLabelValueIsTreatedAsImplicitWhenGuard covers a label like
// [reason == "done"] that names no "when"/"unless" keyword at all: it must
// still gate the edge, rather than being silently dropped.
func TestBareLabelValueIsTreatedAsImplicitWhenGuard(t *testing.T) {
	m := &machine.Machine{
		Nodes: []machine.Node{
			{Name: "pick", Type: "task"},
			{Name: "Done", Type: "state"},
		},
		Edges: []machine.Edge{
			{Source: "pick", Segments: []machine.Segment{
				{Target: "Done", Label: []machine.LabelPart{
					{Value: []machine.LabelValuePart{{Text: `reason == "done"`}}},
				}},
			}},
		},
	}
	cache := Build(m, nil)
	d, ok := cache.Get("pick")
	require.True(t, ok)
	require.Len(t, d.Outbound, 1)
	assert.Equal(t, `reason == "done"`, d.Outbound[0].Guard)
	assert.False(t, d.Outbound[0].GuardIsUnless)
}

func TestReflectAnnotationResolvesOnNodeDescriptor(t *testing.T) {
	m := &machine.Machine{
		Nodes: []machine.Node{
			{
				Name:        "a",
				Annotations: []machine.Annotation{{Name: "recheck"}},
			},
		},
	}
	cache := Build(m, nil)
	d, _ := cache.Get("a")
	require.NotNil(t, d.Reflect)
	assert.True(t, d.Reflect.Enabled)
}
