package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopherdebeer/dygram/pkg/machine"
	"github.com/christopherdebeer/dygram/pkg/state"
)

func TestToolsExposedIncludesSatisfiedTransitionTools(t *testing.T) {
	m := &machine.Machine{
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
	cache := state.Build(m, nil)
	desc, ok := cache.Get("pick")
	require.True(t, ok)

	reg := New()
	view := state.PathView{CurrentNode: "pick", ContextValues: map[string]interface{}{"cfg.mode": "fast"}}
	tools := reg.ToolsExposed(cache, desc, view, nil)

	var names []string
	for _, tl := range tools {
		names = append(names, tl.Name())
	}
	assert.Contains(t, names, "transition_to_Fast")
	assert.NotContains(t, names, "transition_to_Slow")
}

func TestTransitionTargetParsesToolName(t *testing.T) {
	assert.Equal(t, "Fast", TransitionTarget("transition_to_Fast"))
	assert.Equal(t, "", TransitionTarget("read_file"))
}

func TestToolsExposedIncludesOptedInStaticTools(t *testing.T) {
	m := &machine.Machine{
		Nodes: []machine.Node{
			{Name: "n", Type: "task", Attributes: []machine.Attribute{
				{Name: "tools", Value: []interface{}{"read_file"}},
			}},
		},
	}
	cache := state.Build(m, nil)
	desc, _ := cache.Get("n")

	reg := New()
	require.NoError(t, reg.RegisterStatic(NewFuncTool[struct{}]("read_file", "reads a file", false,
		func(ctx context.Context, args struct{}) (map[string]any, error) {
			return map[string]any{}, nil
		})))

	tools := reg.ToolsExposed(cache, desc, state.PathView{CurrentNode: "n"}, nil)
	var names []string
	for _, tl := range tools {
		names = append(names, tl.Name())
	}
	assert.Contains(t, names, "read_file")
}

func TestToolsExposedGatesMetaFamilyOnAnnotation(t *testing.T) {
	m := &machine.Machine{
		Nodes: []machine.Node{
			{Name: "n", Type: "task", Annotations: []machine.Annotation{{Name: "meta"}}},
		},
	}
	cache := state.Build(m, nil)
	desc, _ := cache.Get("n")

	reg := New()
	require.NoError(t, reg.RegisterMeta(NewFuncTool[struct{}]("get_machine_definition", "reads the machine", false,
		func(ctx context.Context, args struct{}) (map[string]any, error) {
			return map[string]any{}, nil
		})))

	tools := reg.ToolsExposed(cache, desc, state.PathView{CurrentNode: "n"}, nil)
	var names []string
	for _, tl := range tools {
		names = append(names, tl.Name())
	}
	assert.Contains(t, names, "get_machine_definition")
}
