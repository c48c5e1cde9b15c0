package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopherdebeer/dygram/pkg/machine"
)

type fakeHost struct {
	current *machine.Machine
	applied *machine.Machine
	err     error
}

func (h *fakeHost) CurrentMachine() *machine.Machine { return h.current }
func (h *fakeHost) ApplyMachine(next *machine.Machine) error {
	if h.err != nil {
		return h.err
	}
	h.applied = next
	return nil
}

func TestGetMachineDefinitionReturnsSnapshot(t *testing.T) {
	host := &fakeHost{current: &machine.Machine{Title: "m", Nodes: []machine.Node{{Name: "a"}}}}
	tool := NewGetMachineDefinition(host)

	out, err := tool.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "m", out["title"])
}

func TestUpdateDefinitionAppliesValidShape(t *testing.T) {
	host := &fakeHost{current: &machine.Machine{Title: "m"}}
	tool := NewUpdateDefinition(host)

	def := map[string]any{
		"title": "m2",
		"nodes": []any{map[string]any{"name": "a"}},
	}
	_, err := tool.Call(context.Background(), map[string]any{"definition": def})
	require.NoError(t, err)
	require.NotNil(t, host.applied)
	assert.Equal(t, "m2", host.applied.Title)
}

func TestUpdateDefinitionRejectsInvalidShape(t *testing.T) {
	host := &fakeHost{current: &machine.Machine{Title: "m"}}
	tool := NewUpdateDefinition(host)

	def := map[string]any{"title": "", "nodes": []any{}}
	_, err := tool.Call(context.Background(), map[string]any{"definition": def})
	assert.Error(t, err)
	assert.Nil(t, host.applied)
}

func TestConstructToolRegistersSyntheticTool(t *testing.T) {
	reg := New()
	ct := NewConstructTool(reg, nil)

	_, err := ct.Call(context.Background(), map[string]any{"name": "my_tool", "description": "does a thing"})
	require.NoError(t, err)

	tl, ok := reg.StaticTool("my_tool")
	require.True(t, ok)
	assert.Equal(t, "my_tool", tl.Name())
}

type fakeToolSource struct {
	tools []Tool
	err   error
}

func (f *fakeToolSource) Tools(ctx context.Context) ([]Tool, error) { return f.tools, f.err }

func TestConstructToolWithCommandRejectsWithoutFactory(t *testing.T) {
	reg := New()
	ct := NewConstructTool(reg, nil)

	_, err := ct.Call(context.Background(), map[string]any{
		"name": "remote_tool", "description": "d", "command": "mcp-server",
	})
	assert.Error(t, err)
}

func TestConstructToolWithCommandRegistersExternalTools(t *testing.T) {
	reg := New()
	remote := NewFuncTool[map[string]any]("remote_tool", "d", false,
		func(ctx context.Context, a map[string]any) (map[string]any, error) { return nil, nil })
	var seen ExternalToolConfig
	ct := NewConstructTool(reg, func(cfg ExternalToolConfig) ExternalToolSource {
		seen = cfg
		return &fakeToolSource{tools: []Tool{remote}}
	})

	out, err := ct.Call(context.Background(), map[string]any{
		"name": "remote_set", "description": "d", "command": "mcp-server", "args": []interface{}{"--flag"},
	})
	require.NoError(t, err)
	assert.Equal(t, "mcp-server", seen.Command)
	assert.Equal(t, []string{"--flag"}, seen.Args)
	assert.Equal(t, []string{"remote_tool"}, out["tools"])

	tl, ok := reg.StaticTool("remote_tool")
	require.True(t, ok)
	assert.Equal(t, "remote_tool", tl.Name())
}
