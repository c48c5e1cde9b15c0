package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/christopherdebeer/dygram/pkg/machine"
)

// MachineHost is the minimal surface the meta-tool family needs from its
// host (pkg/loop's Turn Loop): read the live snapshot, and atomically swap
// it for a validated replacement. Defined here rather than depending on
// pkg/execution or pkg/loop, so this package stays a leaf the rest of the
// tree can import without a cycle.
type MachineHost interface {
	CurrentMachine() *machine.Machine
	ApplyMachine(next *machine.Machine) error
}

// GetMachineDefinition is the get_machine_definition meta-tool: returns
// the live snapshot as JSON.
type GetMachineDefinition struct {
	host MachineHost
}

// NewGetMachineDefinition binds the tool to host.
func NewGetMachineDefinition(host MachineHost) *GetMachineDefinition {
	return &GetMachineDefinition{host: host}
}

func (t *GetMachineDefinition) Name() string        { return "get_machine_definition" }
func (t *GetMachineDefinition) Description() string { return "Return the current machine definition as JSON." }
func (t *GetMachineDefinition) RequiresApproval() bool { return false }
func (t *GetMachineDefinition) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *GetMachineDefinition) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(t.host.CurrentMachine())
	if err != nil {
		return nil, fmt.Errorf("get_machine_definition: %w", err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("get_machine_definition: %w", err)
	}
	return asMap, nil
}

// UpdateDefinitionArgs is the expected input shape for update_definition.
type UpdateDefinitionArgs struct {
	Definition map[string]any `json:"definition"`
}

// UpdateDefinition is the update_definition meta-tool: validates the
// submitted machine shape and, if valid, atomically swaps the live
// snapshot via host.ApplyMachine (which is responsible for rebuilding the
// descriptor cache and emitting the MachineUpdated log effect).
type UpdateDefinition struct {
	host MachineHost
}

// NewUpdateDefinition binds the tool to host.
func NewUpdateDefinition(host MachineHost) *UpdateDefinition {
	return &UpdateDefinition{host: host}
}

func (t *UpdateDefinition) Name() string        { return "update_definition" }
func (t *UpdateDefinition) Description() string { return "Replace the current machine definition with a new one, after validating its shape." }
func (t *UpdateDefinition) RequiresApproval() bool { return false }
func (t *UpdateDefinition) InputSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"definition": map[string]any{"type": "object"}},
		"required":   []string{"definition"},
	}
}

func (t *UpdateDefinition) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	defRaw, ok := args["definition"]
	if !ok {
		return nil, fmt.Errorf("update_definition: missing definition")
	}
	raw, err := json.Marshal(defRaw)
	if err != nil {
		return nil, fmt.Errorf("update_definition: %w", err)
	}
	var next machine.Machine
	if err := json.Unmarshal(raw, &next); err != nil {
		return nil, fmt.Errorf("update_definition: invalid shape: %w", err)
	}
	if err := validateShape(&next); err != nil {
		return nil, fmt.Errorf("update_definition: %w", err)
	}
	if err := t.host.ApplyMachine(&next); err != nil {
		return nil, fmt.Errorf("update_definition: %w", err)
	}
	return map[string]any{"applied": true}, nil
}

func validateShape(m *machine.Machine) error {
	if m.Title == "" {
		return fmt.Errorf("definition must have a non-empty title")
	}
	if len(m.Nodes) == 0 {
		return fmt.Errorf("definition must declare at least one node")
	}
	seen := make(map[string]bool, len(m.Nodes))
	for _, n := range m.Nodes {
		if n.Name == "" {
			return fmt.Errorf("every node must have a name")
		}
		if seen[n.Name] {
			return fmt.Errorf("duplicate top-level node name %q", n.Name)
		}
		seen[n.Name] = true
	}
	return nil
}

// ConstructToolArgs is the expected input shape for construct_tool. A call
// naming only name/description registers a synthetic no-op tool; one that
// also names command attaches an external MCP server as this execution's
// live source for that tool instead.
type ConstructToolArgs struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Filter      []string          `json:"filter,omitempty"`
}

// ExternalToolConfig names an external process construct_tool should dial
// for its tool catalogue, the shape a meta-rewrite submits to attach an MCP
// server without this package needing to know anything about MCP itself.
type ExternalToolConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	Filter  []string
}

// ExternalToolSource is the minimal surface an external tool source (an MCP
// toolset, or any future equivalent) exposes to construct_tool.
type ExternalToolSource interface {
	Tools(ctx context.Context) ([]Tool, error)
}

// ExternalSourceFactory builds an ExternalToolSource from a submitted
// config. Defined here, rather than this package importing mcptoolset
// directly, to avoid the import cycle mcptoolset's dependency on Tool would
// otherwise create; the CLI wires the concrete factory in at startup.
type ExternalSourceFactory func(cfg ExternalToolConfig) ExternalToolSource

// ConstructTool is the construct_tool meta-tool: registers a new,
// execution-scoped tool into the registry's dynamic surface. Per
// DESIGN.md's Open Question #3, it never spawns paths or mutates
// ExecutionState directly — it only extends what's offered to future LLM
// turns.
type ConstructTool struct {
	registry *Registry
	external ExternalSourceFactory
}

// NewConstructTool binds the tool to reg, the registry it registers into.
// factory may be nil, in which case a call naming command is rejected
// rather than silently falling back to a synthetic stub.
func NewConstructTool(reg *Registry, factory ExternalSourceFactory) *ConstructTool {
	return &ConstructTool{registry: reg, external: factory}
}

func (t *ConstructTool) Name() string        { return "construct_tool" }
func (t *ConstructTool) Description() string {
	return "Construct a new tool available for the remainder of this execution, optionally backed by an external MCP server."
}
func (t *ConstructTool) RequiresApproval() bool { return true }
func (t *ConstructTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"command":     map[string]any{"type": "string"},
			"args":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"filter":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"name", "description"},
	}
}

func (t *ConstructTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	name, _ := args["name"].(string)
	description, _ := args["description"].(string)
	if name == "" {
		return nil, fmt.Errorf("construct_tool: name is required")
	}

	command, _ := args["command"].(string)
	if command == "" {
		synthetic := NewFuncTool[map[string]any](name, description, false,
			func(ctx context.Context, a map[string]any) (map[string]any, error) {
				return map[string]any{"note": "synthetic tool has no attached behavior"}, nil
			})
		t.registry.static.Put(name, synthetic)
		return map[string]any{"constructed": name}, nil
	}

	if t.external == nil {
		return nil, fmt.Errorf("construct_tool: external tool sources are not enabled for this execution")
	}

	source := t.external(ExternalToolConfig{
		Name:    name,
		Command: command,
		Args:    stringSliceArg(args["args"]),
		Filter:  stringSliceArg(args["filter"]),
	})
	tools, err := source.Tools(ctx)
	if err != nil {
		return nil, fmt.Errorf("construct_tool: %w", err)
	}
	for _, tl := range tools {
		t.registry.static.Put(tl.Name(), tl)
	}

	return map[string]any{"constructed": name, "tools": toolNames(tools)}, nil
}

func stringSliceArg(v any) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toolNames(tools []Tool) []string {
	out := make([]string, 0, len(tools))
	for _, tl := range tools {
		out = append(out, tl.Name())
	}
	return out
}
