package tool

import (
	"log/slog"
	"strings"

	"github.com/christopherdebeer/dygram/pkg/annotation"
	"github.com/christopherdebeer/dygram/pkg/machine"
	"github.com/christopherdebeer/dygram/pkg/registry"
	"github.com/christopherdebeer/dygram/pkg/state"
)

// Registry is the Tool Registry (C3): a static registration surface plus
// the per-node tool resolution logic.
type Registry struct {
	static *registry.Base[Tool]
	meta   *registry.Base[Tool] // the meta-tool family, registered separately so it can be gated
}

// New returns an empty Tool Registry.
func New() *Registry {
	return &Registry{
		static: registry.New[Tool](),
		meta:   registry.New[Tool](),
	}
}

// RegisterStatic adds a statically-available tool (e.g. read_file,
// write_file) that nodes opt into via a `tools` attribute.
func (r *Registry) RegisterStatic(t Tool) error {
	return r.static.Register(t.Name(), t)
}

// RegisterMeta adds a meta-tool-family member (get_machine_definition,
// update_definition, construct_tool), exposed only at nodes/machines
// carrying `@meta`.
func (r *Registry) RegisterMeta(t Tool) error {
	return r.meta.Register(t.Name(), t)
}

// StaticTool resolves a previously-registered static or meta tool by name,
// used by the Effect Executor to dispatch InvokeTool effects.
func (r *Registry) StaticTool(name string) (Tool, bool) {
	if t, ok := r.static.Get(name); ok {
		return t, true
	}
	return r.meta.Get(name)
}

// transitionTool is the synthetic `transition_to_<Target>` tool generated
// per satisfiable outbound edge. Selecting it commits the path to that
// edge; the Execution Runtime reads the chosen target back out of the tool
// name rather than executing a handler. InputSchema's `reason` field is
// intentionally free-form.
type transitionTool struct {
	target string
}

func (t *transitionTool) Name() string        { return "transition_to_" + t.target }
func (t *transitionTool) Description() string { return "Transition the current path to " + t.target }
func (t *transitionTool) RequiresApproval() bool { return false }
func (t *transitionTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{"type": "string"},
		},
	}
}

// TransitionTarget returns the target node name a transition_to_* tool
// name commits to, or "" if name is not a transition tool.
func TransitionTarget(name string) string {
	const prefix = "transition_to_"
	if strings.HasPrefix(name, prefix) {
		return strings.TrimPrefix(name, prefix)
	}
	return ""
}

// ToolsExposed computes the tool set exposed to the LLM at desc: synthetic
// transition tools for satisfiable outbound edges, static tools opted in
// via a `tools` attribute, and — if the node or machine carries `@meta` —
// the meta-tool family.
func (r *Registry) ToolsExposed(cache *state.Cache, desc *state.NodeDescriptor, view state.PathView, log *slog.Logger) []Tool {
	var tools []Tool

	for _, oe := range desc.Outbound {
		if oe.Async != nil && oe.Async.Enabled && oe.Barrier == nil {
			// A pure-async fork point never blocks the source path on a
			// transition choice (Open Question #2's "additive" decision).
			continue
		}
		if state.EdgeSatisfied(cache, view, oe, log) {
			tools = append(tools, &transitionTool{target: oe.Target})
		}
	}

	for _, name := range optedInToolNames(desc.Node.Attributes) {
		if t, ok := r.static.Get(name); ok {
			tools = append(tools, t)
		}
	}
	for _, name := range optedInToolNames(cache.Machine.Attributes) {
		if t, ok := r.static.Get(name); ok {
			tools = append(tools, t)
		}
	}

	if nodeOrMachineHasMeta(desc.Node, cache.Machine) {
		tools = append(tools, r.meta.List()...)
	}

	return tools
}

func optedInToolNames(attrs []machine.Attribute) []string {
	for _, a := range attrs {
		if a.Name != "tools" {
			continue
		}
		switch v := a.Value.(type) {
		case []interface{}:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return v
		}
	}
	return nil
}

func nodeOrMachineHasMeta(n *machine.Node, m *machine.Machine) bool {
	return hasMetaAnnotation(n.Annotations) || hasMetaAnnotation(m.Annotations)
}

func hasMetaAnnotation(annotations []machine.Annotation) bool {
	for _, a := range annotations {
		canon, ok := annotation.Canonicalize(a.Name)
		if ok && canon == "meta" {
			cfg := annotation.MetaFor(a, nil)
			if cfg.Enabled {
				return true
			}
		}
	}
	return false
}
