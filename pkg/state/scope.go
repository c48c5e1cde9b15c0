package state

import (
	"log/slog"

	"github.com/christopherdebeer/dygram/pkg/machine"
	"github.com/christopherdebeer/dygram/pkg/template"
)

// PathView is the minimal read-only slice of path state the guard/template
// evaluator and tool resolution need: deliberately narrower than
// pkg/execution's Path so this package never imports pkg/execution.
type PathView struct {
	CurrentNode   string
	ContextValues map[string]interface{}
}

// BuildScope assembles the read-only template.Scope for a path at a node,
// layering context sources from least to most specific: machine-level
// attributes, reachable context nodes, the current node's own attributes,
// then the path's own contextValues — later layers win on name collision.
func BuildScope(c *Cache, view PathView) *template.Scope {
	scope := template.NewScope()

	// Machine-level attributes (least specific).
	applyAttributes(scope, c.Machine.Attributes)

	// Reachable context nodes.
	for name, d := range c.Descriptors {
		if d.InferredType == TypeContext {
			applyNamedAttributes(scope, name, d.Node.Attributes)
		}
	}

	// Current node's own attributes.
	if d, ok := c.Descriptors[view.CurrentNode]; ok {
		applyAttributes(scope, d.Node.Attributes)
	}

	// Path contextValues (most specific).
	scope.Merge(view.ContextValues)

	return scope
}

func applyAttributes(scope *template.Scope, attrs []machine.Attribute) {
	for _, a := range attrs {
		scope.Set(a.Name, a.Value)
	}
}

func applyNamedAttributes(scope *template.Scope, nodeName string, attrs []machine.Attribute) {
	nested := make(map[string]interface{}, len(attrs))
	for _, a := range attrs {
		nested[a.Name] = a.Value
		scope.Set(machine.QualifiedName(nodeName, a.Name), a.Value)
	}
	scope.Set(nodeName, nested)
}

// EdgeSatisfied reports whether oe's guard (if any) is currently satisfied
// in view's scope. An edge with no guard is always satisfied.
func EdgeSatisfied(c *Cache, view PathView, oe OutboundEdge, log *slog.Logger) bool {
	if oe.Guard == "" {
		return true
	}
	scope := BuildScope(c, view)
	result := template.Eval(oe.Guard, scope, log)
	if oe.GuardIsUnless {
		return !result
	}
	return result
}
