// Package state implements the State Builder (C4): derives, from a
// machine.Machine snapshot, an immutable per-node execution descriptor
// cache consulted by the Execution Runtime and Tool Registry. Descriptors
// are pure functions of the snapshot; the cache is rebuilt wholesale
// whenever a meta-rewrite swaps the snapshot.
package state

import (
	"log/slog"

	"github.com/christopherdebeer/dygram/pkg/annotation"
	"github.com/christopherdebeer/dygram/pkg/machine"
)

// OutboundEdge is one resolved (segment, target) pair leaving a node, with
// its guard expression (if any) and any annotations attached to the
// segment's label.
type OutboundEdge struct {
	Target      string
	Guard       string
	GuardIsUnless bool
	Annotations []machine.Annotation
	Async       *annotation.AsyncConfig
	Barrier     *annotation.BarrierConfig
}

// InferredType enumerates the node kinds the State Builder can infer when a
// node's explicit `type` is absent, tried in priority order: an explicit
// type wins outright, then a prompt attribute implies a task node, an
// input schema implies a tool node, a context-prefixed name implies a
// context node, and a node with no incoming edges implies an init node.
const (
	TypeTask    = "task"
	TypeTool    = "tool"
	TypeContext = "context"
	TypeInit    = "init"
	TypeState   = "state"
)

// NodeDescriptor is the cached, derived view of a single node.
type NodeDescriptor struct {
	Name          string
	Node          *machine.Node
	Outbound      []OutboundEdge
	BarrierBound  []int // indices into Outbound carrying a barrier annotation
	AsyncEdges    []int // indices into Outbound carrying an async annotation
	InferredType  string
	IncomingCount int
	Reflect       *annotation.ReflectConfig
}

// Cache is the full descriptor set for a machine snapshot.
type Cache struct {
	Machine     *machine.Machine
	Index       *machine.Index
	Descriptors map[string]*NodeDescriptor
}

// Build derives a Cache from m. log receives warnings from the annotation
// processor for malformed annotation shapes; it may be nil.
func Build(m *machine.Machine, log *slog.Logger) *Cache {
	idx := machine.BuildIndex(m)
	machine.ResolveReferences(m, idx)

	incoming := make(map[string]int)
	for name := range idx.Nodes {
		incoming[name] = 0
	}

	outboundByNode := make(map[string][]OutboundEdge)
	for _, e := range m.Edges {
		for _, seg := range e.Segments {
			incoming[seg.Target]++
			oe := OutboundEdge{Target: seg.Target, Annotations: labelAnnotations(seg.Label)}
			oe.Guard, oe.GuardIsUnless = labelGuard(seg.Label)
			for _, a := range oe.Annotations {
				canon, ok := annotation.Canonicalize(a.Name)
				if !ok {
					continue
				}
				switch canon {
				case "barrier":
					cfg := annotation.BarrierFor(a, log)
					oe.Barrier = &cfg
				case "async":
					cfg := annotation.AsyncFor(a, log)
					oe.Async = &cfg
				}
			}
			outboundByNode[e.Source] = append(outboundByNode[e.Source], oe)
		}
	}

	descriptors := make(map[string]*NodeDescriptor, len(idx.Nodes))
	for name, n := range idx.Nodes {
		outbound := outboundByNode[name]
		d := &NodeDescriptor{
			Name:          name,
			Node:          n,
			Outbound:      outbound,
			IncomingCount: incoming[name],
		}
		for i, oe := range outbound {
			if oe.Barrier != nil {
				d.BarrierBound = append(d.BarrierBound, i)
			}
			if oe.Async != nil && oe.Async.Enabled {
				d.AsyncEdges = append(d.AsyncEdges, i)
			}
		}
		d.InferredType = inferType(n, d)
		for _, a := range n.Annotations {
			canon, ok := annotation.Canonicalize(a.Name)
			if !ok {
				continue
			}
			if canon == "reflect" {
				cfg := annotation.ReflectFor(a, log)
				d.Reflect = &cfg
			}
		}
		descriptors[name] = d
	}

	return &Cache{Machine: m, Index: idx, Descriptors: descriptors}
}

// Get returns the descriptor for a qualified node name.
func (c *Cache) Get(name string) (*NodeDescriptor, bool) {
	d, ok := c.Descriptors[name]
	return d, ok
}

func inferType(n *machine.Node, d *NodeDescriptor) string {
	if n.Type != "" {
		return n.Type
	}
	if hasAttribute(n.Attributes, "prompt") {
		return TypeTask
	}
	if hasAttribute(n.Attributes, "inputSchema") || hasAttribute(n.Attributes, "schema") {
		return TypeTool
	}
	if looksLikeContextName(n.Name) {
		return TypeContext
	}
	if d.IncomingCount == 0 {
		return TypeInit
	}
	return TypeState
}

func hasAttribute(attrs []machine.Attribute, name string) bool {
	for _, a := range attrs {
		if a.Name == name {
			return true
		}
	}
	return false
}

func looksLikeContextName(name string) bool {
	return len(name) >= 7 && name[:7] == "context"
}

func labelGuard(label []machine.LabelPart) (expr string, isUnless bool) {
	for _, part := range label {
		if part.IsAnnotation() {
			continue
		}
		for _, v := range part.Value {
			if v.Name == "when" {
				if s, ok := v.Value.(string); ok {
					return s, false
				}
				if v.Text != "" {
					return v.Text, false
				}
			}
			if v.Name == "unless" {
				if s, ok := v.Value.(string); ok {
					return s, true
				}
				if v.Text != "" {
					return v.Text, true
				}
			}
			// A bare value part (no "when"/"unless" name) is an implicit
			// `when:` guard — a label like `[reason == "done"]` with no
			// explicit keyword still gates the edge.
			if v.Name == "" {
				if s, ok := v.Value.(string); ok && s != "" {
					return s, false
				}
				if v.Text != "" {
					return v.Text, false
				}
			}
		}
	}
	return "", false
}

func labelAnnotations(label []machine.LabelPart) []machine.Annotation {
	var out []machine.Annotation
	for _, part := range label {
		if part.IsAnnotation() {
			out = append(out, *part.Annotation)
		}
	}
	return out
}
