package machine

import "fmt"

// Index is the flattened, qualified-name-keyed view of a Machine's node
// tree, built once per snapshot and consulted by validation, the State
// Builder, and the template/guard evaluator.
type Index struct {
	Nodes map[string]*Node
	// Order preserves first-declaration order at the top level, used to
	// pick the "first declared node" fallback when no explicit or unique
	// init node exists.
	Order []string
}

// BuildIndex walks the node tree (depth-first, preserving declaration
// order) and returns a flattened qualified-name index. Nested nodes are
// addressed by joining each ancestor's name with '.' via QualifiedName.
func BuildIndex(m *Machine) *Index {
	idx := &Index{Nodes: make(map[string]*Node)}
	var walk func(prefix string, nodes []Node)
	walk = func(prefix string, nodes []Node) {
		for i := range nodes {
			n := &nodes[i]
			qname := n.Name
			if prefix != "" {
				qname = QualifiedName(prefix, n.Name)
			}
			idx.Nodes[qname] = n
			if prefix == "" {
				idx.Order = append(idx.Order, qname)
			}
			if len(n.Nodes) > 0 {
				walk(qname, n.Nodes)
			}
		}
	}
	walk("", m.Nodes)
	return idx
}

// StrictMode reports whether the machine carries a `strict` (or alias
// `StrictMode`) annotation whose value does not explicitly disable it. The
// core surfaces this only to decide whether an unresolved reference should
// have been an error upstream; the core itself never aborts on it — it
// always auto-creates missing targets as empty states per §3.
func StrictMode(m *Machine) bool {
	for _, a := range m.Annotations {
		if isStrictAlias(a.Name) {
			if v, ok := a.Value.(string); ok && v == "false" {
				return false
			}
			return true
		}
	}
	return false
}

func isStrictAlias(name string) bool {
	return name == "strict" || name == "StrictMode"
}

// ResolveReferences walks every edge segment target and, for any qualified
// name absent from idx, synthesizes an empty `state` node under that name.
// This mirrors the non-strict auto-create behavior of §3; strict-mode
// enforcement itself lives in the out-of-scope external validator, so this
// function never returns an error — it always leaves the machine in a
// resolvable condition, appending any newly-created nodes to m.Nodes.
func ResolveReferences(m *Machine, idx *Index) []string {
	var created []string
	for _, e := range m.Edges {
		for _, seg := range e.Segments {
			if _, ok := idx.Nodes[seg.Target]; ok {
				continue
			}
			n := Node{Name: seg.Target, Type: "state"}
			m.Nodes = append(m.Nodes, n)
			idx.Nodes[seg.Target] = &m.Nodes[len(m.Nodes)-1]
			idx.Order = append(idx.Order, seg.Target)
			created = append(created, seg.Target)
		}
	}
	return created
}

// FindInitNode determines the single logical start node per §3's priority:
// an explicit node of type "init", else the unique node with no incoming
// edges, else the first declared node. Returns an error only when the
// machine has no nodes at all.
func FindInitNode(m *Machine, idx *Index) (string, error) {
	if len(idx.Order) == 0 {
		return "", fmt.Errorf("machine: no top-level nodes declared")
	}

	for _, name := range idx.Order {
		if n := idx.Nodes[name]; n.Type == "init" {
			return name, nil
		}
	}

	incoming := make(map[string]int)
	for _, name := range idx.Order {
		incoming[name] = 0
	}
	for _, e := range m.Edges {
		for _, seg := range e.Segments {
			if _, ok := incoming[seg.Target]; ok {
				incoming[seg.Target]++
			}
		}
	}

	var noIncoming []string
	for _, name := range idx.Order {
		if incoming[name] == 0 {
			noIncoming = append(noIncoming, name)
		}
	}
	if len(noIncoming) == 1 {
		return noIncoming[0], nil
	}

	return idx.Order[0], nil
}
