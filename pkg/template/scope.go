// Package template implements the Template / Condition Evaluator (C2):
// `{{ path.attr }}` resolution and the sandboxed boolean guard expression
// language used by edge labels.
package template

import "strings"

// Scope is the read-only view templates and guards resolve names against:
// built from the active path's contextValues, the current node's own
// attributes, reachable context nodes, and machine-level attributes (in that
// priority order — later Set and Merge calls win on key collision).
type Scope struct {
	values map[string]interface{}
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{values: make(map[string]interface{})}
}

// Set assigns a single qualified name to a value.
func (s *Scope) Set(name string, value interface{}) {
	s.values[name] = value
}

// Merge overlays other's entries onto s, with other's values winning on
// collision. Used to layer context sources in priority order.
func (s *Scope) Merge(other map[string]interface{}) {
	for k, v := range other {
		s.values[k] = v
	}
}

// Resolve looks up a dotted qualified name. It first tries an exact match
// (covering flattened names like "cfg.mode" stored verbatim), then walks
// progressively shorter prefixes, descending into nested maps for the
// remaining suffix. Returns ok=false if no segment of the path resolves.
func (s *Scope) Resolve(path string) (interface{}, bool) {
	if v, ok := s.values[path]; ok {
		return v, true
	}

	parts := strings.Split(path, ".")
	for i := len(parts) - 1; i > 0; i-- {
		prefix := strings.Join(parts[:i], ".")
		v, ok := s.values[prefix]
		if !ok {
			continue
		}
		remainder := parts[i:]
		cur := v
		resolved := true
		for _, seg := range remainder {
			m, ok := cur.(map[string]interface{})
			if !ok {
				resolved = false
				break
			}
			cur, ok = m[seg]
			if !ok {
				resolved = false
				break
			}
		}
		if resolved {
			return cur, true
		}
	}
	return nil, false
}
