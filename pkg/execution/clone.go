package execution

// clonePath returns a shallow copy of p suitable for copy-on-write
// mutation by StepPath/Apply: slices and the turn state are deep-copied so
// the original path value is never aliased by a returned state'.
func clonePath(p *Path) *Path {
	cp := *p
	cp.Visited = append([]string(nil), p.Visited...)
	cp.ContextValues = make(map[string]any, len(p.ContextValues))
	for k, v := range p.ContextValues {
		cp.ContextValues[k] = v
	}
	if p.TurnState != nil {
		ts := *p.TurnState
		ts.Conversation = append([]Message(nil), p.TurnState.Conversation...)
		ts.AvailableTools = append([]string(nil), p.TurnState.AvailableTools...)
		ts.PendingToolUses = append([]string(nil), p.TurnState.PendingToolUses...)
		ts.ApprovedToolNames = append([]string(nil), p.TurnState.ApprovedToolNames...)
		cp.TurnState = &ts
	}
	return &cp
}

// cloneState returns a shallow, structurally-independent copy of s: the
// Paths slice and Barriers map are copied so callers can replace one
// path's value without mutating the caller's original ExecutionState,
// satisfying the purity invariant that stepPath/apply never mutate their
// input in place.
func cloneState(s *ExecutionState) *ExecutionState {
	cp := *s
	cp.Paths = make([]*Path, len(s.Paths))
	for i, p := range s.Paths {
		cp.Paths[i] = clonePath(p)
	}
	cp.Barriers = make(map[string]*Barrier, len(s.Barriers))
	for k, b := range s.Barriers {
		nb := *b
		nb.ExpectedPathIDs = copySet(b.ExpectedPathIDs)
		nb.ArrivedPathIDs = copySet(b.ArrivedPathIDs)
		cp.Barriers[k] = &nb
	}
	if s.PendingApprovals != nil {
		cp.PendingApprovals = make(map[string]PendingApproval, len(s.PendingApprovals))
		for k, v := range s.PendingApprovals {
			cp.PendingApprovals[k] = v
		}
	}
	return &cp
}

func copySet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// replacePath returns s with path replacing the entry whose ID matches.
func replacePath(s *ExecutionState, path *Path) *ExecutionState {
	for i, p := range s.Paths {
		if p.ID == path.ID {
			s.Paths[i] = path
			return s
		}
	}
	s.Paths = append(s.Paths, path)
	return s
}
