package execution

// Budgets bounds a running execution against runaway graphs: a cycle that
// never terminates, a single node invoked without limit, or a pathological
// machine that simply takes too many steps to converge. It also carries the
// one piece of global configuration the pure core needs at all — the
// default model name — since there is no process-wide singleton to read it
// from; callers thread it through construction like everything else.
type Budgets struct {
	MaxSteps             int
	MaxNodeInvocations   int
	CycleDetectionWindow int

	// DefaultModel names the model an InvokeLLM effect requests when the
	// target node's descriptor does not override it with a `model` attribute.
	DefaultModel string
}

// DefaultBudgets returns the conservative defaults a fresh execution starts
// with absent an explicit override.
func DefaultBudgets() Budgets {
	return Budgets{
		MaxSteps:             1000,
		MaxNodeInvocations:   100,
		CycleDetectionWindow: 16,
		DefaultModel:         "claude-sonnet-4-20250514",
	}
}

// visitCount returns how many times node appears in visited.
func visitCount(visited []string, node string) int {
	n := 0
	for _, v := range visited {
		if v == node {
			n++
		}
	}
	return n
}

// cycleDetected reports whether node has recurred within the trailing
// window of visited, which is a cheap, order-sensitive proxy for "the path
// is looping" without requiring full graph analysis: a node that keeps
// reappearing inside a short trailing window is almost certainly stuck in
// a cycle, whereas one that recurs only after many unrelated steps is more
// likely a legitimately revisited hub node.
func cycleDetected(visited []string, node string, window int) bool {
	if window <= 0 || len(visited) < window {
		return false
	}
	start := len(visited) - window
	count := 0
	for _, v := range visited[start:] {
		if v == node {
			count++
		}
	}
	return count >= 2
}
