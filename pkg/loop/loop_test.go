package loop

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopherdebeer/dygram/pkg/execution"
	"github.com/christopherdebeer/dygram/pkg/executor"
	"github.com/christopherdebeer/dygram/pkg/machine"
	"github.com/christopherdebeer/dygram/pkg/tool"
	"github.com/christopherdebeer/dygram/pkg/transport"
	"github.com/christopherdebeer/dygram/pkg/vfs"
)

func strAttr(name, value string) machine.Attribute {
	return machine.Attribute{Name: name, Value: value}
}

func linearPipeline() *machine.Machine {
	return &machine.Machine{
		Title: "pipeline",
		Nodes: []machine.Node{
			{Name: "start", Type: "init"},
			{Name: "A", Attributes: []machine.Attribute{strAttr("prompt", "do X")}},
			{Name: "B", Attributes: []machine.Attribute{strAttr("prompt", "do Y")}},
		},
		Edges: []machine.Edge{
			{Source: "start", Segments: []machine.Segment{{Target: "A"}}},
			{Source: "A", Segments: []machine.Segment{{Target: "B"}}},
		},
	}
}

type scriptedTransport struct {
	responses []transport.Response
	calls     int
}

func (s *scriptedTransport) InvokeWithTools(ctx context.Context, conversation []execution.Message, tools []execution.ToolDefinition, opts transport.Options) (transport.Response, error) {
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func textResponse(text string) transport.Response {
	return transport.Response{Content: []execution.ContentBlock{{Type: "text", Text: text}}, StopReason: execution.StopEndTurn, Tokens: 5}
}

func newLoop(t *testing.T, m *machine.Machine, live transport.LLMTransport) *Loop {
	t.Helper()
	tools := tool.New()
	exec := executor.New(tools, live, vfs.New(), nil)
	l, err := New(m, tools, exec, execution.DefaultBudgets(), execution.ModeInteractive, nil)
	require.NoError(t, err)
	return l
}

func TestNewPlacesInitialPathAtStart(t *testing.T) {
	l := newLoop(t, linearPipeline(), &scriptedTransport{})
	st := l.State()
	require.Len(t, st.Paths, 1)
	assert.Equal(t, "start", st.Paths[0].CurrentNode)
	assert.False(t, st.Metadata.StartedAt.IsZero())
}

func TestRunDrivesLinearPipelineToCompletion(t *testing.T) {
	live := &scriptedTransport{responses: []transport.Response{textResponse("a done"), textResponse("b done")}}
	l := newLoop(t, linearPipeline(), live)

	err := l.Run(context.Background())
	require.NoError(t, err)

	st := l.State()
	require.Len(t, st.Paths, 1)
	assert.Equal(t, execution.PathCompleted, st.Paths[0].Status)
	assert.Equal(t, 2, live.calls)
}

func TestRunStepPathAdvancesOneStepAtATime(t *testing.T) {
	live := &scriptedTransport{responses: []transport.Response{textResponse("a done"), textResponse("b done")}}
	l := newLoop(t, linearPipeline(), live)

	// New left the path on start. The first RunStepPath call takes the
	// plain start -> A transition without calling the LLM.
	require.NoError(t, l.RunStepPath(context.Background()))
	st := l.State()
	require.Len(t, st.Paths, 1)
	assert.Equal(t, "A", st.Paths[0].CurrentNode)
	assert.Equal(t, 0, live.calls)

	// The second call issues A's InvokeLLM effect; the fake transport
	// answers synchronously, so the response is folded in and the path
	// stays on A.
	require.NoError(t, l.RunStepPath(context.Background()))
	st = l.State()
	assert.Equal(t, "A", st.Paths[0].CurrentNode)
	assert.Equal(t, 1, live.calls)

	// The third call closes A's turn and moves the path to B.
	require.NoError(t, l.RunStepPath(context.Background()))
	st = l.State()
	assert.Equal(t, "B", st.Paths[0].CurrentNode)
	assert.Equal(t, 1, live.calls)

	// The fourth call runs B's LLM turn; the fifth completes the path.
	require.NoError(t, l.RunStepPath(context.Background()))
	assert.Equal(t, 2, live.calls)

	require.NoError(t, l.RunStepPath(context.Background()))
	st = l.State()
	assert.Equal(t, execution.PathCompleted, st.Paths[0].Status)
	assert.Equal(t, 2, live.calls)
}

func TestRunStepTurnStopsAfterOneLLMRoundTrip(t *testing.T) {
	live := &scriptedTransport{responses: []transport.Response{textResponse("a done"), textResponse("b done")}}
	l := newLoop(t, linearPipeline(), live)

	// start -> A, then A's LLM round trip; the path waits on A with the
	// response folded in.
	require.NoError(t, l.RunStepTurn(context.Background()))
	assert.Equal(t, 1, live.calls)
	assert.Equal(t, "A", l.State().Paths[0].CurrentNode)

	// A's turn closes, the path moves to B and B's LLM round trip runs.
	require.NoError(t, l.RunStepTurn(context.Background()))
	assert.Equal(t, 2, live.calls)
	assert.Equal(t, "B", l.State().Paths[0].CurrentNode)

	// B's turn closes with no outbound edge, completing the path.
	require.NoError(t, l.RunStepTurn(context.Background()))
	assert.Equal(t, 2, live.calls)
	assert.Equal(t, execution.PathCompleted, l.State().Paths[0].Status)
}

func TestLLMTransportFailureFailsPathWithLLMUnavailable(t *testing.T) {
	live := &scriptedTransport{} // never called: l.exec is replaced below before any LLM call
	l := newLoop(t, linearPipeline(), live)
	l.exec = executor.New(l.tools, &erroringTransport{}, vfs.New(), nil)

	// The first step only takes start -> A; the second issues A's
	// InvokeLLM effect, which fails on every retry.
	require.NoError(t, l.RunStepPath(context.Background()))
	err := l.RunStepPath(context.Background())
	require.NoError(t, err)

	st := l.State()
	require.Len(t, st.Paths, 1)
	assert.Equal(t, execution.PathFailed, st.Paths[0].Status)
	assert.Equal(t, string(execution.FailureLLMTransportError), st.Paths[0].FailureKind)
}

type erroringTransport struct{}

func (erroringTransport) InvokeWithTools(ctx context.Context, conversation []execution.Message, tools []execution.ToolDefinition, opts transport.Options) (transport.Response, error) {
	return transport.Response{}, assertErr
}

var assertErr = errTransport("boom")

type errTransport string

func (e errTransport) Error() string { return string(e) }

func TestCancelFailsNonTerminalPaths(t *testing.T) {
	l := newLoop(t, linearPipeline(), &scriptedTransport{responses: []transport.Response{textResponse("a done")}})
	l.Cancel()
	st := l.State()
	require.Len(t, st.Paths, 1)
	assert.Equal(t, execution.PathFailed, st.Paths[0].Status)
}

type countingTool struct {
	name    string
	mu      sync.Mutex
	calls   int
	started chan string
}

func (c *countingTool) Name() string               { return c.name }
func (c *countingTool) Description() string        { return "test tool" }
func (c *countingTool) RequiresApproval() bool     { return false }
func (c *countingTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }

func (c *countingTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.started != nil {
		c.started <- c.name
	}
	return map[string]any{"ok": true}, nil
}

func toolUseResponse(uses ...execution.ContentBlock) transport.Response {
	return transport.Response{Content: uses, StopReason: execution.StopToolUse, Tokens: 5}
}

// TestRunDispatchesContiguousToolCallsConcurrently exercises
// performToolBatch: a single assistant turn with two tool_use blocks must
// invoke both tools before either's observation is folded into state, and
// both must actually run rather than one being skipped or serialized away.
func TestRunDispatchesContiguousToolCallsConcurrently(t *testing.T) {
	toolA := &countingTool{name: "tool_a", started: make(chan string, 2)}
	toolB := &countingTool{name: "tool_b", started: toolA.started}

	m := &machine.Machine{
		Title: "fanout",
		Nodes: []machine.Node{
			{Name: "start", Type: "init"},
			{Name: "A", Attributes: []machine.Attribute{
				strAttr("prompt", "use both tools"),
				{Name: "tools", Value: []string{"tool_a", "tool_b"}},
			}},
		},
		Edges: []machine.Edge{
			{Source: "start", Segments: []machine.Segment{{Target: "A"}}},
		},
	}

	live := &scriptedTransport{responses: []transport.Response{
		toolUseResponse(
			execution.ContentBlock{Type: "tool_use", ToolUseID: "t1", ToolName: "tool_a", Input: map[string]any{}},
			execution.ContentBlock{Type: "tool_use", ToolUseID: "t2", ToolName: "tool_b", Input: map[string]any{}},
		),
		textResponse("done"),
	}}

	tools := tool.New()
	require.NoError(t, tools.RegisterStatic(toolA))
	require.NoError(t, tools.RegisterStatic(toolB))
	exec := executor.New(tools, live, vfs.New(), nil)
	l, err := New(m, tools, exec, execution.DefaultBudgets(), execution.ModeInteractive, nil)
	require.NoError(t, err)

	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, execution.PathCompleted, l.State().Paths[0].Status)
	assert.Equal(t, 1, toolA.calls)
	assert.Equal(t, 1, toolB.calls)

	first := <-toolA.started
	second := <-toolA.started
	assert.ElementsMatch(t, []string{"tool_a", "tool_b"}, []string{first, second})
}

func TestApplyMachineFailsPathsAtRemovedNodes(t *testing.T) {
	l := newLoop(t, linearPipeline(), &scriptedTransport{})
	// start -> A, so the path stands on a node the trimmed machine drops.
	require.NoError(t, l.RunStepPath(context.Background()))

	trimmed := &machine.Machine{
		Title: "pipeline",
		Nodes: []machine.Node{
			{Name: "start", Type: "init"},
		},
		Edges: []machine.Edge{},
	}
	require.NoError(t, l.ApplyMachine(trimmed))

	st := l.State()
	require.Len(t, st.Paths, 1)
	assert.Equal(t, execution.PathFailed, st.Paths[0].Status)
	assert.Equal(t, string(execution.FailureNodeRemoved), st.Paths[0].FailureKind)
	assert.Equal(t, "pipeline", l.CurrentMachine().Title)
}
