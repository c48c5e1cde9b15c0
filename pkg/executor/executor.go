// Package executor implements the Effect Executor (C6): the imperative
// half of the turn loop that performs the I/O an Effect names and folds the
// result back into an Observation. The Execution Runtime (pkg/execution)
// decides what to do; this package is the only place that actually does it.
//
// Of the eleven effect kinds only InvokeLLM and InvokeTool cross a real I/O
// boundary. Everything else (Log, UpdateNodeVisit, WriteVFS, SpawnPath,
// TransitionPath, CompletePath, FailPath, CheckpointRequested,
// AwaitApproval) is already fully decided by the runtime and is applied
// here synchronously, in the style of workflow.BaseExecutor's
// ExecutionContext bookkeeping: update a side table, maybe emit a log line,
// done.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/christopherdebeer/dygram/pkg/execution"
	"github.com/christopherdebeer/dygram/pkg/httpclient"
	"github.com/christopherdebeer/dygram/pkg/tool"
	"github.com/christopherdebeer/dygram/pkg/transport"
	"github.com/christopherdebeer/dygram/pkg/vfs"
)

// RetryPolicy bounds how hard the executor tries an InvokeLLM effect before
// giving up and reporting llm_unavailable. The defaults favor a handful of
// quick attempts over a long hang, since the turn loop has its own timeout
// on top of this.
type RetryPolicy struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns the retry bounds used when no override is given.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// Executor performs effects produced by the Execution Runtime.
type Executor struct {
	tools     *tool.Registry
	transport transport.LLMTransport
	vfs       *vfs.VFS
	retry     RetryPolicy
	log       *slog.Logger
}

// New builds an Executor wired to the registries and transport a running
// execution was constructed with.
func New(tools *tool.Registry, llm transport.LLMTransport, fs *vfs.VFS, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{tools: tools, transport: llm, vfs: fs, retry: DefaultRetryPolicy(), log: log}
}

// WithRetryPolicy overrides the default LLM retry bounds.
func (e *Executor) WithRetryPolicy(p RetryPolicy) *Executor {
	e.retry = p
	return e
}

// Perform executes a single effect and returns the Observation (if any) the
// runtime's Apply should fold back in. Bookkeeping-only effects (Log,
// UpdateNodeVisit, WriteVFS, SpawnPath, TransitionPath, CompletePath,
// FailPath, CheckpointRequested, AwaitApproval) return a zero Observation
// and a nil error; the turn loop does not call Apply for those, since the
// runtime already applied their consequences to ExecutionState before
// emitting them.
func (e *Executor) Perform(ctx context.Context, eff execution.Effect) (execution.Observation, error) {
	switch eff.Kind {
	case execution.EffectLog:
		e.performLog(eff)
		return execution.Observation{}, nil
	case execution.EffectWriteVFS:
		e.vfs.Write(eff.Path, eff.Content)
		return execution.Observation{}, nil
	case execution.EffectInvokeLLM:
		return e.performInvokeLLM(ctx, eff)
	case execution.EffectInvokeTool:
		return e.performInvokeTool(ctx, eff)
	case execution.EffectUpdateNodeVisit,
		execution.EffectSpawnPath,
		execution.EffectTransitionPath,
		execution.EffectCompletePath,
		execution.EffectFailPath,
		execution.EffectCheckpointRequested,
		execution.EffectAwaitApproval:
		return execution.Observation{}, nil
	default:
		return execution.Observation{}, fmt.Errorf("executor: unknown effect kind %q", eff.Kind)
	}
}

func (e *Executor) performLog(eff execution.Effect) {
	level := slog.LevelInfo
	switch eff.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	e.log.Log(context.Background(), level, eff.Message, "node", eff.Node, "pathId", eff.PathID)
}

// performInvokeLLM calls the transport, retrying transient failures with
// exponential backoff using the backoff library's default randomization:
// each delay is jittered by up to ±50% around the current interval, not
// drawn from zero (full jitter). A non-retryable or exhausted failure
// comes back as an error rather than an Observation, so the caller can
// decide to fail the path with llm_unavailable instead of folding a
// fabricated response into state.
func (e *Executor) performInvokeLLM(ctx context.Context, eff execution.Effect) (execution.Observation, error) {
	opts := transport.Options{Model: eff.Model, SystemPrompt: eff.SystemPrompt, MaxTokens: 4096}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.retry.InitialDelay
	bo.MaxInterval = e.retry.MaxDelay

	resp, err := backoff.Retry(ctx, func() (transport.Response, error) {
		resp, err := e.transport.InvokeWithTools(ctx, eff.Conversation, eff.Tools, opts)
		if err != nil {
			var retryErr *httpclient.RetryableError
			if errors.As(err, &retryErr) && !retryErr.IsRetryable() {
				return transport.Response{}, backoff.Permanent(err)
			}
		}
		return resp, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(e.retry.MaxAttempts),
	)
	if err != nil {
		var retryErr *httpclient.RetryableError
		if errors.As(err, &retryErr) {
			f := retryErr.Failure(eff.PathID, eff.Node)
			return execution.Observation{}, fmt.Errorf("%s: %w", f.Kind, err)
		}
		return execution.Observation{}, fmt.Errorf("%s: %w", execution.FailureLLMTransportError, err)
	}

	return execution.Observation{
		Kind:       execution.ObsLLMResponse,
		PathID:     eff.PathID,
		Content:    resp.Content,
		StopReason: resp.StopReason,
		Tokens:     resp.Tokens,
	}, nil
}

// performInvokeTool dispatches to a registered handler. A handler panic or
// returned error becomes a ToolResult{success:false} rather than an
// executor-level failure, since a misbehaving tool should not take the
// whole path down with it.
func (e *Executor) performInvokeTool(ctx context.Context, eff execution.Effect) (obs execution.Observation, err error) {
	obs = execution.Observation{
		Kind:      execution.ObsToolResult,
		PathID:    eff.PathID,
		ToolUseID: eff.ToolUseID,
		ToolName:  eff.ToolName,
	}

	defer func() {
		if r := recover(); r != nil {
			obs.Success = false
			obs.Error = fmt.Sprintf("tool panic: %v", r)
			err = nil
		}
	}()

	t, ok := e.tools.StaticTool(eff.ToolName)
	if !ok {
		obs.Success = false
		obs.Error = fmt.Sprintf("unknown tool %q", eff.ToolName)
		return obs, nil
	}

	callable, ok := t.(tool.CallableTool)
	if !ok {
		obs.Success = false
		obs.Error = fmt.Sprintf("tool %q is not callable", eff.ToolName)
		return obs, nil
	}

	output, callErr := callable.Call(ctx, eff.Input)
	if callErr != nil {
		obs.Success = false
		obs.Error = callErr.Error()
		return obs, nil
	}

	obs.Success = true
	obs.Output = output
	return obs, nil
}
