// Package loop implements the Turn Loop / Machine Executor (C7): the
// outermost cooperative scheduler that drives the Execution Runtime
// (pkg/execution) and the Effect Executor (pkg/executor) against each
// other, one step at a time, until the caller's chosen granularity is
// satisfied.
//
// Modeled on the Runner/session orchestration shape in
// pkg/runner/runner.go — a single struct owning the mutable run state
// behind a mutex, exposing narrow step methods rather than one opaque
// Run() — adapted here from session/agent selection to path/effect
// stepping.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/christopherdebeer/dygram/pkg/executor"
	"github.com/christopherdebeer/dygram/pkg/execution"
	"github.com/christopherdebeer/dygram/pkg/machine"
	"github.com/christopherdebeer/dygram/pkg/state"
	"github.com/christopherdebeer/dygram/pkg/tool"
	"github.com/christopherdebeer/dygram/pkg/transport"
)

// Loop owns one running execution: its descriptor cache, the registries
// the Execution Runtime consults, the Effect Executor it drives, and the
// current ExecutionState. All of it sits behind mu so meta-rewrites
// (ApplyMachine) and a concurrently-inspecting C9 snapshot reader never
// race with an in-flight step.
type Loop struct {
	mu      sync.Mutex
	cache   *state.Cache
	tools   *tool.Registry
	exec    *executor.Executor
	budgets execution.Budgets
	state   *execution.ExecutionState
	log     *slog.Logger
}

// New constructs a Loop and places the first path at the machine's logical
// start node, performing whatever arrival effects that implies (visit
// accounting) before returning. It does not spawn async paths or invoke
// an LLM — the first Step call does that.
func New(m *machine.Machine, tools *tool.Registry, exec *executor.Executor, budgets execution.Budgets, mode execution.Mode, log *slog.Logger) (*Loop, error) {
	if log == nil {
		log = slog.Default()
	}
	cache := state.Build(m, log)
	st, effects, err := execution.Init(cache, budgets, mode)
	if err != nil {
		return nil, fmt.Errorf("loop: init: %w", err)
	}
	st.Metadata.StartedAt = now()
	st.Metadata.LastUpdated = st.Metadata.StartedAt

	l := &Loop{cache: cache, tools: tools, exec: exec, budgets: budgets, state: st, log: log}
	if err := l.performBookkeeping(context.Background(), effects); err != nil {
		return nil, fmt.Errorf("loop: init effects: %w", err)
	}
	return l, nil
}

var now = time.Now

// State returns a snapshot of the current ExecutionState. Callers (C8, C9)
// must not mutate it; Loop always replaces its own reference wholesale
// rather than handing out a value other code could alias into.
func (l *Loop) State() *execution.ExecutionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Restore replaces the loop's live state, used by the CLI to resume a
// persisted execution rather than starting a fresh one from New.
func (l *Loop) Restore(st *execution.ExecutionState, m *machine.Machine) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = st
	l.cache = state.Build(m, l.log)
}

// CurrentMachine implements tool.MachineHost.
func (l *Loop) CurrentMachine() *machine.Machine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.MachineSnapshot
}

// ApplyMachine implements tool.MachineHost: atomically swaps the live
// snapshot, rebuilds the descriptor cache, fails any path now standing on
// a node the new snapshot no longer has, and logs the change. The tool
// layer has already validated next's shape before calling this.
func (l *Loop) ApplyMachine(next *machine.Machine) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	newCache := state.Build(next, l.log)
	for _, p := range l.state.NonTerminalPaths() {
		if _, ok := newCache.Get(p.CurrentNode); !ok {
			l.state = execution.FailPath(l.state, p.ID, execution.FailureNodeRemoved, "node removed by update_definition")
		}
	}
	l.cache = newCache
	l.state.MachineSnapshot = next
	l.log.Info("machine updated", "title", next.Title)
	return nil
}

// Cancel injects CancelRequested, failing every non-terminal path.
func (l *Loop) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = execution.Apply(l.state, execution.Observation{Kind: execution.ObsCancelRequested})
}

// PendingApprovals returns the paths currently blocked at PathAwaitingApproval,
// keyed by path id, for a caller (the CLI's interactive approval prompt) to
// present to an operator.
func (l *Loop) PendingApprovals() map[string]execution.PendingApproval {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]execution.PendingApproval, len(l.state.PendingApprovals))
	for id, p := range l.state.PendingApprovals {
		out[id] = p
	}
	return out
}

// Approve resolves a pending tool approval gate, injecting ApprovalGranted or
// ApprovalDenied for pathID so the blocked path can resume or report the
// tool call as denied.
func (l *Loop) Approve(pathID string, granted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kind := execution.ObsApprovalDenied
	if granted {
		kind = execution.ObsApprovalGranted
	}
	l.state = execution.Apply(l.state, execution.Observation{Kind: kind, PathID: pathID})
}

// RunStep advances the "step" mode: one StepPath call for every path that
// was PathActive when this call started, in the order the paths appear in
// ExecutionState.Paths.
func (l *Loop) RunStep(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range l.readyPathsLocked() {
		if err := ctx.Err(); err != nil {
			return l.injectTimeoutLocked()
		}
		if _, err := l.singleStepLocked(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// RunStepPath advances the "step-path" mode: one StepPath call on the
// single highest-priority eligible path.
func (l *Loop) RunStepPath(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.state.HighestPriorityActive()
	if p == nil {
		return nil
	}
	_, err := l.singleStepLocked(ctx, p.ID)
	return err
}

// RunStepTurn advances the "step-turn" mode: the highest-priority eligible
// path is stepped, chasing ActionContinue rounds, until a round performs an
// InvokeLLM effect (the one LLM round trip this mode promises) or the path
// can make no further unattended progress.
func (l *Loop) RunStepTurn(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.state.HighestPriorityActive()
	if p == nil {
		return nil
	}
	pathID := p.ID
	for {
		if err := ctx.Err(); err != nil {
			return l.injectTimeoutLocked()
		}
		action, sawInvokeLLM, err := l.stepOnceLocked(ctx, pathID)
		if err != nil {
			return err
		}
		if sawInvokeLLM || action != execution.ActionContinue {
			return nil
		}
	}
}

// Run drives the execution to quiescence: every currently PathActive path
// is stepped, chasing continuations, until none remain active — either
// every path is terminal, or what remains is blocked on something only
// external input can resolve (an approval, a barrier awaiting a sibling
// that is itself now blocked). interactive and playback modes both use
// this; they differ only in which transport the Loop's Executor was built
// with.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return l.injectTimeoutLocked()
		}
		p := l.state.HighestPriorityActive()
		if p == nil {
			return nil
		}
		if _, _, err := l.stepOnceLocked(ctx, p.ID); err != nil {
			return err
		}
	}
}

func (l *Loop) readyPathsLocked() []*execution.Path {
	var out []*execution.Path
	for _, p := range l.state.Paths {
		if p.Status == execution.PathActive {
			out = append(out, p)
		}
	}
	return out
}

func (l *Loop) injectTimeoutLocked() error {
	l.state = execution.Apply(l.state, execution.Observation{Kind: execution.ObsTimeout, Scope: execution.TimeoutExecution})
	return fmt.Errorf("loop: execution deadline exceeded")
}

// singleStepLocked performs exactly one StepPath call and its effects.
func (l *Loop) singleStepLocked(ctx context.Context, pathID string) (execution.NextAction, error) {
	action, _, err := l.stepOnceLocked(ctx, pathID)
	return action, err
}

// stepOnceLocked is the shared primitive: one StepPath call, its effects
// performed in emission order (except that a contiguous run of InvokeTool
// effects is performed concurrently by performToolBatch), each effect's
// Observation (if any) folded back in emission order — so no two
// observations for the same path are ever applied at once. Reports whether any of this
// round's effects was an InvokeLLM, for RunStepTurn's termination check.
func (l *Loop) stepOnceLocked(ctx context.Context, pathID string) (execution.NextAction, bool, error) {
	newState, effects, action := execution.StepPath(l.cache, l.tools, l.budgets, l.state, pathID, l.log)
	l.state = newState

	sawInvokeLLM := false
	for i := 0; i < len(effects); {
		eff := effects[i]
		if eff.Kind == execution.EffectInvokeLLM {
			sawInvokeLLM = true
		}

		if eff.Kind == execution.EffectInvokeTool {
			j := i + 1
			for j < len(effects) && effects[j].Kind == execution.EffectInvokeTool {
				j++
			}
			obsBatch, err := l.performToolBatch(ctx, effects[i:j])
			if err != nil {
				l.state = execution.FailPath(l.state, pathID, execution.FailureToolError, err.Error())
				return execution.ActionTerminal, sawInvokeLLM, nil
			}
			for _, obs := range obsBatch {
				if obs.Kind != "" {
					l.state = execution.Apply(l.state, obs)
				}
			}
			i = j
			continue
		}

		obs, err := l.exec.Perform(ctx, eff)
		if err != nil {
			kind := failureKindFor(eff)
			if errors.Is(err, transport.ErrRecordingMissing) {
				kind = execution.FailureRecordingMissing
			}
			l.state = execution.FailPath(l.state, pathID, kind, err.Error())
			return execution.ActionTerminal, sawInvokeLLM, nil
		}
		if obs.Kind != "" {
			l.state = execution.Apply(l.state, obs)
		}
		i++
	}
	return action, sawInvokeLLM, nil
}

// performToolBatch dispatches a contiguous run of InvokeTool effects from
// the same turn concurrently — a single LLM response can carry several
// independent tool_use blocks, and each call's Input depends only on what
// the LLM already returned, not on a sibling call's result. Observations
// are collected in emission order and folded into state sequentially by
// the caller, preserving the rule that no two observations for the same
// path are ever applied to state at once; only the I/O itself overlaps.
func (l *Loop) performToolBatch(ctx context.Context, effects []execution.Effect) ([]execution.Observation, error) {
	obsBatch := make([]execution.Observation, len(effects))
	g, gctx := errgroup.WithContext(ctx)
	for i, eff := range effects {
		i, eff := i, eff
		g.Go(func() error {
			obs, err := l.exec.Perform(gctx, eff)
			if err != nil {
				return err
			}
			obsBatch[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return obsBatch, nil
}

// performBookkeeping runs a batch of effects with no path to attribute a
// failure to — used only for Init's arrival effects, which are bookkeeping
// (the start node's UpdateNodeVisit) and never I/O.
func (l *Loop) performBookkeeping(ctx context.Context, effects []execution.Effect) error {
	for _, eff := range effects {
		if _, err := l.exec.Perform(ctx, eff); err != nil {
			return err
		}
	}
	return nil
}

func failureKindFor(eff execution.Effect) execution.FailureKind {
	if eff.Kind == execution.EffectInvokeLLM {
		return execution.FailureLLMTransportError
	}
	return execution.FailureToolError
}
