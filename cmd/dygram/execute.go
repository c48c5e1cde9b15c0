package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/christopherdebeer/dygram/pkg/execution"
	"github.com/christopherdebeer/dygram/pkg/executor"
	"github.com/christopherdebeer/dygram/pkg/loop"
	"github.com/christopherdebeer/dygram/pkg/machine"
	"github.com/christopherdebeer/dygram/pkg/persistence"
	"github.com/christopherdebeer/dygram/pkg/tool"
	"github.com/christopherdebeer/dygram/pkg/vfs"
)

// ExecuteCmd runs or resumes an execution against a machine definition,
// driving it to the granularity named by its mode flag.
type ExecuteCmd struct {
	File string `arg:"" optional:"" help:"Path to a machine JSON file. Omit when resuming with --id." type:"path"`

	Interactive bool `help:"Drive the execution to quiescence (all paths terminal or blocked)."`
	Step        bool `help:"Advance every active path by one step."`
	StepTurn    bool `name:"step-turn" help:"Advance the highest-priority active path by one full turn."`
	StepPath    bool `name:"step-path" help:"Advance the highest-priority active path by one step."`

	ID       string `help:"Execution id to resume. Generated when starting a new execution."`
	Force    bool   `help:"Resume even if the machine file no longer matches the persisted one."`
	Playback string `help:"Replay LLM responses from a recording directory instead of calling the live transport." type:"path"`
	Record   string `help:"Capture every LLM exchange to a recording directory." type:"path"`
	Model    string `help:"Override the model requested by InvokeLLM effects."`

	MCPServer []string `help:"Attach an MCP server as a static tool source: name=command [args...]." name:"mcp-server"`
}

// mode resolves the stepping granularity the flags request, defaulting to
// --step when none are given (the safest granularity for a fresh run).
func (c *ExecuteCmd) mode() execution.Mode {
	switch {
	case c.StepPath:
		return execution.ModeStepPath
	case c.StepTurn:
		return execution.ModeStepTurn
	case c.Interactive:
		return execution.ModeInteractive
	default:
		return execution.ModeStep
	}
}

func (c *ExecuteCmd) Run(rc *runContext) error {
	cfg, err := resolveConfig(rc)
	if err != nil {
		return err
	}
	log := slog.Default()

	if c.File == "" && c.ID == "" {
		return fmt.Errorf("dygram: execute requires a machine file or --id to resume")
	}

	store, err := persistence.NewStore(cfg.Execution.RecordsDir)
	if err != nil {
		return fmt.Errorf("dygram: %w", err)
	}

	fs := vfs.New()
	reg, err := buildRegistry(rc, fs, c.MCPServer, log)
	if err != nil {
		return err
	}

	transportImpl, err := buildTransport(cfg, c.Playback, c.Record)
	if err != nil {
		return err
	}
	exec := executor.New(reg, transportImpl, fs, log)

	budgets := execution.DefaultBudgets()
	if cfg.Execution.MaxSteps > 0 {
		budgets.MaxSteps = cfg.Execution.MaxSteps
	}
	if cfg.Execution.MaxNodeInvocations > 0 {
		budgets.MaxNodeInvocations = cfg.Execution.MaxNodeInvocations
	}
	if c.Model != "" {
		budgets.DefaultModel = c.Model
	}

	var (
		lp          *loop.Loop
		id          string
		machineFile string
		machineSrc  []byte
		startedAt   time.Time
	)

	if c.ID != "" {
		id = c.ID

		// Peek the prior metadata (bypassing drift detection) to learn which
		// file this execution was started from when --id is given alone.
		_, peekMeta, peekErr := store.Load(id, nil, true)
		if peekErr != nil {
			return fmt.Errorf("dygram: %w", peekErr)
		}
		filePath := c.File
		if filePath == "" {
			filePath = peekMeta.MachineFile
		}
		machineSrc = readFileOrEmpty(filePath)

		st, loadedMeta, loadErr := store.Load(id, machineSrc, c.Force)
		if loadErr != nil {
			return fmt.Errorf("dygram: %w", loadErr)
		}
		machineFile = loadedMeta.MachineFile
		startedAt = loadedMeta.StartedAt
		m := st.MachineSnapshot

		skeleton, err := loop.New(m, reg, exec, budgets, c.mode(), log)
		if err != nil {
			return fmt.Errorf("dygram: %w", err)
		}
		skeleton.Restore(st, m)
		lp = skeleton
	} else {
		id = uuid.NewString()
		machineFile = c.File
		raw, err := os.ReadFile(c.File)
		if err != nil {
			return fmt.Errorf("dygram: reading machine file: %w", err)
		}
		machineSrc = raw

		var m machine.Machine
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("dygram: parsing machine file: %w", err)
		}

		lp, err = loop.New(&m, reg, exec, budgets, c.mode(), log)
		if err != nil {
			return fmt.Errorf("dygram: %w", err)
		}
		startedAt = lp.State().Metadata.StartedAt
	}

	bindMetaTools(reg, lp)

	if err := c.drive(rc, lp); err != nil {
		return err
	}

	st := lp.State()
	if err := store.Save(st, persistence.Metadata{
		ID:          id,
		MachineFile: machineFile,
		Mode:        c.mode(),
		StartedAt:   startedAt,
	}, machineSrc); err != nil {
		return fmt.Errorf("dygram: saving execution state: %w", err)
	}

	fmt.Println(id)
	if len(st.NonTerminalPaths()) == 0 {
		return &exitCodeError{code: 2}
	}
	return nil
}

// readFileOrEmpty reads path, returning nil (rather than an error) when
// path is empty or unreadable — the drift check then simply fails closed
// against the persisted hash, which is the right behavior when the
// original machine file can no longer be found.
func readFileOrEmpty(path string) []byte {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return raw
}

// drive runs lp to the granularity the flags requested. Interactive mode
// additionally prompts an operator for every tool approval gate the run
// blocks on, resuming the drive loop each time a decision is recorded, so a
// single --interactive invocation still reaches quiescence unattended apart
// from those prompts.
func (c *ExecuteCmd) drive(rc *runContext, lp *loop.Loop) error {
	switch {
	case c.StepPath:
		return lp.RunStepPath(rc.ctx)
	case c.StepTurn:
		return lp.RunStepTurn(rc.ctx)
	case c.Interactive:
		for {
			if err := lp.Run(rc.ctx); err != nil {
				return err
			}
			pending := lp.PendingApprovals()
			if len(pending) == 0 {
				return nil
			}
			for pathID, approval := range pending {
				granted, err := promptApproval(pathID, approval)
				if err != nil {
					return fmt.Errorf("dygram: reading approval decision: %w", err)
				}
				lp.Approve(pathID, granted)
			}
		}
	default:
		return lp.RunStep(rc.ctx)
	}
}

// promptApproval asks an operator to allow or deny a gated tool call. When
// stdin is a terminal it reads a single raw keypress (y/n) via term.MakeRaw
// so the operator doesn't have to press enter; otherwise (piped input,
// scripted runs) it falls back to a line-buffered read so automation can
// still answer the prompt.
func promptApproval(pathID string, approval execution.PendingApproval) (bool, error) {
	fmt.Fprintf(os.Stderr, "path %s wants to call %q with %v — allow? [y/N] ", pathID, approval.ToolName, approval.Input)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return false, err
		}
		return isYes(line), nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return false, err
	}
	defer term.Restore(fd, oldState)

	buf := make([]byte, 1)
	if _, err := os.Stdin.Read(buf); err != nil {
		return false, err
	}
	fmt.Fprintln(os.Stderr)
	return isYes(string(buf)), nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}

// bindMetaTools registers the get_machine_definition/update_definition/
// construct_tool family against lp, the MachineHost every execution binds
// them to. Done after the Loop exists (fresh or resumed) since the host
// interface needs a live loop to read/rewrite the machine through.
func bindMetaTools(reg *tool.Registry, lp *loop.Loop) {
	_ = reg.RegisterMeta(tool.NewGetMachineDefinition(lp))
	_ = reg.RegisterMeta(tool.NewUpdateDefinition(lp))
	_ = reg.RegisterMeta(tool.NewConstructTool(reg, externalToolFactory))
}
