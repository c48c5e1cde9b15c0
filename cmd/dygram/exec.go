package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/term"

	"github.com/christopherdebeer/dygram/pkg/persistence"
	"github.com/christopherdebeer/dygram/pkg/state"
	"github.com/christopherdebeer/dygram/pkg/visualize"
)

// ExecCmd groups the inspection and housekeeping subcommands that operate
// on already-persisted executions, as distinct from execute's job of
// advancing one.
type ExecCmd struct {
	List   ExecListCmd   `cmd:"" help:"List persisted executions."`
	Status ExecStatusCmd `cmd:"" help:"Show one execution's summary status."`
	Show   ExecShowCmd   `cmd:"" help:"Render one execution's current graph state."`
	Rm     ExecRmCmd     `cmd:"" help:"Delete one persisted execution."`
	Clean  ExecCleanCmd  `cmd:"" help:"Delete persisted executions matching a pattern."`
}

func openStore(rc *runContext) (*persistence.Store, error) {
	cfg, err := resolveConfig(rc)
	if err != nil {
		return nil, err
	}
	store, err := persistence.NewStore(cfg.Execution.RecordsDir)
	if err != nil {
		return nil, fmt.Errorf("dygram: %w", err)
	}
	return store, nil
}

// ExecListCmd lists every persisted execution's summary metadata.
type ExecListCmd struct{}

func (c *ExecListCmd) Run(rc *runContext) error {
	store, err := openStore(rc)
	if err != nil {
		return err
	}
	records, err := store.List()
	if err != nil {
		return fmt.Errorf("dygram: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tMODE\tTURNS\tSTEPS\tLAST EXECUTED")
	for _, m := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			m.ID, m.Status, m.Mode, m.TurnCount, m.StepCount, m.LastExecutedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

// ExecStatusCmd prints one execution's metadata as a compact summary.
type ExecStatusCmd struct {
	ID string `arg:"" help:"Execution id."`
}

func (c *ExecStatusCmd) Run(rc *runContext) error {
	store, err := openStore(rc)
	if err != nil {
		return err
	}
	_, meta, err := store.Load(c.ID, nil, true)
	if err != nil {
		return fmt.Errorf("dygram: %w", err)
	}
	fmt.Printf("id:             %s\n", meta.ID)
	fmt.Printf("status:         %s\n", meta.Status)
	fmt.Printf("mode:           %s\n", meta.Mode)
	fmt.Printf("machine file:   %s\n", meta.MachineFile)
	fmt.Printf("started:        %s\n", meta.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("last executed:  %s\n", meta.LastExecutedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("turns/steps:    %d/%d\n", meta.TurnCount, meta.StepCount)
	return nil
}

// ExecShowCmd renders an execution's current path/node/transition graph in
// one of several formats.
type ExecShowCmd struct {
	ID     string `arg:"" help:"Execution id."`
	Format string `help:"Output format: text, json, dot, svg." default:"text" enum:"text,json,dot,svg"`
}

func (c *ExecShowCmd) Run(rc *runContext) error {
	store, err := openStore(rc)
	if err != nil {
		return err
	}
	st, _, err := store.Load(c.ID, nil, true)
	if err != nil {
		return fmt.Errorf("dygram: %w", err)
	}

	cache := state.Build(st.MachineSnapshot, slog.Default())
	snap := visualize.Project(cache, st)

	switch c.Format {
	case "json":
		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("dygram: %w", err)
		}
		fmt.Println(string(out))
	case "dot":
		fmt.Print(visualize.RenderDOT(snap))
	case "svg":
		fmt.Print(visualize.RenderSVG(snap))
	default:
		fmt.Print(clipToTerminalWidth(visualize.RenderText(snap)))
	}
	return nil
}

// clipToTerminalWidth truncates report's rows to the width of the attached
// terminal, appending an ellipsis to any line that had to be cut, rather
// than letting a long node name or tool input wrap and scramble the
// tabular layout RenderText lays out with fixed-width columns. When stdout
// isn't a terminal (piped to a file, redirected in CI) the report passes
// through unclipped.
func clipToTerminalWidth(report string) string {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return report
	}

	lines := strings.Split(report, "\n")
	for i, line := range lines {
		if len(line) > width {
			lines[i] = line[:width-1] + "…"
		}
	}
	return strings.Join(lines, "\n")
}

// ExecRmCmd deletes one persisted execution outright.
type ExecRmCmd struct {
	ID string `arg:"" help:"Execution id."`
}

func (c *ExecRmCmd) Run(rc *runContext) error {
	store, err := openStore(rc)
	if err != nil {
		return err
	}
	if err := store.Remove(c.ID); err != nil {
		return fmt.Errorf("dygram: %w", err)
	}
	fmt.Println(c.ID)
	return nil
}

// ExecCleanCmd deletes every persisted execution matching a glob pattern,
// or every finished (completed or failed) execution by default.
type ExecCleanCmd struct {
	Pattern string `arg:"" optional:"" help:"Glob pattern matched against execution ids. Defaults to every finished (completed or failed) execution." default:"*"`
	All     bool   `help:"Remove every persisted execution regardless of status."`
}

func (c *ExecCleanCmd) Run(rc *runContext) error {
	store, err := openStore(rc)
	if err != nil {
		return err
	}

	if c.All {
		removed, err := store.Clean(c.Pattern)
		if err != nil {
			return fmt.Errorf("dygram: %w", err)
		}
		for _, id := range removed {
			fmt.Println(id)
		}
		return nil
	}

	records, err := store.List()
	if err != nil {
		return fmt.Errorf("dygram: %w", err)
	}
	for _, m := range records {
		if m.Status == "running" {
			continue
		}
		matched, err := doublestar.Match(c.Pattern, m.ID)
		if err != nil {
			return fmt.Errorf("dygram: bad pattern %q: %w", c.Pattern, err)
		}
		if !matched {
			continue
		}
		if err := store.Remove(m.ID); err != nil {
			return fmt.Errorf("dygram: %w", err)
		}
		fmt.Println(m.ID)
	}
	return nil
}
