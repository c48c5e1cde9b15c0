// Command dygram drives a DyGram machine definition through its turn loop,
// and inspects or manages the executions persisted along the way.
//
// Usage:
//
//	dygram execute machine.json --interactive
//	dygram execute machine.json --step-path --id run-1
//	dygram exec list
//	dygram exec show run-1 --format dot
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/christopherdebeer/dygram/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Execute ExecuteCmd `cmd:"" help:"Run or resume an execution against a machine definition."`
	Exec    ExecCmd    `cmd:"" help:"Inspect and manage persisted executions."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config     string `short:"c" help:"Path to a YAML config file." type:"path"`
	LogLevel   string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile    string `help:"Log file path (empty = stderr)."`
	LogFormat  string `help:"Log format (simple, verbose)." default:"simple"`
	RecordsDir string `help:"Base directory for persisted execution records." default:".dygram/executions"`
}

// VersionCmd prints build version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("dygram version %s\n", version)
	return nil
}

// runContext carries the values every command needs beyond its own flags:
// the parsed global flags and a context cancelled on SIGINT/SIGTERM.
type runContext struct {
	ctx context.Context
	cli *CLI
}

// exitCodeError lets a command signal a specific process exit code (2, "run
// completed") without main having to special-case which command ran. A
// plain error still maps to exit code 1.
type exitCodeError struct{ code int }

func (e *exitCodeError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("dygram"),
		kong.Description("DyGram execution engine CLI"),
		kong.UsageOnError(),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rc := &runContext{ctx: sigCtx, cli: &cli}
	err = kctx.Run(rc)

	var ec *exitCodeError
	if errors.As(err, &ec) {
		os.Exit(ec.code)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
