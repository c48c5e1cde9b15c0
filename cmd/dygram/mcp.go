package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/christopherdebeer/dygram/pkg/tool"
	"github.com/christopherdebeer/dygram/pkg/tool/mcptoolset"
)

// parseMCPServerFlag parses one --mcp-server value of the form
// "name=command [arg...]" into an mcptoolset.Config.
func parseMCPServerFlag(spec string) (mcptoolset.Config, error) {
	name, rest, ok := strings.Cut(spec, "=")
	if !ok || name == "" || rest == "" {
		return mcptoolset.Config{}, fmt.Errorf("dygram: invalid --mcp-server %q, expected name=command [args...]", spec)
	}
	fields := strings.Fields(rest)
	return mcptoolset.Config{Name: name, Command: fields[0], Args: fields[1:]}, nil
}

// registerMCPServers dials every configured MCP server up front and
// registers its tools as ordinary static tools, so a node opts into them
// the same way it opts into read_file/write_file: via its `tools`
// attribute. This is the always-on counterpart to construct_tool's
// per-execution dynamic attach.
func registerMCPServers(ctx context.Context, reg *tool.Registry, specs []string, log *slog.Logger) error {
	for _, spec := range specs {
		cfg, err := parseMCPServerFlag(spec)
		if err != nil {
			return err
		}
		ts := mcptoolset.New(cfg)
		tools, err := ts.Tools(ctx)
		if err != nil {
			return fmt.Errorf("dygram: mcp server %q: %w", cfg.Name, err)
		}
		for _, t := range tools {
			if err := reg.RegisterStatic(t); err != nil {
				return fmt.Errorf("dygram: mcp server %q: %w", cfg.Name, err)
			}
		}
		log.Info("registered mcp server", "name", cfg.Name, "tools", len(tools))
	}
	return nil
}

// externalToolFactory adapts mcptoolset.New to tool.ExternalSourceFactory,
// the indirection construct_tool calls through at runtime so pkg/tool never
// imports mcptoolset directly.
func externalToolFactory(cfg tool.ExternalToolConfig) tool.ExternalToolSource {
	return mcptoolset.New(mcptoolset.Config{
		Name:    cfg.Name,
		Command: cfg.Command,
		Args:    cfg.Args,
		Env:     cfg.Env,
		Filter:  cfg.Filter,
	})
}
