package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/christopherdebeer/dygram/pkg/config"
	"github.com/christopherdebeer/dygram/pkg/persistence"
	"github.com/christopherdebeer/dygram/pkg/tool"
	"github.com/christopherdebeer/dygram/pkg/tool/filetool"
	"github.com/christopherdebeer/dygram/pkg/transport"
	"github.com/christopherdebeer/dygram/pkg/vfs"
)

// defaultTransportTimeout bounds a single live Anthropic request. The turn
// loop's own execution timeout, not this one, is what a long-running
// machine should tune; this just keeps a single hung request from blocking
// forever.
const defaultTransportTimeout = 120 * time.Second

// buildTransport selects the LLM transport an execution drives its
// InvokeLLM effects against, per --playback/--record: playback never
// touches the network or a credential; record wraps the live transport so
// every exchange is captured; the default is the bare live transport.
func buildTransport(cfg *config.Config, playbackDir, recordDir string) (transport.LLMTransport, error) {
	if playbackDir != "" {
		store, err := persistence.NewRecordingStore(playbackDir)
		if err != nil {
			return nil, fmt.Errorf("dygram: playback store: %w", err)
		}
		return transport.NewPlaybackTransport(store), nil
	}

	if err := cfg.LLM.Validate(); err != nil {
		return nil, fmt.Errorf("dygram: %w", err)
	}
	live := transport.NewAnthropicTransport(cfg.LLM.APIKey, cfg.LLM.BaseURL, defaultTransportTimeout)

	if recordDir != "" {
		store, err := persistence.NewRecordingStore(recordDir)
		if err != nil {
			return nil, fmt.Errorf("dygram: recording store: %w", err)
		}
		return transport.NewRecordingTransport(live, store), nil
	}

	return live, nil
}

// buildRegistry assembles the static tool catalogue every execution starts
// with: the virtual-filesystem file tools plus, if configured, every
// --mcp-server's tools. Meta-tools (get_machine_definition,
// update_definition, construct_tool) are registered separately once a
// *loop.Loop exists to bind them to.
func buildRegistry(rc *runContext, fs *vfs.VFS, mcpServers []string, log *slog.Logger) (*tool.Registry, error) {
	reg := tool.New()
	if err := reg.RegisterStatic(filetool.NewReadFile(fs)); err != nil {
		return nil, fmt.Errorf("dygram: %w", err)
	}
	if err := reg.RegisterStatic(filetool.NewWriteFile(fs)); err != nil {
		return nil, fmt.Errorf("dygram: %w", err)
	}
	if len(mcpServers) > 0 {
		if err := registerMCPServers(rc.ctx, reg, mcpServers, log); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// executionDir joins recordsDir, id and sub into one directory path. No
// command calls it: --record and --playback use the directory they are given.
func executionDir(recordsDir, id, sub string) string {
	return filepath.Join(recordsDir, id, sub)
}
