// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mcptoolset provides the dynamic MCP-backed tool source behind
// `construct_tool` (SPEC_FULL.md's meta-tool surface): a meta-rewrite may
// attach an external MCP server as a live tool source for the current
// execution only, without persisting anything beyond its manifest entry.
//
// The connection is lazy: Tools() dials the server only on first use, and
// the toolset is discarded (not reconnected) across a meta-rewrite that no
// longer references it.
package mcptoolset

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/christopherdebeer/dygram/pkg/tool"
)

// Config configures an MCP-backed toolset, authored by a construct_tool
// call rather than static config.
type Config struct {
	Name      string
	Command   string
	Args      []string
	Env       map[string]string
	Filter    []string // tool names to expose; empty means expose all
}

// Toolset lazily connects to an MCP stdio server and exposes its tools.
type Toolset struct {
	cfg    Config
	mu     sync.Mutex
	client *client.Client
	tools  []tool.Tool
}

// New returns a Toolset for cfg. No connection is attempted yet.
func New(cfg Config) *Toolset {
	return &Toolset{cfg: cfg}
}

// Tools returns the MCP server's tools, dialing on first call.
func (s *Toolset) Tools(ctx context.Context) ([]tool.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tools != nil {
		return s.tools, nil
	}

	c, err := client.NewStdioMCPClient(s.cfg.Command, toEnvSlice(s.cfg.Env), s.cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcptoolset: failed to start %q: %w", s.cfg.Name, err)
	}
	s.client = c

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcptoolset: list_tools failed for %q: %w", s.cfg.Name, err)
	}

	allowed := toSet(s.cfg.Filter)
	var tools []tool.Tool
	for _, t := range listResp.Tools {
		if len(allowed) > 0 && !allowed[t.Name] {
			continue
		}
		tools = append(tools, &mcpTool{client: c, def: t})
	}
	s.tools = tools
	return tools, nil
}

// Close releases the underlying MCP client connection, if one was opened.
func (s *Toolset) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

type mcpTool struct {
	client *client.Client
	def    mcp.Tool
}

func (t *mcpTool) Name() string        { return t.def.Name }
func (t *mcpTool) Description() string { return t.def.Description }
func (t *mcpTool) RequiresApproval() bool { return false }

func (t *mcpTool) InputSchema() map[string]any {
	raw := map[string]any{
		"type":       "object",
		"properties": t.def.InputSchema.Properties,
	}
	if len(t.def.InputSchema.Required) > 0 {
		raw["required"] = t.def.InputSchema.Required
	}
	return raw
}

func (t *mcpTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = t.def.Name
	req.Params.Arguments = args

	resp, err := t.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcptoolset: call %q failed: %w", t.def.Name, err)
	}
	if resp.IsError {
		return map[string]any{"content": resp.Content}, fmt.Errorf("mcptoolset: tool %q reported an error", t.def.Name)
	}
	return map[string]any{"content": resp.Content}, nil
}

func toEnvSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}
