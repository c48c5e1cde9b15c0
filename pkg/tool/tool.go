// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tool implements the Tool Registry (C3): the catalogue of
// statically-registered and dynamically-constructed tools available to a
// task node's LLM turn.
//
// # Tool Interface
//
// A Tool is a record of { name, description, inputSchema, handler }. Every
// handler is synchronous from the Effect Executor's point of view: Call
// returns one complete result, never partial results. The turn loop may run
// the several tool calls of one LLM response concurrently.
package tool

import "context"

// Tool is the base interface every registered tool implements.
type Tool interface {
	// Name returns the unique name of the tool, as the LLM sees it in the
	// tool catalogue and as tool_use blocks reference it.
	Name() string

	// Description is surfaced to the LLM to decide when to use this tool.
	Description() string

	// InputSchema returns the JSON-Schema-shaped parameter schema.
	InputSchema() map[string]any

	// RequiresApproval reports whether invoking this tool must first pause
	// the path at an AwaitApproval effect (the tool approval gate,
	// SPEC_FULL.md's first supplemented feature) rather than running
	// immediately.
	RequiresApproval() bool
}

// CallableTool extends Tool with synchronous execution.
type CallableTool interface {
	Tool

	// Call executes the tool with the given arguments, returning its
	// output or an error. The Effect Executor never lets a handler panic
	// propagate to the runtime: callers are expected to recover and
	// convert a panic into a ToolResult{success:false}.
	Call(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Definition is the immutable, serializable description of a tool: name,
// description and input schema, never the handler closure. The catalogue
// sent to the LLM transport is built as execution.ToolDefinition values, not
// from Definition, and no tool manifest is persisted.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// DefinitionOf returns t's Definition.
func DefinitionOf(t Tool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.InputSchema(),
	}
}
