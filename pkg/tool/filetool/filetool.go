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

// Package filetool provides read_file/write_file tools backed by the
// execution's virtual filesystem (pkg/vfs), adapted from apply_patch-style
// file tools to the VFS's simpler last-writer-wins model.
package filetool

import (
	"context"
	"fmt"

	"github.com/christopherdebeer/dygram/pkg/vfs"
)

// ReadFileArgs is the input schema for the read_file tool.
type ReadFileArgs struct {
	Path string `json:"path"`
}

// WriteFileArgs is the input schema for the write_file tool.
type WriteFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ReadFile is a tool.Tool reading from v.
type ReadFile struct {
	v *vfs.VFS
}

// NewReadFile returns a read_file tool bound to v.
func NewReadFile(v *vfs.VFS) *ReadFile { return &ReadFile{v: v} }

func (t *ReadFile) Name() string        { return "read_file" }
func (t *ReadFile) Description() string { return "Read the content of a file from the execution's virtual filesystem." }
func (t *ReadFile) RequiresApproval() bool { return false }
func (t *ReadFile) InputSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
		"required":   []string{"path"},
	}
}

func (t *ReadFile) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("filetool: read_file requires a non-empty path")
	}
	content, err := t.v.Read(path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": content}, nil
}

// WriteFile is a tool.Tool writing into v.
type WriteFile struct {
	v *vfs.VFS
}

// NewWriteFile returns a write_file tool bound to v.
func NewWriteFile(v *vfs.VFS) *WriteFile { return &WriteFile{v: v} }

func (t *WriteFile) Name() string        { return "write_file" }
func (t *WriteFile) Description() string { return "Write content to a file in the execution's virtual filesystem, overwriting any existing content." }
func (t *WriteFile) RequiresApproval() bool { return false }
func (t *WriteFile) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFile) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("filetool: write_file requires a non-empty path")
	}
	content, _ := args["content"].(string)
	t.v.Write(path, content)
	return map[string]any{"written": true}, nil
}
