package filetool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopherdebeer/dygram/pkg/vfs"
)

func TestWriteFileThenReadFile(t *testing.T) {
	v := vfs.New()
	write := NewWriteFile(v)
	read := NewReadFile(v)
	ctx := context.Background()

	_, err := write.Call(ctx, map[string]any{"path": "out.txt", "content": "hello"})
	require.NoError(t, err)

	result, err := read.Call(ctx, map[string]any{"path": "out.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result["content"])
}

func TestReadFileMissingPathErrors(t *testing.T) {
	read := NewReadFile(vfs.New())
	_, err := read.Call(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestWriteFileMissingPathErrors(t *testing.T) {
	write := NewWriteFile(vfs.New())
	_, err := write.Call(context.Background(), map[string]any{"content": "x"})
	assert.Error(t, err)
}
