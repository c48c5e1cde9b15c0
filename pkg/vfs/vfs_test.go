package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVFSWriteReadAndLastWriterWins(t *testing.T) {
	v := New()
	v.Write("a.txt", "first")
	v.Write("a.txt", "second")

	content, err := v.Read("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", content)
}

func TestVFSReadMissingErrors(t *testing.T) {
	v := New()
	_, err := v.Read("missing.txt")
	assert.Error(t, err)
}

func TestVFSSnapshotAndRestore(t *testing.T) {
	v := New()
	v.Write("a.txt", "x")
	v.Write("b.txt", "y")

	snap := v.Snapshot()
	assert.Len(t, snap, 2)

	v2 := New()
	v2.Restore(snap)
	assert.True(t, v2.Exists("a.txt"))
	assert.True(t, v2.Exists("b.txt"))
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, v2.List())
}
