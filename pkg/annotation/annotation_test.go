package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/christopherdebeer/dygram/pkg/machine"
)

func TestCanonicalizeResolvesAliases(t *testing.T) {
	for _, alias := range []string{"barrier", "wait", "sync", "join", "merge"} {
		canon, ok := Canonicalize(alias)
		assert.True(t, ok)
		assert.Equal(t, "barrier", canon)
	}

	_, ok := Canonicalize("unknown")
	assert.False(t, ok)
}

func TestBarrierForDefaultsAndValue(t *testing.T) {
	cfg := BarrierFor(machine.Annotation{Name: "barrier"}, nil)
	assert.Equal(t, "default", cfg.ID)
	assert.False(t, cfg.Merge)

	cfg = BarrierFor(machine.Annotation{Name: "join"}, nil)
	assert.True(t, cfg.Merge)

	cfg = BarrierFor(machine.Annotation{Name: "barrier", Value: "checkpoint-1"}, nil)
	assert.Equal(t, "checkpoint-1", cfg.ID)
}

func TestBarrierForAttributesOverlay(t *testing.T) {
	cfg := BarrierFor(machine.Annotation{
		Name:       "barrier",
		Attributes: map[string]interface{}{"id": "custom", "merge": true},
	}, nil)
	assert.Equal(t, "custom", cfg.ID)
	assert.True(t, cfg.Merge)
}

func TestAsyncForDisableValue(t *testing.T) {
	cfg := AsyncFor(machine.Annotation{Name: "async", Value: "false"}, nil)
	assert.False(t, cfg.Enabled)

	cfg = AsyncFor(machine.Annotation{Name: "spawn"}, nil)
	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.CopyContext)
}

func TestMetaForAndStrictFor(t *testing.T) {
	meta := MetaFor(machine.Annotation{Name: "meta"}, nil)
	assert.True(t, meta.Enabled)

	meta = MetaFor(machine.Annotation{Name: "meta", Value: "false"}, nil)
	assert.False(t, meta.Enabled)

	strict := StrictFor(machine.Annotation{Name: "strict"}, nil)
	assert.True(t, strict.Enabled)
}

func TestProcessFallsBackToDefaultOnShapeError(t *testing.T) {
	type target struct {
		Count int `mapstructure:"count"`
	}
	def := target{Count: 7}

	a := machine.Annotation{
		Name:       "weird",
		Attributes: map[string]interface{}{"count": []string{"not", "an", "int"}},
	}

	result := Process(a, def, nil)
	assert.Equal(t, def, result)
}
