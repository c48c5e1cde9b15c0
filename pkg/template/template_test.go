package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderResolvesExactMatch(t *testing.T) {
	scope := NewScope()
	scope.Set("cfg.mode", "fast")

	out := Render("mode is {{ cfg.mode }}", scope, nil)
	assert.Equal(t, "mode is fast", out)
}

func TestRenderResolvesNestedMapTraversal(t *testing.T) {
	scope := NewScope()
	scope.Set("cfg", map[string]interface{}{"mode": "fast"})

	out := Render("{{ cfg.mode }}", scope, nil)
	assert.Equal(t, "fast", out)
}

func TestRenderLeavesUnresolvedPlaceholderVerbatim(t *testing.T) {
	scope := NewScope()
	out := Render("value: {{ missing.thing }}", scope, nil)
	assert.Equal(t, "value: {{ missing.thing }}", out)
}

func TestReferencesExtractsUniqueNames(t *testing.T) {
	names := References("{{ a.b }} and {{ c }} and {{ a.b }}")
	assert.ElementsMatch(t, []string{"a.b", "c"}, names)
}
