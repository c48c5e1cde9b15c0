package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	ID   string
	Name string
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := New[testItem]()

	item := testItem{ID: "a", Name: "first"}
	require.NoError(t, r.Register("a", item))

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, item, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsEmptyNameAndDuplicates(t *testing.T) {
	r := New[testItem]()

	err := r.Register("", testItem{ID: "a"})
	assert.Error(t, err)

	require.NoError(t, r.Register("a", testItem{ID: "a"}))
	err = r.Register("a", testItem{ID: "a-again"})
	assert.Error(t, err)
}

func TestRegistryPutOverwrites(t *testing.T) {
	r := New[testItem]()

	r.Put("a", testItem{ID: "a", Name: "first"})
	r.Put("a", testItem{ID: "a", Name: "second"})

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "second", got.Name)
	assert.Equal(t, 1, r.Count())
}

func TestRegistryNamesSorted(t *testing.T) {
	r := New[testItem]()
	for _, name := range []string{"zeta", "alpha", "mu"} {
		require.NoError(t, r.Register(name, testItem{ID: name}))
	}

	assert.Equal(t, []string{"alpha", "mu", "zeta"}, r.Names())
}

func TestRegistryListAndCount(t *testing.T) {
	r := New[testItem]()
	assert.Empty(t, r.List())
	assert.Equal(t, 0, r.Count())

	items := []testItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	for _, item := range items {
		require.NoError(t, r.Register(item.ID, item))
	}

	assert.Equal(t, len(items), r.Count())
	assert.ElementsMatch(t, items, r.List())
}

func TestRegistryRemoveAndClear(t *testing.T) {
	r := New[testItem]()
	require.NoError(t, r.Register("a", testItem{ID: "a"}))

	require.NoError(t, r.Remove("a"))
	_, ok := r.Get("a")
	assert.False(t, ok)

	err := r.Remove("a")
	assert.Error(t, err)

	require.NoError(t, r.Register("b", testItem{ID: "b"}))
	require.NoError(t, r.Register("c", testItem{ID: "c"}))
	r.Clear()
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.List())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := New[testItem]()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			name := fmt.Sprintf("concurrent-%d", i)
			_ = r.Register(name, testItem{ID: name})
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			name := fmt.Sprintf("concurrent-%d", i)
			r.Get(name)
			r.Count()
			r.List()
		}
	}()

	wg.Wait()
	assert.Equal(t, 100, r.Count())
}
