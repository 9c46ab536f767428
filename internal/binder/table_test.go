package binder

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/modhost/internal/module"
)

type greeter interface {
	Greet() string
}

type fixed string

func (f fixed) Greet() string { return string(f) }

func TestTableDefaultsToStandIn(t *testing.T) {
	tbl := NewTable[greeter]("greeter", fixed("unavailable"))
	assert.False(t, tbl.Bound())
	assert.Equal(t, "unavailable", tbl.Ops().Greet())
}

func TestTableBindOnce(t *testing.T) {
	tbl := NewTable[greeter]("greeter", fixed("unavailable"))

	require.NoError(t, tbl.Bind(fixed("real")))
	assert.True(t, tbl.Bound())
	assert.Equal(t, "real", tbl.Ops().Greet())

	err := tbl.Bind(fixed("again"))
	require.Error(t, err)
	assert.ErrorIs(t, err, module.ErrOrderViolation)
	assert.Equal(t, "real", tbl.Ops().Greet())
}

func TestTableBindNil(t *testing.T) {
	tbl := NewTable[greeter]("greeter", fixed("unavailable"))
	assert.ErrorContains(t, tbl.Bind(nil), "implementation is nil")
	assert.False(t, tbl.Bound())
}

func TestTableConcurrentReadersAfterBind(t *testing.T) {
	tbl := NewTable[greeter]("greeter", fixed("unavailable"))
	require.NoError(t, tbl.Bind(fixed("real")))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				assert.Equal(t, "real", tbl.Ops().Greet())
			}
		}()
	}
	wg.Wait()
}

func TestSetBind(t *testing.T) {
	tbl := NewTable[greeter]("greeter", fixed("unavailable"))
	s := NewSet(tbl)

	assert.Equal(t, map[string]bool{"greeter": false}, s.Status())

	err := s.Bind("greeter", "not a greeter")
	assert.ErrorContains(t, err, "does not implement")

	require.NoError(t, s.Bind("greeter", fixed("real")))
	assert.Equal(t, "real", tbl.Ops().Greet())
	assert.Equal(t, map[string]bool{"greeter": true}, s.Status())

	assert.ErrorIs(t, s.Bind("greeter", fixed("twice")), module.ErrOrderViolation)
	assert.ErrorContains(t, s.Bind("audio", fixed("x")), `unknown subsystem "audio"`)
}

func TestSetAdd(t *testing.T) {
	s := NewSet()
	require.NoError(t, s.Add(NewTable[greeter]("b", fixed(""))))
	require.NoError(t, s.Add(NewTable[greeter]("a", fixed(""))))
	assert.Error(t, s.Add(NewTable[greeter]("a", fixed(""))))
	assert.Equal(t, []string{"a", "b"}, s.Names())
}

func TestSetCheckDoesNotBind(t *testing.T) {
	tbl := NewTable[greeter]("greeter", fixed("unavailable"))
	s := NewSet(tbl)

	require.NoError(t, s.Check("greeter", fixed("real")))
	assert.False(t, tbl.Bound())
	assert.ErrorContains(t, s.Check("greeter", 42), "does not implement")
	assert.ErrorContains(t, s.Check("audio", fixed("x")), `unknown subsystem "audio"`)

	require.NoError(t, s.Bind("greeter", fixed("real")))
	assert.ErrorIs(t, s.Check("greeter", fixed("again")), module.ErrOrderViolation)
}
