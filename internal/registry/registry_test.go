package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterLookup(t *testing.T) {
	r := New()
	var got []string
	replaced, err := r.Register("greet", func(seq, args string, ctx any) {
		got = append(got, seq, args, ctx.(string))
	}, "ctx")
	require.NoError(t, err)
	assert.False(t, replaced)

	e, ok := r.Lookup("greet")
	require.True(t, ok)
	assert.Equal(t, "greet", e.Name)
	e.Callback("1", "world", e.Context)
	assert.Equal(t, []string{"1", "world", "ctx"}, got)
}

func TestRegistry_LookupUnknownIsNotAnError(t *testing.T) {
	r := New()
	_, ok := r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistry_ReplaceLastWriteWins(t *testing.T) {
	r := New()
	_, err := r.Register("a", func(string, string, any) {}, 1)
	require.NoError(t, err)
	replaced, err := r.Register("a", func(string, string, any) {}, 2)
	require.NoError(t, err)
	assert.True(t, replaced)

	e, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 2, e.Context)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := New()
	_, err := r.Register("", func(string, string, any) {}, nil)
	assert.ErrorIs(t, err, ErrInvalidBinding)
	_, err = r.Register("x", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidBinding)
	assert.Zero(t, r.Len())
}

func TestRegistry_Unregister(t *testing.T) {
	r := New()
	_, _ = r.Register("a", func(string, string, any) {}, nil)
	assert.True(t, r.Unregister("a"))
	assert.False(t, r.Unregister("a"))
	_, ok := r.Lookup("a")
	assert.False(t, ok)
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := New()
	for _, n := range []string{"c", "a", "b"} {
		_, _ = r.Register(n, func(string, string, any) {}, nil)
	}
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())
	r.Reset()
	assert.Empty(t, r.Names())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		name := fmt.Sprintf("h%d", i)
		go func() {
			defer wg.Done()
			_, _ = r.Register(name, func(string, string, any) {}, nil)
		}()
		go func() {
			defer wg.Done()
			_, _ = r.Lookup(name)
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, r.Len())
}
