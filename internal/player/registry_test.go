package player

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry()

	p1, created := r.GetOrCreate("g1", func() *Player { return New("g1", 30, zerolog.Nop()) })
	assert.True(t, created)

	p2, created := r.GetOrCreate("g1", func() *Player { return New("g1", 30, zerolog.Nop()) })
	assert.False(t, created)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryConcurrentCreateYieldsOneInstance(t *testing.T) {
	r := NewRegistry()

	const goroutines = 64
	players := make([]*Player, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, _ := r.GetOrCreate("g1", func() *Player { return New("g1", 30, zerolog.Nop()) })
			players[i] = p
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, players[0], players[i])
	}
	assert.Equal(t, 1, r.Len())
}

func TestRegistryGetUnknownGuild(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("g1", func() *Player { return New("g1", 30, zerolog.Nop()) })

	p, err := r.Remove("g1")
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = r.Remove("g1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get("g1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryRemoveIfChecksIdentity(t *testing.T) {
	r := NewRegistry()
	p1, _ := r.GetOrCreate("g1", func() *Player { return New("g1", 30, zerolog.Nop()) })

	// A stale pointer for the same guild must not evict the live entry.
	stale := New("g1", 30, zerolog.Nop())
	assert.False(t, r.RemoveIf("g1", stale))
	got, err := r.Get("g1")
	require.NoError(t, err)
	assert.Same(t, p1, got)

	assert.True(t, r.RemoveIf("g1", p1))
	assert.False(t, r.RemoveIf("g1", p1))
	_, err = r.Get("g1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryAll(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 3; i++ {
		gid := fmt.Sprintf("g%d", i)
		r.GetOrCreate(gid, func() *Player { return New(gid, 30, zerolog.Nop()) })
	}
	assert.Len(t, r.All(), 3)
}
