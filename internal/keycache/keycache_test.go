package keycache_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybridge/internal/domain"
	"keybridge/internal/keycache"
)

func key(b byte) domain.PublicKey { return domain.PublicKey{b} }

func TestCache_GetPutCaseInsensitive(t *testing.T) {
	c := keycache.New(4)
	c.Put("abcd1234", key(1))

	got, ok := c.Get("ABCD1234")
	require.True(t, ok)
	assert.Equal(t, key(1), got)

	_, ok = c.Get("ZZZZ0000")
	assert.False(t, ok)
}

func TestCache_EvictsFirstInserted(t *testing.T) {
	const capacity = 3
	c := keycache.New(capacity)
	for i := 0; i < capacity+1; i++ {
		c.Put(fmt.Sprintf("ID%06d", i), key(byte(i)))
	}

	assert.Equal(t, capacity, c.Len())
	_, ok := c.Get("ID000000")
	assert.False(t, ok, "first inserted entry should be evicted")
	for i := 1; i <= capacity; i++ {
		_, ok := c.Get(fmt.Sprintf("ID%06d", i))
		assert.True(t, ok, "entry %d should remain", i)
	}
}

func TestCache_ReadsDoNotRefreshOrder(t *testing.T) {
	c := keycache.New(2)
	c.Put("A", key(1))
	c.Put("B", key(2))
	_, _ = c.Get("A")
	c.Put("C", key(3))

	_, ok := c.Get("A")
	assert.False(t, ok, "insertion order, not access order")
	_, ok = c.Get("B")
	assert.True(t, ok)
}

func TestCache_UpdateKeepsPosition(t *testing.T) {
	c := keycache.New(2)
	c.Put("A", key(1))
	c.Put("B", key(2))
	c.Put("a", key(9))
	assert.Equal(t, 2, c.Len())

	got, _ := c.Get("A")
	assert.Equal(t, key(9), got)

	c.Put("C", key(3))
	_, ok := c.Get("A")
	assert.False(t, ok, "updated entry keeps its original position")
}

func TestCache_EvictAndClear(t *testing.T) {
	c := keycache.New(0)
	c.Put("A", key(1))
	c.Put("B", key(2))

	assert.True(t, c.Evict("a"))
	assert.False(t, c.Evict("a"))
	_, ok := c.Get("A")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok = c.Get("B")
	assert.False(t, ok)
}

func TestCache_EvictThenFillRespectsCapacity(t *testing.T) {
	c := keycache.New(2)
	c.Put("A", key(1))
	c.Put("B", key(2))
	c.Evict("A")
	c.Put("C", key(3))
	c.Put("D", key(4))

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("B")
	assert.False(t, ok)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := keycache.New(64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("G%dI%d", g, i)
				c.Put(id, key(byte(i)))
				c.Get(id)
				if i%7 == 0 {
					c.Evict(id)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}
