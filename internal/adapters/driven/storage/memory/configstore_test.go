package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Seeded(t *testing.T) {
	seed := map[string]any{"chunking.size": 120}
	store := NewConfigStore(seed)
	seed["chunking.size"] = 1

	assert.Equal(t, 120, store.GetInt("chunking.size"))
	assert.Equal(t, ":memory:", store.Path())
	assert.NoError(t, store.Load())
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore(map[string]any{
		"s":   "text",
		"i":   int64(7),
		"f":   0.25,
		"fi":  int64(2),
		"b":   true,
		"bad": []int{1},
	})

	assert.Equal(t, "text", store.GetString("s"))
	assert.Equal(t, 7, store.GetInt("i"))
	assert.InDelta(t, 0.25, store.GetFloat("f"), 1e-12)
	assert.InDelta(t, 2.0, store.GetFloat("fi"), 1e-12)
	assert.True(t, store.GetBool("b"))

	assert.Equal(t, "", store.GetString("bad"))
	assert.Equal(t, 0, store.GetInt("bad"))
	assert.Equal(t, 0.0, store.GetFloat("missing"))
	assert.False(t, store.GetBool("missing"))
}

func TestConfigStore_Set(t *testing.T) {
	store := NewConfigStore(nil)

	require.NoError(t, store.Set("key1", "original"))
	require.NoError(t, store.Set("key1", "updated"))

	val, ok := store.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, "updated", val)
}

func TestConfigStore_ConcurrentAccess(t *testing.T) {
	store := NewConfigStore(nil)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("counter", n)
		}(i)
		go func() {
			defer wg.Done()
			_ = store.GetInt("counter")
		}()
	}
	wg.Wait()

	_, ok := store.Get("counter")
	assert.True(t, ok)
}

func TestConfigStore_ParsesStrings(t *testing.T) {
	store := NewConfigStore(map[string]any{"i": "12", "f": "0.5", "b": "true", "x": "nope"})

	assert.Equal(t, 12, store.GetInt("i"))
	assert.InDelta(t, 0.5, store.GetFloat("f"), 1e-12)
	assert.True(t, store.GetBool("b"))
	assert.Equal(t, 0, store.GetInt("x"))
}

func TestConfigStore_KeysAndUnset(t *testing.T) {
	store := NewConfigStore(map[string]any{"retrieval.cap": 3, "chunking.size": 100})

	assert.Equal(t, []string{"chunking.size", "retrieval.cap"}, store.Keys())

	require.NoError(t, store.Unset("retrieval.cap"))
	require.NoError(t, store.Unset("missing"))
	assert.Equal(t, []string{"chunking.size"}, store.Keys())
}

func TestSnapshot(t *testing.T) {
	src := NewConfigStore(map[string]any{"retrieval.cap": 3})
	snap := Snapshot(src)

	require.NoError(t, snap.Set("retrieval.cap", 9))
	assert.Equal(t, 3, src.GetInt("retrieval.cap"))
	assert.Equal(t, 9, snap.GetInt("retrieval.cap"))
}
