package contextstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	doc, err := store.Get(ctx, "5511999887766")
	require.NoError(t, err)
	assert.Nil(t, doc, "missing document reads as nil, not an error")

	require.NoError(t, store.Set(ctx, "5511999887766", map[string]any{
		"lead_data": map[string]any{"name": "Maria"},
	}))

	doc, err = store.Get(ctx, "5511999887766")
	require.NoError(t, err)
	require.NotNil(t, doc)
	lead, ok := doc["lead_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Maria", lead["name"])
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	original := map[string]any{"stage": "qualifying"}
	require.NoError(t, store.Set(ctx, "k", original))

	// Mutations after Set and after Get must not reach the stored document.
	original["stage"] = "mutated"
	first, err := store.Get(ctx, "k")
	require.NoError(t, err)
	first["stage"] = "also mutated"

	second, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "qualifying", second["stage"])
}

func TestMemoryStoreKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, store.Set(ctx, "a", map[string]any{}))
	require.NoError(t, store.Set(ctx, "b", map[string]any{}))

	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}
