package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSaveLoadClear(t *testing.T) {
	store := NewMemoryStore()

	_, _, _, ok := store.Load()
	assert.False(t, ok)

	token, err := NewSessionToken()
	require.NoError(t, err)
	require.NoError(t, store.Save("p1", token, "Alice"))

	gotID, gotToken, gotName, ok := store.Load()
	assert.True(t, ok)
	assert.Equal(t, LogicalID("p1"), gotID)
	assert.Equal(t, token, gotToken)
	assert.Equal(t, "Alice", gotName)

	require.NoError(t, store.Clear())
	_, _, _, ok = store.Load()
	assert.False(t, ok)
}
