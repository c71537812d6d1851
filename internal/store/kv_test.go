package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AbsenceIsNotAnError(t *testing.T) {
	kv := NewMemory()

	value, err := kv.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestMemory_Roundtrip(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", []byte(`{"tokenId":42}`)))

	value, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"tokenId":42}`), value)

	// Overwrite wins.
	require.NoError(t, kv.Set(ctx, "k", []byte(`{"tokenId":43}`)))
	value, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"tokenId":43}`), value)
}

func TestMemory_CopySemantics(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()

	stored := []byte("original")
	require.NoError(t, kv.Set(ctx, "k", stored))
	stored[0] = 'X'

	value, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), value)

	value[0] = 'Y'
	again, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}
