package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Read(ctx, "visitorId")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "visitorId", "abc"))
	require.NoError(t, s.Save(ctx, "flag", "1"))

	v, ok, err := s.Read(ctx, "visitorId")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Save(ctx, "visitorId", "def"))
	v, _, _ = s.Read(ctx, "visitorId")
	assert.Equal(t, "def", v)

	require.NoError(t, s.Delete(ctx, "visitorId"))
	require.NoError(t, s.Delete(ctx, "missing"))
	_, ok, _ = s.Read(ctx, "visitorId")
	assert.False(t, ok)

	require.NoError(t, s.DeleteAll(ctx))
	_, ok, _ = s.Read(ctx, "flag")
	assert.False(t, ok)
}

func TestMemoryStore_Closed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Save(ctx, "k", "v"), ErrStoreClosed)
	_, _, err := s.Read(ctx, "k")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Delete(ctx, "k"), ErrStoreClosed)
	assert.ErrorIs(t, s.DeleteAll(ctx), ErrStoreClosed)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	assert.ErrorIs(t, s.Save(ctx, "k", "v"), context.Canceled)
}
