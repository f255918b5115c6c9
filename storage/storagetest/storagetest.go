// Package storagetest holds behaviour tests shared by every storage.KVStore implementation.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-track-kit/storage"
)

// Run exercises a fresh store from newStore. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.KVStore) {
	t.Helper()

	t.Run("ReadMissing", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		v, ok, err := s.Read(context.Background(), "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Save(ctx, "visitorId", "first"))
		require.NoError(t, s.Save(ctx, "visitorId", "second"))

		v, ok, err := s.Read(ctx, "visitorId")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "second", v)
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Save(ctx, "a", "1"))
		require.NoError(t, s.Save(ctx, "b", "2"))
		require.NoError(t, s.Delete(ctx, "a"))
		require.NoError(t, s.Delete(ctx, "never-set"))

		_, ok, err := s.Read(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)

		v, ok, err := s.Read(ctx, "b")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "2", v)
	})

	t.Run("DeleteAll", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Save(ctx, "a", "1"))
		require.NoError(t, s.Save(ctx, "b", "2"))
		require.NoError(t, s.DeleteAll(ctx))

		for _, k := range []string{"a", "b"} {
			_, ok, err := s.Read(ctx, k)
			require.NoError(t, err)
			assert.False(t, ok, k)
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.Save(ctx, "k", ""))
		v, ok, err := s.Read(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, v)
	})

	t.Run("Closed", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.Save(ctx, "k", "v"), storage.ErrStoreClosed)
		_, _, err := s.Read(ctx, "k")
		assert.ErrorIs(t, err, storage.ErrStoreClosed)
		assert.ErrorIs(t, s.Delete(ctx, "k"), storage.ErrStoreClosed)
		assert.ErrorIs(t, s.DeleteAll(ctx), storage.ErrStoreClosed)
	})
}
