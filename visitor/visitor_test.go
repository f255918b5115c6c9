package visitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-track-kit/logging"
	"github.com/c0deZ3R0/go-track-kit/storage"
)

func TestGenerate_Shape(t *testing.T) {
	prev := ""
	for i := 0; i < 1000; i++ {
		id := Generate()
		require.Len(t, id, 32)
		require.Equal(t, byte('4'), id[12], "id %q", id)
		require.True(t, Valid(id), "id %q", id)
		assert.NotEqual(t, prev, id)
		prev = id
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	g := Generator{
		Now:  func() time.Time { return time.UnixMilli(0x123456789ab) },
		Rand: func() float64 { return 0 },
	}

	// With a zero random stream every nibble is the seed's next hex digit,
	// least significant first, then zeros once the seed is exhausted.
	id := g.Generate()
	assert.Equal(t, "ba987654321040008000000000000000", id)
	assert.True(t, Valid(id))
}

func TestGenerator_YNibble(t *testing.T) {
	g := Generator{
		Now:  func() time.Time { return time.UnixMilli(0) },
		Rand: func() float64 { return 0.99 },
	}

	id := g.Generate()
	// rand*16 = 15.84 so every x is 'f'; y is (15&3)|8 = 0xb.
	assert.Equal(t, "ffffffffffff4fffbfffffffffffffff", id)
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("ba98765432104000800000000000000"))  // 31
	assert.False(t, Valid("ba987654321050008000000000000000")) // no marker
	assert.False(t, Valid("ba987654321040000000000000000000")) // bad y
	assert.False(t, Valid("BA987654321040008000000000000000")) // upper-case
}

func TestManager_CreatesOnceAndPersists(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := NewManager(store, WithLogger(logging.Discard()))

	id, err := m.Get(ctx)
	require.NoError(t, err)
	assert.True(t, Valid(id))

	again, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	persisted, ok, err := store.Read(ctx, StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, persisted)

	// A new manager over the same store reads the existing id.
	m2 := NewManager(store, WithLogger(logging.Discard()))
	reread, err := m2.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, reread)
}

func TestManager_Regenerate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := NewManager(store, WithLogger(logging.Discard()))

	first, err := m.Get(ctx)
	require.NoError(t, err)

	second, err := m.Regenerate(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	got, _ := m.Get(ctx)
	assert.Equal(t, second, got)

	persisted, _, _ := store.Read(ctx, StorageKey)
	assert.Equal(t, second, persisted)
}

type failingStore struct {
	storage.KVStore
}

func (failingStore) Read(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}

func (failingStore) Save(context.Context, string, string) error {
	return errors.New("disk gone")
}

func TestManager_StoreFailureStillReturnsID(t *testing.T) {
	m := NewManager(failingStore{}, WithLogger(logging.Discard()))

	id, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, Valid(id))

	again, _ := m.Get(context.Background())
	assert.Equal(t, id, again)
}
