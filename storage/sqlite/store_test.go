package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-track-kit/errors"
	"github.com/c0deZ3R0/go-track-kit/logging"
	"github.com/c0deZ3R0/go-track-kit/storage"
	"github.com/c0deZ3R0/go-track-kit/storage/storagetest"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(&Config{DataSourceName: ":memory:", Logger: logging.Discard()})
	require.NoError(t, err)
	return s
}

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.KVStore {
		return newMemoryStore(t)
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "track.db")

	s, err := New(&Config{DataSourceName: "file:" + path, EnableWAL: true, Logger: logging.Discard()})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "visitorId", "abc"))
	require.NoError(t, s.Close())

	s, err = New(&Config{DataSourceName: "file:" + path, EnableWAL: true, Logger: logging.Discard()})
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Read(ctx, "visitorId")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestStore_CustomTable(t *testing.T) {
	s, err := New(&Config{DataSourceName: ":memory:", TableName: "sdk_state", Logger: logging.Discard()})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "sdk_state", s.tableName)
	require.NoError(t, s.Save(context.Background(), "k", "v"))
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{"nil config", nil},
		{"empty dsn", &Config{}},
		{"table injection", &Config{DataSourceName: ":memory:", TableName: "kv; DROP TABLE x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeStorageFailure))
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	c := DefaultConfig("file:track.db")
	c.setDefaults()
	assert.Equal(t, "file:track.db?_journal_mode=WAL", c.DataSourceName)
	assert.Equal(t, "track_kv", c.TableName)
	assert.Equal(t, 4, c.MaxOpenConns)

	c = DefaultConfig("file:track.db?cache=shared")
	c.setDefaults()
	assert.Equal(t, "file:track.db?cache=shared&_journal_mode=WAL", c.DataSourceName)

	c = DefaultConfig(":memory:")
	c.setDefaults()
	assert.Equal(t, ":memory:", c.DataSourceName)
	assert.Equal(t, 1, c.MaxOpenConns)
}

func TestStore_CancelledContext(t *testing.T) {
	s := newMemoryStore(t)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Save(ctx, "k", "v")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
