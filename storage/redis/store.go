// Package redis provides a Redis implementation of storage.KVStore. All keys
// live in one hash so DeleteAll never touches unrelated data.
package redis

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	stdSync "sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/c0deZ3R0/go-track-kit/errors"
	"github.com/c0deZ3R0/go-track-kit/logging"
	"github.com/c0deZ3R0/go-track-kit/storage"
)

const component = "storage/redis"

// DefaultHashKey names the hash holding every stored key.
const DefaultHashKey = "track-kit:kv"

// Config holds configuration options for the Store.
type Config struct {
	// URL, e.g. "redis://:password@localhost:6379/0", takes precedence over Addr.
	URL      string
	Addr     string
	Password string
	DB       int

	// HashKey defaults to DefaultHashKey.
	HashKey string

	// Logger defaults to logging.Default().
	Logger *logging.Logger
}

// Store keeps key-value pairs as fields of a single Redis hash.
type Store struct {
	client  *goredis.Client
	hashKey string
	logger  *logging.Logger

	mu     stdSync.RWMutex
	closed bool
}

var _ storage.KVStore = (*Store)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, config Config) (*Store, error) {
	var opts *goredis.Options
	switch {
	case config.URL != "":
		parsed, err := goredis.ParseURL(config.URL)
		if err != nil {
			return nil, errors.NewStorageError(errors.OpLoad, fmt.Errorf("invalid redis url: %w", err))
		}
		opts = parsed
	case config.Addr != "":
		opts = &goredis.Options{Addr: config.Addr, Password: config.Password, DB: config.DB}
	default:
		return nil, errors.NewStorageError(errors.OpLoad, stderrors.New("redis address is required"))
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.NewStorageError(errors.OpLoad, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err))
	}
	return NewWithClient(client, config), nil
}

// NewWithClient wraps an existing client. The Store closes client on Close.
func NewWithClient(client *goredis.Client, config Config) *Store {
	if config.HashKey == "" {
		config.HashKey = DefaultHashKey
	}
	if config.Logger == nil {
		config.Logger = logging.Default()
	}
	return &Store{
		client:  client,
		hashKey: config.HashKey,
		logger:  config.Logger.WithComponent(component),
	}
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrStoreClosed
	}
	return nil
}

// Save sets key to value.
func (s *Store) Save(ctx context.Context, key, value string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.hashKey, key, value).Err(); err != nil {
		return errors.WrapOpComponent(errors.NewStorageError(errors.OpStore, err), "redis.Save", component)
	}
	return nil
}

// Read returns the value stored under key.
func (s *Store) Read(ctx context.Context, key string) (string, bool, error) {
	if err := s.checkOpen(); err != nil {
		return "", false, err
	}
	value, err := s.client.HGet(ctx, s.hashKey, key).Result()
	if stderrors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WrapOpComponent(errors.NewStorageError(errors.OpLoad, err), "redis.Read", component)
	}
	return value, true, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.client.HDel(ctx, s.hashKey, key).Err(); err != nil {
		return errors.WrapOpComponent(errors.NewStorageError(errors.OpStore, err), "redis.Delete", component)
	}
	return nil
}

// DeleteAll removes the whole hash.
func (s *Store) DeleteAll(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.hashKey).Err(); err != nil {
		return errors.WrapOpComponent(errors.NewStorageError(errors.OpStore, err), "redis.DeleteAll", component)
	}
	s.logger.Debug("cleared all keys", slog.String("hash", s.hashKey))
	return nil
}

// Close closes the client. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
