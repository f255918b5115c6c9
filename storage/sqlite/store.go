// Package sqlite provides a SQLite implementation of storage.KVStore.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	stdSync "sync"
	"time"

	"github.com/c0deZ3R0/go-track-kit/errors"
	"github.com/c0deZ3R0/go-track-kit/logging"
	"github.com/c0deZ3R0/go-track-kit/storage"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const component = "storage/sqlite"

// Operation names for error reporting
const (
	opSave      = "sqlite.Save"
	opRead      = "sqlite.Read"
	opDelete    = "sqlite.Delete"
	opDeleteAll = "sqlite.DeleteAll"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds configuration options for the Store.
//
// DefaultConfig enables WAL mode and a small connection pool. In-memory
// databases are limited to one connection so every query sees the same data.
type Config struct {
	// DataSourceName is the connection string, e.g. "file:track.db".
	DataSourceName string

	// EnableWAL appends "_journal_mode=WAL" to DataSourceName.
	EnableWAL bool

	// Logger defaults to logging.Default().
	Logger *logging.Logger

	// TableName defaults to "track_kv".
	TableName string

	MaxOpenConns    int           // Default: 4
	MaxIdleConns    int           // Default: 2
	ConnMaxLifetime time.Duration // Default: 1h
}

func (c *Config) setDefaults() {
	if c.TableName == "" {
		c.TableName = "track_kv"
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 4
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 2
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if strings.Contains(c.DataSourceName, ":memory:") {
		c.MaxOpenConns = 1
		c.MaxIdleConns = 1
		c.EnableWAL = false
	}
	if c.EnableWAL && !strings.Contains(c.DataSourceName, "_journal_mode=") {
		sep := "?"
		if strings.Contains(c.DataSourceName, "?") {
			sep = "&"
		}
		c.DataSourceName += sep + "_journal_mode=WAL"
	}
}

// DefaultConfig returns a Config with WAL enabled.
func DefaultConfig(dataSourceName string) *Config {
	return &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
}

// NewWithDataSource is a convenience constructor.
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

// Store persists key-value pairs in a single SQLite table.
type Store struct {
	db        *sql.DB
	mu        stdSync.RWMutex
	closed    bool
	logger    *logging.Logger
	tableName string
}

var _ storage.KVStore = (*Store)(nil)

// New opens the database described by config and creates the table if needed.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.OpLoad, stderrors.New("config cannot be nil"))
	}
	config.setDefaults()

	if config.DataSourceName == "" {
		return nil, errors.NewStorageError(errors.OpLoad, stderrors.New("DataSourceName is required"))
	}
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, errors.NewStorageError(errors.OpLoad, fmt.Errorf("invalid table name %q", config.TableName))
	}

	logger := config.Logger.WithComponent(component)
	logger.Info("opening SQLite database",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL))

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, errors.NewStorageError(errors.OpLoad, fmt.Errorf("failed to open sqlite database: %w", err))
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.NewStorageError(errors.OpLoad, fmt.Errorf("failed to connect to sqlite database: %w", err))
	}

	s := &Store{db: db, logger: logger, tableName: config.TableName}
	if err := s.setupSchema(); err != nil {
		db.Close()
		return nil, errors.NewStorageError(errors.OpLoad, fmt.Errorf("failed to setup database schema: %w", err))
	}
	return s, nil
}

func (s *Store) setupSchema() error {
	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
        key         TEXT PRIMARY KEY,
        value       TEXT NOT NULL,
        updated_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );`, s.tableName)
	_, err := s.db.Exec(query)
	return err
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrStoreClosed
	}
	return nil
}

// Save upserts value under key.
func (s *Store) Save(ctx context.Context, key, value string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return errors.WrapOpComponent(errors.NewStorageError(errors.OpStore, err), opSave, component)
	}
	return nil
}

// Read returns the value stored under key.
func (s *Store) Read(ctx context.Context, key string) (string, bool, error) {
	if err := s.checkOpen(); err != nil {
		return "", false, err
	}
	var value string
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, s.tableName)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WrapOpComponent(errors.NewStorageError(errors.OpLoad, err), opRead, component)
	}
	return value, true, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return errors.WrapOpComponent(errors.NewStorageError(errors.OpStore, err), opDelete, component)
	}
	return nil
}

// DeleteAll removes every key.
func (s *Store) DeleteAll(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.tableName)); err != nil {
		return errors.WrapOpComponent(errors.NewStorageError(errors.OpStore, err), opDeleteAll, component)
	}
	s.logger.Debug("cleared all keys", slog.String("table", s.tableName))
	return nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
