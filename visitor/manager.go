package visitor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c0deZ3R0/go-track-kit/errors"
	"github.com/c0deZ3R0/go-track-kit/logging"
	"github.com/c0deZ3R0/go-track-kit/storage"
)

// StorageKey is the well-known key the visitor id is persisted under.
const StorageKey = "visitorId"

// Manager reads the persisted visitor id, creating one on first use.
type Manager struct {
	store     storage.KVStore
	generator Generator
	logger    *logging.Logger

	mu     sync.Mutex
	cached string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithGenerator replaces the id generator.
func WithGenerator(g Generator) ManagerOption {
	return func(m *Manager) { m.generator = g }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a Manager persisting into store.
func NewManager(store storage.KVStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		generator: defaultGenerator,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("visitor")
	return m
}

// Get returns the current visitor id. On first call it is read from the store;
// if absent (or unreadable) a new id is generated and saved. A failed save is
// logged and the generated id is still returned.
func (m *Manager) Get(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != "" {
		return m.cached, nil
	}

	id, ok, err := m.store.Read(ctx, StorageKey)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		m.logger.LogError(ctx, errors.NewStorageError(errors.OpLoad, err), "could not read visitor id")
	}
	if ok && id != "" {
		m.cached = id
		return id, nil
	}

	return m.createLocked(ctx)
}

// Regenerate replaces the visitor id with a fresh one and persists it.
func (m *Manager) Regenerate(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(ctx)
}

func (m *Manager) createLocked(ctx context.Context) (string, error) {
	id := m.generator.Generate()
	if err := m.store.Save(ctx, StorageKey, id); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		m.logger.LogError(ctx, errors.NewStorageError(errors.OpStore, err), "could not persist visitor id")
	}
	m.cached = id
	m.logger.DebugContext(ctx, "visitor id created", slog.String("visitor_id", id))
	return id, nil
}
