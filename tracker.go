// Package tracker is the entry point of go-track-kit. A Tracker owns the
// visitor id, the current user identity and the dispatch pipeline for one
// tenant domain.
package tracker

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/c0deZ3R0/go-track-kit/config"
	"github.com/c0deZ3R0/go-track-kit/dispatch"
	"github.com/c0deZ3R0/go-track-kit/errors"
	"github.com/c0deZ3R0/go-track-kit/event"
	"github.com/c0deZ3R0/go-track-kit/identity"
	"github.com/c0deZ3R0/go-track-kit/logging"
	"github.com/c0deZ3R0/go-track-kit/observability"
	"github.com/c0deZ3R0/go-track-kit/resolver"
	"github.com/c0deZ3R0/go-track-kit/storage"
	"github.com/c0deZ3R0/go-track-kit/transport"
	"github.com/c0deZ3R0/go-track-kit/transport/httptransport"
	"github.com/c0deZ3R0/go-track-kit/visitor"
)

// ErrClosed is returned by operations on a closed Tracker.
var ErrClosed = stderrors.New("tracker is closed")

// Tracker records events for one tenant. It is safe for concurrent use.
type Tracker struct {
	cfg        config.Config
	logger     *logging.Logger
	level      *logging.DynamicLevelVar
	store      storage.KVStore
	visitors   *visitor.Manager
	resolver   *resolver.DomainResolver
	dispatcher *dispatch.Dispatcher

	mu     sync.RWMutex
	domain string
	ids    identity.UserIdentifiers
	closed bool
}

type options struct {
	transport      transport.Transport
	store          storage.KVStore
	logger         *logging.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	generator      *visitor.Generator
}

// Option configures a Tracker.
type Option func(*options)

// WithTransport replaces the HTTP transport built from the configuration.
func WithTransport(t transport.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithStore replaces the store selected by the configuration. The Tracker
// closes it on Close.
func WithStore(s storage.KVStore) Option {
	return func(o *options) { o.store = s }
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMeterProvider sets the OpenTelemetry meter provider. The global provider is used otherwise.
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = p }
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The global provider is used otherwise.
func WithTracerProvider(p trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = p }
}

// WithVisitorGenerator replaces the clock and randomness behind new visitor ids.
func WithVisitorGenerator(g visitor.Generator) Option {
	return func(o *options) { o.generator = &g }
}

// New validates cfg, opens the configured store, loads or creates the
// visitor id and wires the dispatch pipeline.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	t := &Tracker{cfg: cfg, domain: cfg.Domain}
	t.logger, t.level = newLogger(cfg, o.logger)

	store := o.store
	if store == nil {
		var err error
		if store, err = openStore(ctx, cfg.Storage, t.logger); err != nil {
			return nil, err
		}
	}
	t.store = store

	tr := o.transport
	if tr == nil {
		tr = httptransport.NewClient(
			httptransport.WithLimits(httptransport.Limits{
				MaxResponseBytes: cfg.Transport.MaxResponseBytes,
				RequestTimeout:   cfg.Transport.Timeout,
			}),
			httptransport.WithRateLimit(cfg.Transport.RateLimit, cfg.Transport.Burst),
			httptransport.WithCompression(cfg.Transport.Gzip),
			httptransport.WithUserAgent(cfg.Transport.UserAgent),
			httptransport.WithLogger(t.logger),
		)
	}

	recorder := observability.NewRecorder(o.meterProvider)
	spans := observability.NewSpanManager(o.tracerProvider)

	visitorOpts := []visitor.ManagerOption{visitor.WithLogger(t.logger)}
	if o.generator != nil {
		visitorOpts = append(visitorOpts, visitor.WithGenerator(*o.generator))
	}
	t.visitors = visitor.NewManager(store, visitorOpts...)

	t.resolver = resolver.New(tr,
		resolver.WithTagURLFormat(cfg.TagURLFormat),
		resolver.WithLogger(t.logger),
		resolver.WithRecorder(recorder))

	t.dispatcher = dispatch.New(t.resolver, tr,
		dispatch.WithEventsURL(cfg.EventsURL),
		dispatch.WithTimeout(cfg.Transport.Timeout),
		dispatch.WithLogger(t.logger),
		dispatch.WithRecorder(recorder),
		dispatch.WithSpanManager(spans))

	visitorID, err := t.visitors.Get(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	t.ids = identity.MustBuild(identity.WithVisitorID(visitorID))

	t.logger = t.logger.WithComponent("tracker")
	t.logger.Info("tracker ready",
		slog.String("domain", cfg.Domain),
		slog.String("mode", string(cfg.Mode)),
		slog.String("storage", cfg.Storage.Driver))
	return t, nil
}

// newLogger returns l if set, otherwise a logger built from cfg. Debug mode
// lowers the level so every outgoing URL is logged.
func newLogger(cfg config.Config, l *logging.Logger) (*logging.Logger, *logging.DynamicLevelVar) {
	if l != nil {
		return l, nil
	}
	logger, level := logging.NewLoggerWithDynamicLevel(cfg.Logging)
	if cfg.Debug() {
		level.Set(slog.Level(logging.LevelTrace))
	}
	return logger, level
}

// SetLogLevel changes the level of a logger built by New. It reports false
// when the level is unknown or the logger was supplied with WithLogger.
func (t *Tracker) SetLogLevel(level string) bool {
	if t.level == nil {
		return false
	}
	return t.level.SetFromString(level)
}

// Identify merges ids into the current identity, keeping the visitor id, and
// records an identifier-collected event.
func (t *Tracker) Identify(ctx context.Context, ids identity.UserIdentifiers) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	merged := identity.Merge(t.ids, ids)
	if visitorID, ok := t.ids.VisitorID(); ok {
		merged = identity.Merge(merged, identity.MustBuild(identity.WithVisitorID(visitorID)))
	}
	t.ids = merged
	domain := t.domain
	t.mu.Unlock()

	t.logger.Debug("identified user")
	t.dispatcher.Send(ctx, event.IdentifierCollectedEvent{}, merged, domain, nil)
	return nil
}

// ClearUser forgets every identifier and starts a new visitor.
func (t *Tracker) ClearUser(ctx context.Context) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	visitorID, err := t.visitors.Regenerate(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.ids = identity.MustBuild(identity.WithVisitorID(visitorID))
	t.mu.Unlock()

	t.logger.Info("cleared user", slog.String("visitor_id", visitorID))
	return nil
}

// Record sends e with the current identity. cb, which may be nil, is
// notified once per underlying request.
func (t *Tracker) Record(ctx context.Context, e event.Event, cb dispatch.Callback) error {
	ids, domain, err := t.snapshot()
	if err != nil {
		return err
	}
	t.dispatcher.Send(ctx, e, ids, domain, cb)
	return nil
}

// RecordAndWait sends e and waits for every request to finish.
func (t *Tracker) RecordAndWait(ctx context.Context, e event.Event) (*dispatch.Result, error) {
	ids, domain, err := t.snapshot()
	if err != nil {
		return nil, err
	}
	return t.dispatcher.SendAndWait(ctx, e, ids, domain)
}

// ChangeDomain switches the tenant domain and drops the cached collection domain.
func (t *Tracker) ChangeDomain(domain string) error {
	if domain == "" {
		return errors.NewValidationError("domain", stderrors.New("domain cannot be empty"))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if domain == t.domain {
		return nil
	}
	t.logger.Info("changing domain", slog.String("from", t.domain), slog.String("to", domain))
	t.domain = domain
	t.resolver.Invalidate()
	return nil
}

// Identifiers returns the current identity.
func (t *Tracker) Identifiers() identity.UserIdentifiers {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ids
}

// Domain returns the current tenant domain.
func (t *Tracker) Domain() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.domain
}

// Close waits for in-flight requests and closes the store.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.dispatcher.Close()
	t.resolver.Wait()
	if err := t.store.Close(); err != nil {
		return errors.NewStorageError(errors.OpClose, fmt.Errorf("closing store: %w", err))
	}
	return nil
}

func (t *Tracker) snapshot() (identity.UserIdentifiers, string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return identity.UserIdentifiers{}, "", ErrClosed
	}
	return t.ids, t.domain, nil
}
