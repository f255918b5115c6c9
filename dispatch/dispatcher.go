// Package dispatch turns events into collection requests and issues them
// over a transport, reporting each request's outcome.
package dispatch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/go-track-kit/errors"
	"github.com/c0deZ3R0/go-track-kit/event"
	"github.com/c0deZ3R0/go-track-kit/identity"
	"github.com/c0deZ3R0/go-track-kit/logging"
	"github.com/c0deZ3R0/go-track-kit/observability"
	"github.com/c0deZ3R0/go-track-kit/transport"
)

// DefaultEventsURL is the collection endpoint.
const DefaultEventsURL = "https://events.attentivemobile.com/e"

// Fixed query parameter values.
const (
	paramVersion    = "mobile-app"
	paramLoggerType = "0"
	paramTag        = "modern"
)

// ErrClosed is reported for sends attempted after Close.
var ErrClosed = stderrors.New("dispatcher is closed")

// DomainSource resolves a logical domain; *resolver.DomainResolver implements it.
type DomainSource interface {
	Resolve(ctx context.Context, logicalDomain string, onSuccess func(string), onFailure func(error))
}

// Callback receives the outcome of each underlying HTTP request. A logical
// send that expands into N requests notifies N times.
type Callback interface {
	OnSuccess()
	OnFailure(err error)
}

// CallbackFuncs adapts two functions to Callback. Either may be nil.
type CallbackFuncs struct {
	Success func()
	Failure func(error)
}

func (c CallbackFuncs) OnSuccess() {
	if c.Success != nil {
		c.Success()
	}
}

func (c CallbackFuncs) OnFailure(err error) {
	if c.Failure != nil {
		c.Failure(err)
	}
}

// Dispatcher sends events. It is safe for concurrent use.
type Dispatcher struct {
	domains   DomainSource
	transport transport.Poster
	builder   *event.Builder
	eventsURL string
	timeout   time.Duration
	marshal   func(any) ([]byte, error)
	logger    *logging.Logger
	recorder  observability.Recorder
	spans     observability.SpanManager

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEventsURL overrides the collection endpoint.
func WithEventsURL(u string) Option {
	return func(d *Dispatcher) { d.eventsURL = u }
}

// WithTimeout bounds each HTTP request. Zero leaves only the caller's context.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithMarshaler replaces the JSON encoder used for the evs and m parameters.
func WithMarshaler(marshal func(any) ([]byte, error)) Option {
	return func(d *Dispatcher) { d.marshal = marshal }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r observability.Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithSpanManager sets the tracing span manager.
func WithSpanManager(s observability.SpanManager) Option {
	return func(d *Dispatcher) { d.spans = s }
}

// New returns a Dispatcher resolving domains through domains and posting through poster.
func New(domains DomainSource, poster transport.Poster, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		domains:   domains,
		transport: poster,
		eventsURL: DefaultEventsURL,
		marshal:   json.Marshal,
		logger:    logging.Default(),
		recorder:  observability.NoopRecorder{},
		spans:     observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.builder = event.NewBuilder(d.logger)
	d.logger = d.logger.WithComponent("dispatch")
	return d
}

// Send resolves the effective domain, expands e and posts every resulting
// request on its own goroutine. cb, which may be nil, is notified once per
// request. If domain resolution fails the logical domain is used instead.
// Send never blocks on the network. Requests outlive ctx's cancellation and
// deadline, keeping its values; WithTimeout bounds each one.
func (d *Dispatcher) Send(ctx context.Context, e event.Event, ids identity.UserIdentifiers, logicalDomain string, cb Callback) {
	if cb == nil {
		cb = CallbackFuncs{}
	}
	notify := func(err error) {
		if err != nil {
			cb.OnFailure(err)
			return
		}
		cb.OnSuccess()
	}
	d.start(ctx, e, ids, logicalDomain, notify, nil)
}

// SendAndWait is Send with a single aggregated outcome. It blocks until every
// request has completed or ctx is done.
func (d *Dispatcher) SendAndWait(ctx context.Context, e event.Event, ids identity.UserIdentifiers, logicalDomain string) (*Result, error) {
	done := make(chan *Result, 1)
	d.start(ctx, e, ids, logicalDomain, nil, func(r *Result) { done <- r })

	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting sends and waits for in-flight requests.
func (d *Dispatcher) Close() error {
	d.closed.Store(true)
	d.wg.Wait()
	return nil
}

// Wait blocks until every in-flight request has completed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) start(ctx context.Context, e event.Event, ids identity.UserIdentifiers, logicalDomain string, notify func(error), finished func(*Result)) {
	dispatchID := uuid.NewString()

	if d.closed.Load() {
		err := errors.NewWithComponent(errors.OpSend, "dispatch", ErrClosed)
		if notify != nil {
			notify(err)
		}
		if finished != nil {
			finished(&Result{DispatchID: dispatchID, Errors: []error{err}})
		}
		return
	}

	// Held until dispatch has registered its requests so Close also waits for resolution.
	d.wg.Add(1)
	d.domains.Resolve(ctx, logicalDomain,
		func(domain string) {
			defer d.wg.Done()
			d.dispatch(ctx, dispatchID, e, ids, domain, notify, finished)
		},
		func(err error) {
			defer d.wg.Done()
			d.logger.LogError(ctx, err, "domain resolution failed, using logical domain",
				slog.String("dispatch_id", dispatchID),
				slog.String("domain", logicalDomain))
			d.dispatch(ctx, dispatchID, e, ids, logicalDomain, notify, finished)
		},
	)
}

func (d *Dispatcher) dispatch(ctx context.Context, dispatchID string, e event.Event, ids identity.UserIdentifiers, domain string, notify func(error), finished func(*Result)) {
	descriptors := d.builder.Expand(e, ids)
	name := "unknown"
	if e != nil {
		name = e.Name()
	}
	d.recorder.RecordSend(ctx, name, len(descriptors))

	result := &Result{DispatchID: dispatchID, Domain: domain, Requests: len(descriptors)}
	if len(descriptors) == 0 {
		if finished != nil {
			finished(result)
		}
		return
	}

	ctx, sendSpan := d.spans.StartSendSpan(context.WithoutCancel(ctx), name, dispatchID)
	evs := d.vendorIDs(ctx, ids)
	visitorID, _ := ids.VisitorID()

	var (
		mu      sync.Mutex
		pending sync.WaitGroup
	)
	record := func(err error) {
		mu.Lock()
		result.record(err)
		mu.Unlock()
		if notify != nil {
			notify(err)
		}
	}

	for _, desc := range descriptors {
		requestURL, err := d.buildURL(desc, domain, visitorID, evs)
		if err != nil {
			d.logger.LogError(ctx, err, "could not encode request metadata",
				slog.String("dispatch_id", dispatchID),
				slog.String("type", string(desc.Type)))
			d.recorder.RecordDescriptor(ctx, string(desc.Type), 0, err)
			record(err)
			continue
		}

		pending.Add(1)
		d.wg.Add(1)
		go func(desc event.Descriptor) {
			defer d.wg.Done()
			defer pending.Done()
			record(d.post(ctx, dispatchID, desc.Type, requestURL))
		}(desc)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		pending.Wait()
		d.spans.EndSpanWithError(sendSpan, result.Err())
		if finished != nil {
			finished(result)
		}
	}()
}

func (d *Dispatcher) post(ctx context.Context, dispatchID string, typeCode event.TypeCode, requestURL string) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	ctx, span := d.spans.StartDescriptorSpan(ctx, string(typeCode))
	logger := d.logger.WithOperation("post")
	start := time.Now()

	logger.Log(ctx, slog.Level(logging.LevelTrace), "sending request",
		slog.String("dispatch_id", dispatchID),
		slog.String("url", requestURL))

	err := d.exchange(ctx, requestURL)
	duration := time.Since(start)

	d.recorder.RecordDescriptor(ctx, string(typeCode), duration, err)
	d.spans.EndSpanWithError(span, err)

	if err != nil {
		logger.Warn("request failed",
			slog.String("dispatch_id", dispatchID),
			slog.String("type", string(typeCode)),
			slog.String("error", err.Error()))
		return err
	}
	logger.Debug("request sent",
		slog.String("dispatch_id", dispatchID),
		slog.String("type", string(typeCode)),
		slog.Duration("duration", duration))
	return nil
}

func (d *Dispatcher) exchange(ctx context.Context, requestURL string) error {
	resp, err := d.transport.Post(ctx, requestURL)
	if err != nil {
		var te *errors.TrackError
		if stderrors.As(err, &te) {
			return err
		}
		return errors.NewTransportError(errors.OpSend, err)
	}
	if !resp.Success() {
		return errors.NewUnsuccessfulResponseError(errors.OpSend, resp.StatusCode, string(resp.Body))
	}
	return nil
}

// vendorIDs encodes the evs parameter. An encoding failure degrades to an empty list.
func (d *Dispatcher) vendorIDs(ctx context.Context, ids identity.UserIdentifiers) string {
	raw, err := d.marshal(identity.VendorIDs(ids))
	if err != nil {
		d.logger.LogError(ctx, errors.NewSerializationError(errors.OpEncode, err),
			"could not encode external vendor ids, sending an empty list")
		return "[]"
	}
	return string(raw)
}

func (d *Dispatcher) buildURL(desc event.Descriptor, domain, visitorID, evs string) (string, error) {
	meta, err := d.marshal(desc.Metadata)
	if err != nil {
		return "", errors.NewSerializationError(errors.OpEncode, fmt.Errorf("metadata: %w", err))
	}

	q := newQuery()
	q.add("v", paramVersion)
	q.add("lt", paramLoggerType)
	q.add("tag", paramTag)
	q.add("evs", evs)
	q.add("c", domain)
	q.add("t", string(desc.Type))
	q.add("u", visitorID)
	q.add("m", string(meta))
	for _, k := range sortedKeys(desc.Extra) {
		q.addNonEmpty(k, desc.Extra[k])
	}
	return d.eventsURL + "?" + q.encode(), nil
}

// query keeps parameters in insertion order, unlike url.Values.
type query struct {
	parts []string
}

func newQuery() *query { return &query{} }

func (q *query) add(key, value string) {
	q.parts = append(q.parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
}

func (q *query) addNonEmpty(key, value string) {
	if value != "" {
		q.add(key, value)
	}
}

func (q *query) encode() string { return strings.Join(q.parts, "&") }
