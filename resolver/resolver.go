// Package resolver maps a tenant's logical domain to its geo-adjusted
// collection domain by reading the tenant's tag script from the CDN.
package resolver

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/c0deZ3R0/go-track-kit/errors"
	"github.com/c0deZ3R0/go-track-kit/logging"
	"github.com/c0deZ3R0/go-track-kit/observability"
	"github.com/c0deZ3R0/go-track-kit/transport"
)

// DefaultTagURLFormat is expanded with the logical domain.
const DefaultTagURLFormat = "https://cdn.attn.tv/%s/dtag.js"

// domainPattern captures the token quoted before the collection host suffix.
var domainPattern = regexp.MustCompile(`='([a-z0-9-]+)[.]attn[.]tv'`)

// DomainResolver resolves and caches the geo-adjusted domain. The cache holds
// the result for one logical domain at a time; resolving a different logical
// domain fetches again and replaces it.
//
// Concurrent resolutions of the same logical domain share one fetch.
type DomainResolver struct {
	getter       transport.Getter
	tagURLFormat string
	logger       *logging.Logger
	recorder     observability.Recorder

	cached     atomic.Pointer[cacheEntry]
	generation atomic.Uint64
	group      singleflight.Group
	wg         sync.WaitGroup
}

type cacheEntry struct {
	logical string
	domain  string
}

// Option configures a DomainResolver.
type Option func(*DomainResolver)

// WithTagURLFormat overrides the discovery URL. It must contain one %s for the logical domain.
func WithTagURLFormat(format string) Option {
	return func(r *DomainResolver) { r.tagURLFormat = format }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *DomainResolver) { r.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec observability.Recorder) Option {
	return func(r *DomainResolver) { r.recorder = rec }
}

// New returns a DomainResolver fetching through getter.
func New(getter transport.Getter, opts ...Option) *DomainResolver {
	r := &DomainResolver{
		getter:       getter,
		tagURLFormat: DefaultTagURLFormat,
		logger:       logging.Default(),
		recorder:     observability.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("resolver")
	return r
}

// Cached returns the cached domain for logicalDomain, if any.
func (r *DomainResolver) Cached(logicalDomain string) (string, bool) {
	if e := r.cached.Load(); e != nil && e.logical == logicalDomain {
		return e.domain, true
	}
	return "", false
}

// Invalidate drops the cached domain so the next call fetches again.
// A fetch already in flight will not repopulate the cache.
func (r *DomainResolver) Invalidate() {
	r.generation.Add(1)
	r.cached.Store(nil)
	r.logger.Debug("domain cache invalidated")
}

// Resolve reports the geo-adjusted domain through onSuccess, or the cause of
// failure through onFailure. A cached domain is reported before Resolve
// returns, without any network call; otherwise the lookup runs on its own
// goroutine. Either callback may be nil.
func (r *DomainResolver) Resolve(ctx context.Context, logicalDomain string, onSuccess func(string), onFailure func(error)) {
	if domain, ok := r.Cached(logicalDomain); ok {
		r.recorder.RecordResolution(ctx, true, nil)
		if onSuccess != nil {
			onSuccess(domain)
		}
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		domain, err := r.ResolveSync(ctx, logicalDomain)
		if err != nil {
			if onFailure != nil {
				onFailure(err)
			}
			return
		}
		if onSuccess != nil {
			onSuccess(domain)
		}
	}()
}

// ResolveSync is the blocking form of Resolve.
func (r *DomainResolver) ResolveSync(ctx context.Context, logicalDomain string) (string, error) {
	if domain, ok := r.Cached(logicalDomain); ok {
		r.recorder.RecordResolution(ctx, true, nil)
		return domain, nil
	}

	gen := r.generation.Load()
	// The shared fetch must not die with whichever caller started it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(logicalDomain, func() (interface{}, error) {
		return r.fetch(fetchCtx, logicalDomain, gen)
	})

	select {
	case res := <-ch:
		r.recorder.RecordResolution(ctx, false, res.Err)
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", errors.NewDomainResolutionError(ctx.Err())
	}
}

// Wait blocks until every asynchronous Resolve has delivered its callback.
func (r *DomainResolver) Wait() {
	r.wg.Wait()
}

func (r *DomainResolver) fetch(ctx context.Context, logicalDomain string, gen uint64) (string, error) {
	url := fmt.Sprintf(r.tagURLFormat, logicalDomain)
	logger := r.logger.WithOperation("fetch_tag")
	start := time.Now()

	resp, err := r.getter.Get(ctx, url)
	if err != nil {
		logger.Warn("domain tag request failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return "", errors.NewDomainResolutionError(fmt.Errorf("error when calling the tag endpoint: %w", err))
	}

	domain, err := ParseDomain(resp)
	if err != nil {
		logger.Warn("could not resolve geo-adjusted domain",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return "", err
	}

	if r.generation.Load() == gen {
		r.cached.Store(&cacheEntry{logical: logicalDomain, domain: domain})
	}

	logger.Debug("resolved geo-adjusted domain",
		slog.String("logical_domain", logicalDomain),
		slog.String("domain", domain),
		slog.Duration("duration", time.Since(start)))
	return domain, nil
}

// ParseDomain extracts the geo-adjusted domain from a tag script response.
func ParseDomain(resp *transport.Response) (string, error) {
	if resp == nil {
		return "", errors.NewDomainResolutionError(stderrors.New("no response from the tag endpoint"))
	}
	if resp.StatusCode != 200 {
		return "", errors.NewDomainResolutionError(
			fmt.Errorf("tag endpoint returned invalid code: %d", resp.StatusCode)).
			WithMetadata("status_code", resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		return "", errors.NewDomainResolutionError(stderrors.New("tag endpoint returned an empty body"))
	}

	match := domainPattern.FindSubmatch(resp.Body)
	if len(match) != 2 || len(match[1]) == 0 {
		return "", errors.NewDomainResolutionError(stderrors.New("could not find the domain in the tag script"))
	}
	return string(match[1]), nil
}
