package resolver

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trackErrors "github.com/c0deZ3R0/go-track-kit/errors"
	"github.com/c0deZ3R0/go-track-kit/logging"
	"github.com/c0deZ3R0/go-track-kit/transport"
)

const tagScript = `(function(){window.__attn={d:'x'};var c='acme';var h='https://'+c;var u='acme-eu.attn.tv';n.c='acme-eu.attn.tv'})();`

// fakeGetter returns a canned response and counts calls. If gate is set,
// every call blocks until it is closed.
type fakeGetter struct {
	calls atomic.Int32
	resp  *transport.Response
	err   error
	gate  chan struct{}
	urls  chan string
}

func (f *fakeGetter) Get(ctx context.Context, url string) (*transport.Response, error) {
	f.calls.Add(1)
	if f.urls != nil {
		f.urls <- url
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.resp, f.err
}

func okGetter(body string) *fakeGetter {
	return &fakeGetter{resp: &transport.Response{StatusCode: 200, Body: []byte(body)}}
}

func newResolver(g transport.Getter, opts ...Option) *DomainResolver {
	return New(g, append([]Option{WithLogger(logging.Discard())}, opts...)...)
}

func TestParseDomain(t *testing.T) {
	tests := []struct {
		name string
		resp *transport.Response
		want string
		ok   bool
	}{
		{"match", &transport.Response{StatusCode: 200, Body: []byte(`x='acme-eu.attn.tv'`)}, "acme-eu", true},
		{"first match wins", &transport.Response{StatusCode: 200, Body: []byte(`a='one.attn.tv';b='two.attn.tv'`)}, "one", true},
		{"nil response", nil, "", false},
		{"non-200", &transport.Response{StatusCode: 404, Body: []byte(`x='acme.attn.tv'`)}, "", false},
		{"201 is not 200", &transport.Response{StatusCode: 201, Body: []byte(`x='acme.attn.tv'`)}, "", false},
		{"empty body", &transport.Response{StatusCode: 200}, "", false},
		{"no match", &transport.Response{StatusCode: 200, Body: []byte(`console.log('hi')`)}, "", false},
		{"wrong host", &transport.Response{StatusCode: 200, Body: []byte(`x='acme.example.com'`)}, "", false},
		{"upper case not matched", &transport.Response{StatusCode: 200, Body: []byte(`x='ACME.attn.tv'`)}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDomain(tt.resp)
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, trackErrors.IsDomainResolution(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveSync_FetchesAndCaches(t *testing.T) {
	g := okGetter(tagScript)
	g.urls = make(chan string, 4)
	r := newResolver(g)

	domain, err := r.ResolveSync(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme-eu", domain)
	assert.Equal(t, "https://cdn.attn.tv/acme/dtag.js", <-g.urls)

	cached, ok := r.Cached("acme")
	require.True(t, ok)
	assert.Equal(t, "acme-eu", cached)

	domain, err = r.ResolveSync(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme-eu", domain)
	assert.Equal(t, int32(1), g.calls.Load())
}

func TestResolve_CachedNeverCallsTransport(t *testing.T) {
	g := okGetter(tagScript)
	r := newResolver(g)
	r.cached.Store(&cacheEntry{logical: "acme", domain: "cached-domain"})

	var got string
	r.Resolve(context.Background(), "acme", func(d string) { got = d }, func(err error) {
		t.Errorf("unexpected failure: %v", err)
	})

	// Delivered before Resolve returned.
	assert.Equal(t, "cached-domain", got)
	assert.Equal(t, int32(0), g.calls.Load())
}

func TestResolve_AsyncSuccess(t *testing.T) {
	r := newResolver(okGetter(tagScript))

	done := make(chan string, 1)
	r.Resolve(context.Background(), "acme", func(d string) { done <- d }, func(err error) {
		t.Errorf("unexpected failure: %v", err)
	})

	select {
	case d := <-done:
		assert.Equal(t, "acme-eu", d)
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestResolve_FailureIsNotCached(t *testing.T) {
	tests := []struct {
		name string
		g    *fakeGetter
	}{
		{"transport error", &fakeGetter{err: errors.New("connection refused")}},
		{"non-200", &fakeGetter{resp: &transport.Response{StatusCode: 500, Body: []byte(tagScript)}}},
		{"empty body", &fakeGetter{resp: &transport.Response{StatusCode: 200}}},
		{"no match", okGetter("nothing here")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(tt.g)

			failed := make(chan error, 1)
			r.Resolve(context.Background(), "acme", func(d string) {
				t.Errorf("unexpected success: %s", d)
			}, func(err error) { failed <- err })

			select {
			case err := <-failed:
				assert.True(t, trackErrors.IsDomainResolution(err))
			case <-time.After(2 * time.Second):
				t.Fatal("failure callback not invoked")
			}

			_, ok := r.Cached("acme")
			assert.False(t, ok)

			// The next call tries again.
			_, _ = r.ResolveSync(context.Background(), "acme")
			assert.Equal(t, int32(2), tt.g.calls.Load())
		})
	}
}

func TestResolve_NilCallbacks(t *testing.T) {
	r := newResolver(&fakeGetter{err: errors.New("down")})
	r.Resolve(context.Background(), "acme", nil, nil)
	r.Wait()

	r = newResolver(okGetter(tagScript))
	r.Resolve(context.Background(), "acme", nil, nil)
	r.Wait()
	_, ok := r.Cached("acme")
	assert.True(t, ok)
}

func TestResolve_ConcurrentCallersShareOneFetch(t *testing.T) {
	g := okGetter(tagScript)
	g.gate = make(chan struct{})
	g.urls = make(chan string, 16)
	r := newResolver(g)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		r.Resolve(context.Background(), "acme", func(d string) {
			results <- d
			wg.Done()
		}, func(err error) {
			t.Errorf("unexpected failure: %v", err)
			wg.Done()
		})
	}

	<-g.urls // first fetch started
	time.Sleep(20 * time.Millisecond)
	close(g.gate)
	wg.Wait()
	close(results)

	count := 0
	for d := range results {
		assert.Equal(t, "acme-eu", d)
		count++
	}
	assert.Equal(t, callers, count, "every caller gets its own callback")
	assert.Equal(t, int32(1), g.calls.Load())
}

func TestResolveSync_CallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	g := okGetter(tagScript)
	g.gate = make(chan struct{})
	r := newResolver(g)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := r.ResolveSync(ctx, "acme")
		errCh <- err
	}()

	for g.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	err := <-errCh
	assert.True(t, trackErrors.IsDomainResolution(err))
	assert.ErrorIs(t, err, context.Canceled)

	close(g.gate)
	domain, err := r.ResolveSync(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme-eu", domain)
}

func TestInvalidate(t *testing.T) {
	g := okGetter(tagScript)
	r := newResolver(g)

	_, err := r.ResolveSync(context.Background(), "acme")
	require.NoError(t, err)

	r.Invalidate()
	_, ok := r.Cached("acme")
	assert.False(t, ok)

	_, err = r.ResolveSync(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int32(2), g.calls.Load())
}

func TestInvalidate_DuringFetchDropsResult(t *testing.T) {
	g := okGetter(tagScript)
	g.gate = make(chan struct{})
	r := newResolver(g)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.ResolveSync(context.Background(), "acme")
		errCh <- err
	}()
	for g.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	r.Invalidate()
	close(g.gate)
	require.NoError(t, <-errCh)

	_, ok := r.Cached("acme")
	assert.False(t, ok, "a fetch started before Invalidate must not repopulate the cache")
}

// tenantGetter answers each tag URL with a script naming "<tenant>-geo".
type tenantGetter struct {
	calls atomic.Int32
}

func (g *tenantGetter) Get(_ context.Context, url string) (*transport.Response, error) {
	g.calls.Add(1)
	tenant := strings.TrimSuffix(strings.TrimPrefix(url, "https://cdn.attn.tv/"), "/dtag.js")
	return &transport.Response{StatusCode: 200, Body: []byte("n.c='" + tenant + "-geo.attn.tv'")}, nil
}

func TestResolve_CacheIsKeyedByLogicalDomain(t *testing.T) {
	g := &tenantGetter{}
	r := newResolver(g)
	ctx := context.Background()

	a, err := r.ResolveSync(ctx, "tenant-a")
	require.NoError(t, err)
	b, err := r.ResolveSync(ctx, "tenant-b")
	require.NoError(t, err)

	assert.Equal(t, "tenant-a-geo", a)
	assert.Equal(t, "tenant-b-geo", b)
	assert.Equal(t, int32(2), g.calls.Load())

	_, ok := r.Cached("tenant-a")
	assert.False(t, ok)
	cached, ok := r.Cached("tenant-b")
	require.True(t, ok)
	assert.Equal(t, "tenant-b-geo", cached)

	var got string
	r.Resolve(ctx, "tenant-a", func(d string) { got = d }, nil)
	r.Wait()
	assert.Equal(t, "tenant-a-geo", got)
	assert.Equal(t, int32(3), g.calls.Load())
}

func TestResolveSync_LogsFetchOperation(t *testing.T) {
	var buf bytes.Buffer
	r := New(okGetter(tagScript), WithLogger(logging.NewLoggerTo(&buf, logging.Config{Level: "debug", Format: "text"})))

	_, err := r.ResolveSync(context.Background(), "acme")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "component=resolver")
	assert.Contains(t, buf.String(), "operation=fetch_tag")
}

func TestWithTagURLFormat(t *testing.T) {
	g := okGetter(tagScript)
	g.urls = make(chan string, 1)
	r := newResolver(g, WithTagURLFormat("http://localhost:9999/%s/tag.js"))

	_, err := r.ResolveSync(context.Background(), "shop")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999/shop/tag.js", <-g.urls)
}

