// Package transport defines the HTTP boundary consumed by the resolver and dispatcher.
package transport

import (
	"context"
)

// Response is the outcome of a completed HTTP exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// Success reports whether the status is 2xx.
func (r *Response) Success() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Getter issues GET requests.
type Getter interface {
	// Get fetches url. A non-nil error means the exchange did not complete;
	// any HTTP status, including errors, is returned as a Response.
	Get(ctx context.Context, url string) (*Response, error)
}

// Poster issues POST requests with an empty body; the payload travels in the URL.
type Poster interface {
	Post(ctx context.Context, url string) (*Response, error)
}

// Transport is the full HTTP boundary.
type Transport interface {
	Getter
	Poster
}

// Func adapts a function to Transport; method is "GET" or "POST".
type Func func(ctx context.Context, method, url string) (*Response, error)

func (f Func) Get(ctx context.Context, url string) (*Response, error) {
	return f(ctx, "GET", url)
}

func (f Func) Post(ctx context.Context, url string) (*Response, error) {
	return f(ctx, "POST", url)
}
