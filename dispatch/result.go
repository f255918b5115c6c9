package dispatch

import (
	stderrors "errors"
	"sort"
)

// Result aggregates the outcomes of every request produced by one send.
type Result struct {
	DispatchID string
	// Domain is the collection domain the requests were sent to.
	Domain    string
	Requests  int
	Succeeded int
	Errors    []error
}

func (r *Result) record(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err)
		return
	}
	r.Succeeded++
}

// Failed is the number of requests that did not succeed.
func (r *Result) Failed() int { return len(r.Errors) }

// Err joins every request error, or returns nil if all succeeded.
func (r *Result) Err() error {
	return stderrors.Join(r.Errors...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
