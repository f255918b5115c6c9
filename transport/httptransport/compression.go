package httptransport

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// errDecompressedTooLarge is returned when an inflated body exceeds Limits.MaxResponseBytes.
var errDecompressedTooLarge = errors.New("decompressed data exceeds maximum size limit")

// maxDecompressedReader wraps an io.Reader to enforce decompressed size limits
type maxDecompressedReader struct {
	reader   io.Reader
	limit    int64
	consumed int64
}

func (r *maxDecompressedReader) Read(p []byte) (int, error) {
	if r.consumed >= r.limit {
		// At the limit: one more byte means the body is too large.
		var peek [1]byte
		n, err := r.reader.Read(peek[:])
		if n > 0 {
			return 0, errDecompressedTooLarge
		}
		if err == nil {
			return 0, nil
		}
		return 0, err
	}

	maxRead := r.limit - r.consumed
	if int64(len(p)) > maxRead {
		p = p[:maxRead]
	}

	n, err := r.reader.Read(p)
	r.consumed += int64(n)
	return n, err
}

// readBody reads resp's body within limit, inflating it when the server sent
// gzip. Only an empty or "gzip" Content-Encoding is accepted.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	encoding := strings.TrimSpace(strings.ToLower(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return readLimited(resp.Body, limit)
	case "gzip":
	default:
		return nil, fmt.Errorf("unsupported content encoding: %s (only gzip is supported)", encoding)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("invalid gzip data: %w", err)
	}
	defer gz.Close()

	if limit <= 0 {
		return io.ReadAll(gz)
	}
	return io.ReadAll(&maxDecompressedReader{reader: gz, limit: limit})
}
