package executor

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// compositeReadCloser chains a decoder's Close (if any) with the
// underlying transport body's Close, so callers only ever need to close
// the outer reader.
type compositeReadCloser struct {
	io.Reader
	closers []func() error
}

func (c *compositeReadCloser) Close() error {
	var first error
	for _, close := range c.closers {
		if err := close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// decodeResponseBody wraps body in the decompressor named by
// contentEncoding, chaining multiple codecs if the header lists more than
// one (as some CDNs and providers do). An empty or "identity" entry is
// skipped; an unrecognized encoding is an error.
func decodeResponseBody(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	if body == nil {
		return nil, fmt.Errorf("response body is nil")
	}
	if contentEncoding == "" {
		return body, nil
	}
	current := body
	for _, raw := range strings.Split(contentEncoding, ",") {
		encoding := strings.TrimSpace(strings.ToLower(raw))
		switch encoding {
		case "", "identity":
			continue
		case "gzip":
			r, err := gzip.NewReader(current)
			if err != nil {
				_ = current.Close()
				return nil, fmt.Errorf("failed to create gzip reader: %w", err)
			}
			prev := current
			current = &compositeReadCloser{Reader: r, closers: []func() error{r.Close, prev.Close}}
		case "deflate":
			r := flate.NewReader(current)
			prev := current
			current = &compositeReadCloser{Reader: r, closers: []func() error{r.Close, prev.Close}}
		case "br":
			prev := current
			current = &compositeReadCloser{Reader: brotli.NewReader(current), closers: []func() error{prev.Close}}
		case "zstd":
			r, err := zstd.NewReader(current)
			if err != nil {
				_ = current.Close()
				return nil, fmt.Errorf("failed to create zstd reader: %w", err)
			}
			prev := current
			current = &compositeReadCloser{Reader: r.IOReadCloser(), closers: []func() error{r.IOReadCloser().Close, prev.Close}}
		default:
			return nil, fmt.Errorf("unsupported content-encoding %q", encoding)
		}
	}
	return current, nil
}
