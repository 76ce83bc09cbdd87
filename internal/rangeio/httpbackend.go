package rangeio

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// HTTPBackend implements Backend over plain HTTP range requests. It treats
// path as a full URL, which suits the direct-URL and presigned-URL cases;
// callers fronting a cloud SDK (S3, Azure Blob, GCS) supply their own
// Backend instead.
type HTTPBackend struct {
	client  *http.Client
	headers http.Header
}

// HTTPBackendOption configures an HTTPBackend.
type HTTPBackendOption func(*HTTPBackend)

// WithHTTPClient sets the http.Client used for range requests.
func WithHTTPClient(client *http.Client) HTTPBackendOption {
	return func(b *HTTPBackend) {
		b.client = client
	}
}

// WithHTTPHeader sets a single header sent on every request (e.g. Authorization).
func WithHTTPHeader(key, value string) HTTPBackendOption {
	return func(b *HTTPBackend) {
		if b.headers == nil {
			b.headers = make(http.Header)
		}
		b.headers.Set(key, value)
	}
}

// NewHTTPBackend creates a Backend that issues byte-range GETs over HTTP.
func NewHTTPBackend(opts ...HTTPBackendOption) *HTTPBackend {
	b := &HTTPBackend{client: http.DefaultClient}
	for _, opt := range opts {
		opt(b)
	}
	if b.client == nil {
		b.client = http.DefaultClient
	}
	return b
}

// ReadRange implements Backend.
func (b *HTTPBackend) ReadRange(path string, position int64, dst []byte, etag string) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	end := position + int64(len(dst)) - 1
	req, err := b.newRequest(path)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", position, end))
	if etag != "" && etag != "*" {
		req.Header.Set("If-Match", etag)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		// ok
	case http.StatusNotFound:
		return 0, fmt.Errorf("%w: status 404", ErrNotFound)
	case http.StatusRequestedRangeNotSatisfiable:
		return 0, nil
	case http.StatusPreconditionFailed:
		return 0, fmt.Errorf("%w: object changed since open (etag mismatch)", ErrIO)
	default:
		return 0, fmt.Errorf("%w: range request failed: %s", ErrIO, resp.Status)
	}

	n, err := io.ReadFull(resp.Body, dst)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return n, nil
}

// ProbeMetadata issues a small ranged GET to determine an object's size and ETag
// without requiring a separate HEAD round-trip (some presigned URLs reject HEAD).
func (b *HTTPBackend) ProbeMetadata(path string) (contentLength int64, etag string, err error) {
	req, err := b.newRequest(path)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		size, perr := parseContentRangeSize(resp.Header.Get("Content-Range"))
		if perr != nil {
			return 0, "", perr
		}
		return size, resp.Header.Get("ETag"), nil
	case http.StatusOK:
		return resp.ContentLength, resp.Header.Get("ETag"), nil
	case http.StatusNotFound:
		return 0, "", fmt.Errorf("%w: status 404", ErrNotFound)
	default:
		return 0, "", fmt.Errorf("%w: probe failed: %s", ErrIO, resp.Status)
	}
}

func (b *HTTPBackend) newRequest(path string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	for key, values := range b.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	return req, nil
}

func parseContentRangeSize(value string) (int64, error) {
	var start, end, size int64
	n, err := fmt.Sscanf(value, "bytes %d-%d/%d", &start, &end, &size)
	if err != nil || n != 3 {
		return 0, fmt.Errorf("%w: invalid Content-Range %q", ErrIO, value)
	}
	return size, nil
}
