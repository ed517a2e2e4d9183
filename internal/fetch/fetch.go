// Package fetch is the HTTP transport for remote file reads: metadata-only
// requests plus closed and open-ended byte-range requests. It is the only
// package that talks to the network; everything above it is injectable for
// testing through the Fetcher interface.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/runsascoded/awair-sub000/internal/metrics"
)

var ErrNoContentLength = errors.New("response missing Content-Length")

// Meta is the result of a metadata-only request.
type Meta struct {
	Size         int64
	LastModified time.Time
}

// Fetcher is the fetch capability consumed by the remote file cache. Range
// end offsets are exclusive.
type Fetcher interface {
	Head(ctx context.Context) (Meta, error)
	Range(ctx context.Context, start, end int64) ([]byte, error)
	RangeFrom(ctx context.Context, start int64) ([]byte, error)
}

type Options struct {
	Timeout           time.Duration // per-request timeout (default 30s)
	MaxRequestsPerSec float64       // 0 = unlimited
	Breaker           gobreaker.Settings
}

func DefaultOptions() Options {
	return Options{
		Timeout: 30 * time.Second,
		Breaker: gobreaker.Settings{Name: "fetch"},
	}
}

// HTTPFetcher fetches one URL over plain HTTP. A circuit breaker wraps every
// request; an open breaker surfaces as a transport error, it is not a retry
// mechanism.
type HTTPFetcher struct {
	url       string
	client    *http.Client
	transport *http.Transport
	breaker   *gobreaker.CircuitBreaker
	limiter   *rate.Limiter
}

func NewHTTPFetcher(url string, opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Breaker.Name == "" {
		opts.Breaker.Name = "fetch"
	}

	transport := &http.Transport{
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}

	var limiter *rate.Limiter
	if opts.MaxRequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.MaxRequestsPerSec), 1)
	}

	return &HTTPFetcher{
		url: url,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		transport: transport,
		breaker:   gobreaker.NewCircuitBreaker(opts.Breaker),
		limiter:   limiter,
	}
}

func (f *HTTPFetcher) Close() error {
	f.transport.CloseIdleConnections()
	f.client.CloseIdleConnections()
	return nil
}

func (f *HTTPFetcher) Head(ctx context.Context) (Meta, error) {
	result, err := f.do(ctx, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.url, nil)
		if err != nil {
			return Meta{}, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return Meta{}, fmt.Errorf("metadata request failed: %w", err)
		}
		defer resp.Body.Close()
		metrics.MetadataRequests.Inc()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return Meta{}, fmt.Errorf("metadata request returned %d", resp.StatusCode)
		}
		if resp.ContentLength < 0 {
			return Meta{}, ErrNoContentLength
		}

		meta := Meta{Size: resp.ContentLength}
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				meta.LastModified = t
			}
		}
		return meta, nil
	})
	if err != nil {
		return Meta{}, err
	}
	return result.(Meta), nil
}

func (f *HTTPFetcher) Range(ctx context.Context, start, end int64) ([]byte, error) {
	if start >= end {
		return nil, fmt.Errorf("invalid range [%d, %d)", start, end)
	}

	body, err := f.rangeRequest(ctx, fmt.Sprintf("bytes=%d-%d", start, end-1), "closed")
	if err != nil {
		return nil, err
	}
	if int64(len(body)) != end-start {
		return nil, fmt.Errorf("range [%d, %d) returned %d bytes, want %d", start, end, len(body), end-start)
	}
	return body, nil
}

func (f *HTTPFetcher) RangeFrom(ctx context.Context, start int64) ([]byte, error) {
	return f.rangeRequest(ctx, fmt.Sprintf("bytes=%d-", start), "open")
}

func (f *HTTPFetcher) rangeRequest(ctx context.Context, rangeHeader, kind string) ([]byte, error) {
	result, err := f.do(ctx, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Range", rangeHeader)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("range request failed: %w", err)
		}
		defer resp.Body.Close()
		metrics.RangeRequests.WithLabelValues(kind).Inc()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("range request returned %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read range body: %w", err)
		}
		metrics.FetchedBytes.Add(float64(len(body)))
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (f *HTTPFetcher) do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return f.breaker.Execute(fn)
}
