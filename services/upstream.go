// Package services holds clients for external systems the gateway talks to.
package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"modelrules/observability"
)

// Upstream forwards prepared requests to a provider endpoint.
type Upstream interface {
	Post(ctx context.Context, url string, header http.Header, body []byte) (*http.Response, error)
}

// UpstreamClient sends proxied requests to provider APIs. The client carries
// no timeout: completions can stream for minutes and the caller's context
// governs cancellation.
type UpstreamClient struct {
	httpClient *http.Client
}

// NewUpstreamClient creates a new UpstreamClient instance
func NewUpstreamClient() *UpstreamClient {
	return &UpstreamClient{
		httpClient: &http.Client{},
	}
}

// Post sends body to url with exactly the given headers and returns the raw
// response. The response body is not read; the caller owns it, status and
// payload included, whatever the provider returned.
func (s *UpstreamClient) Post(ctx context.Context, url string, header http.Header, body []byte) (*http.Response, error) {
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header = header

	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstreamError("transport")
		observability.Error("upstream request failed", "url", url, "error", err)
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	timer.ObserveUpstream(strconv.Itoa(resp.StatusCode))
	return resp, nil
}
