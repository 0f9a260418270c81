// internal/common/http/client.go
package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// Correlation headers passed from the console through the relay to the
// backend.
const (
	RequestIDHeader = "X-Request-ID"
	SessionIDHeader = "X-Session-ID"
)

// Client posts JSON documents. A zero timeout means no client-side deadline;
// callers bound the call through ctx instead.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: "insurebot-chat",
	}
}

// NewClientWith wraps an existing *http.Client, e.g. one from httptest.
func NewClientWith(hc *http.Client) *Client {
	return &Client{httpClient: hc, userAgent: "insurebot-chat"}
}

// PostJSON sends body to url with a JSON content type plus any extra
// headers. The caller owns the response body.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

// IsSuccess reports a 2xx status.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// CorrelationHeader builds the header set for one turn. Empty ids are
// skipped.
func CorrelationHeader(sessionID, requestID string) http.Header {
	h := http.Header{}
	if sessionID != "" {
		h.Set(SessionIDHeader, sessionID)
	}
	if requestID != "" {
		h.Set(RequestIDHeader, requestID)
	}
	return h
}
