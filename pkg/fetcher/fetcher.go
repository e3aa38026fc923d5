// Package fetcher performs single JSON requests against the detection API and
// normalizes every transport failure into a typed *Error.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Second

	// Error bodies are truncated to this many bytes in Error.Detail.
	maxDetailBytes = 256

	// Responses larger than this are rejected.
	maxBodyBytes = 32 << 20
)

// Kind classifies a failed request.
type Kind string

const (
	// KindNetwork means the request never reached the server.
	KindNetwork Kind = "network"
	// KindHTTPStatus means the server answered with a non-2xx status.
	KindHTTPStatus Kind = "http_status"
	// KindDecode means the response body was not the expected JSON.
	KindDecode Kind = "decode"
)

// Error is the only error type returned by Client.
type Error struct {
	Kind     Kind   `json:"kind"`
	Status   int    `json:"status,omitempty"`
	Detail   string `json:"detail"`
	Resource string `json:"resource,omitempty"`
}

func (e *Error) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("%s: %s %d: %s", e.Resource, e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.Resource, e.Kind, e.Detail)
}

// AsError extracts a *Error from err. Errors that did not come from this
// package are reported as network failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: KindNetwork, Detail: err.Error()}
}

// Resource describes one request against the API.
type Resource struct {
	Name   string
	Method string
	Path   string
	Body   interface{}
}

// Client issues requests relative to a base URL. It never retries;
// retry policy belongs to the poller.
type Client struct {
	baseURL string
	http    *http.Client
	maxBody int64
}

// NewClient creates a client for the API rooted at baseURL.
// A zero timeout selects the default of 10s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		maxBody: maxBodyBytes,
	}
}

// BaseURL returns the API root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs the request and decodes the JSON response into out.
// out may be nil when the response body is not needed.
// Any failure is returned as *Error.
func (c *Client) Do(ctx context.Context, res Resource, out interface{}) error {
	method := res.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if res.Body != nil {
		payload, err := json.Marshal(res.Body)
		if err != nil {
			return &Error{Kind: KindDecode, Detail: fmt.Sprintf("encode request: %v", err), Resource: res.Name}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+res.Path, body)
	if err != nil {
		return &Error{Kind: KindNetwork, Detail: fmt.Sprintf("build request: %v", err), Resource: res.Name}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Detail: err.Error(), Resource: res.Name}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return &Error{Kind: KindNetwork, Detail: fmt.Sprintf("read body: %v", err), Resource: res.Name}
	}
	if int64(len(data)) > c.maxBody {
		return &Error{Kind: KindDecode, Status: resp.StatusCode, Detail: fmt.Sprintf("response body exceeds %d bytes", c.maxBody), Resource: res.Name}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Kind:     KindHTTPStatus,
			Status:   resp.StatusCode,
			Detail:   truncate(strings.TrimSpace(string(data)), maxDetailBytes),
			Resource: res.Name,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindDecode, Detail: err.Error(), Resource: res.Name}
	}
	return nil
}

// JSON returns a fetch function decoding res into a fresh T on every call.
// Pollers are built from these.
func JSON[T any](c *Client, res Resource) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		var out T
		if err := c.Do(ctx, res, &out); err != nil {
			var zero T
			return zero, err
		}
		return out, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
