package gqltp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	auth "github.com/hanpama/graphgate/internal/auth"
	eventbus "github.com/hanpama/graphgate/internal/eventbus"
	events "github.com/hanpama/graphgate/internal/events"
	reqid "github.com/hanpama/graphgate/internal/reqid"
)

// Client is a GraphQL-over-HTTP transport with connection reuse and deadline
// propagation. The caller's Authorization header and request ID travel with
// every outbound request via the context.

type Client struct {
	opts *Options
}

func New(opts ...Option) *Client {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if o.HTTPClient == nil {
		o.HTTPClient = defaultHTTPClient()
	}
	return &Client{opts: o}
}

func defaultHTTPClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 16
	return &http.Client{Transport: tr}
}

// Request describes one GraphQL operation to send to a backend.
// Backend is the composed backend name used for observability; Batched and
// Keys describe the batch window the request serves, if any.
type Request struct {
	Backend       string
	URL           string
	Query         string
	OperationName string
	Variables     map[string]any

	// Headers are the backend's default request headers. Values carried by
	// the context, such as the caller's Authorization, override them.
	Headers map[string]string
	// Timeout caps this call regardless of the client default. Zero means
	// the client default applies.
	Timeout time.Duration

	OperationType string
	Batched       bool
	Keys          int
}

// Error is a GraphQL error as it appears on the wire.
type Error struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e Error) Error() string { return e.Message }

// Response is a decoded GraphQL response. Data and Errors may both be set
// when the backend produced a partial result.
type Response struct {
	Data       any
	Errors     []Error
	Extensions map[string]any
}

type envelope struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type wireResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     []Error         `json:"errors"`
	Extensions map[string]any  `json:"extensions"`
}

// Do posts the operation to req.URL and decodes the response envelope.
//
// A non-2xx status yields *UpstreamError. A malformed response body yields a
// decode error. GraphQL errors inside a 2xx response are returned in
// Response.Errors, not as a Go error, so callers can use partial data.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.URL == "" {
		return nil, ErrNoURL
	}

	body, err := json.Marshal(envelope{
		Query:         req.Query,
		OperationName: req.OperationName,
		Variables:     req.Variables,
	})
	if err != nil {
		return nil, fmt.Errorf("gqltp: encoding request for %s: %w", req.Backend, err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	} else if _, ok := ctx.Deadline(); !ok {
		if c.opts.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
			defer cancel()
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gqltp: building request for %s: %w", req.Backend, err)
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.opts.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if token, ok := auth.Authorization(ctx); ok {
		httpReq.Header.Set("Authorization", token)
	}
	if rid, ok := reqid.FromContext(ctx); ok {
		httpReq.Header.Set("X-Request-Id", rid)
	}

	callID := uuid.NewString()
	start := time.Now()
	eventbus.Publish(ctx, events.UpstreamCallStart{
		CallID:        callID,
		Backend:       req.Backend,
		URL:           req.URL,
		OperationType: req.OperationType,
		Batched:       req.Batched,
		Keys:          req.Keys,
	})

	resp, result, err := c.roundTrip(httpReq, req)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	eventbus.Publish(ctx, events.UpstreamCallFinish{
		CallID:        callID,
		Backend:       req.Backend,
		URL:           req.URL,
		OperationType: req.OperationType,
		Batched:       req.Batched,
		Keys:          req.Keys,
		Status:        status,
		Err:           err,
		Duration:      time.Since(start),
	})
	return result, err
}

func (c *Client) roundTrip(httpReq *http.Request, req Request) (*http.Response, *Response, error) {
	resp, err := c.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("gqltp: calling backend %s: %w", req.Backend, err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if c.opts.MaxResponseBytes > 0 {
		reader = io.LimitReader(resp.Body, c.opts.MaxResponseBytes)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return resp, nil, fmt.Errorf("gqltp: reading response from %s: %w", req.Backend, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil, &UpstreamError{
			Backend: req.Backend,
			Status:  resp.StatusCode,
			Body:    truncate(raw, 512),
		}
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return resp, nil, fmt.Errorf("gqltp: decoding response from %s: %w", req.Backend, err)
	}

	out := &Response{Errors: wire.Errors, Extensions: wire.Extensions}
	if len(wire.Data) > 0 && !bytes.Equal(wire.Data, []byte("null")) {
		if err := json.Unmarshal(wire.Data, &out.Data); err != nil {
			return resp, nil, fmt.Errorf("gqltp: decoding data from %s: %w", req.Backend, err)
		}
	}
	return resp, out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
