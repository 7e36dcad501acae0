package stream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// Request describes a single outbound call to the streaming backend.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the backend's reply. Non-2xx statuses are normal values; the
// services decide how to treat them.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Caller issues one blocking HTTP call to the streaming backend. It holds no
// state between calls and performs no retries; only genuine transport or
// body-read failures return an error.
type Caller interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// DefaultTimeout bounds each upstream call so a hung backend cannot exhaust
// the caller's concurrency budget.
const DefaultTimeout = 10 * time.Second

// HTTPCaller is the production Caller backed by net/http.
type HTTPCaller struct {
	client *http.Client
}

// NewHTTPCaller wraps the provided client. A nil client gets a default with
// DefaultTimeout; a caller-supplied client keeps its own timeout settings.
func NewHTTPCaller(client *http.Client) *HTTPCaller {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPCaller{client: client}
}

// Do performs the request and drains the response body. The response is
// returned for any HTTP status; errors mean the exchange itself failed.
func (c *HTTPCaller) Do(ctx context.Context, req Request) (Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, err
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: payload}, nil
}
