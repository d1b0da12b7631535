// Package httputil narrows net/http to the surface the event delivery
// code depends on, so webhook behavior can be tested against canned
// responses without a listening server.
package httputil

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPClient is the single-method request surface used by delivery code.
// *http.Client satisfies it directly.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewClientWithTimeout returns a production client with an overall
// per-request deadline covering connect, redirects and body read.
func NewClientWithTimeout(timeout time.Duration) HTTPClient {
	return &http.Client{Timeout: timeout}
}

// MockResponse is one canned reply for MockHTTPClient.
type MockResponse struct {
	StatusCode int
	Body       string
	Err        error
}

// MockHTTPClient replays queued responses in order and records every
// request it sees, including a copy of the request body. Once the queue
// is exhausted it answers 200 with an empty body.
type MockHTTPClient struct {
	mu        sync.Mutex
	responses []MockResponse
	next      int
	requests  []*http.Request
	bodies    []string
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// QueueResponse appends a canned reply. Returns the client for chaining.
func (m *MockHTTPClient) QueueResponse(statusCode int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{StatusCode: statusCode, Body: body})
	return m
}

// QueueError appends a transport-level failure.
func (m *MockHTTPClient) QueueError(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{Err: err})
	return m
}

// Do records req, captures its body and returns the next queued reply.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	var body string
	if req.Body != nil {
		raw, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err == nil {
			body = string(raw)
		}
	}
	m.bodies = append(m.bodies, body)

	if m.next < len(m.responses) {
		resp := m.responses[m.next]
		m.next++
		if resp.Err != nil {
			return nil, resp.Err
		}
		return &http.Response{
			StatusCode: resp.StatusCode,
			Body:       io.NopCloser(strings.NewReader(resp.Body)),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	}

	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// RequestCount returns how many requests Do has seen.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Request returns the nth recorded request, or nil if out of range.
func (m *MockHTTPClient) Request(n int) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.requests) {
		return nil
	}
	return m.requests[n]
}

// RequestBody returns the captured body of the nth recorded request.
func (m *MockHTTPClient) RequestBody(n int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.bodies) {
		return ""
	}
	return m.bodies[n]
}
