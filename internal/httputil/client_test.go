package httputil

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestNewClientWithTimeout(t *testing.T) {
	client := NewClientWithTimeout(5 * time.Second)

	hc, ok := client.(*http.Client)
	if !ok {
		t.Fatalf("expected *http.Client, got %T", client)
	}
	if hc.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", hc.Timeout)
	}
}

func TestMockClientReplaysQueue(t *testing.T) {
	mock := NewMockHTTPClient().
		QueueResponse(http.StatusAccepted, `{"status":"queued"}`).
		QueueError(errors.New("connection refused"))

	req, _ := http.NewRequest(http.MethodPost, "http://example.test/hook", nil)
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("first Do returned error: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `{"status":"queued"}` {
		t.Errorf("body = %q", body)
	}

	req2, _ := http.NewRequest(http.MethodPost, "http://example.test/hook", nil)
	if _, err := mock.Do(req2); err == nil {
		t.Fatal("second Do should return the queued error")
	}

	// Past the end of the queue the mock answers 200.
	req3, _ := http.NewRequest(http.MethodGet, "http://example.test/ping", nil)
	resp3, err := mock.Do(req3)
	if err != nil {
		t.Fatalf("third Do returned error: %v", err)
	}
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("fallback status = %d, want 200", resp3.StatusCode)
	}
	resp3.Body.Close()
}

func TestMockClientRecordsRequests(t *testing.T) {
	mock := NewMockHTTPClient()

	req, _ := http.NewRequest(http.MethodPost, "http://example.test/hook", strings.NewReader(`{"event":"static"}`))
	req.Header.Set("Authorization", "Bearer token")
	if _, err := mock.Do(req); err != nil {
		t.Fatalf("Do: %v", err)
	}

	if mock.RequestCount() != 1 {
		t.Fatalf("RequestCount = %d, want 1", mock.RequestCount())
	}
	got := mock.Request(0)
	if got.URL.String() != "http://example.test/hook" {
		t.Errorf("recorded URL = %s", got.URL)
	}
	if got.Header.Get("Authorization") != "Bearer token" {
		t.Error("recorded request lost its headers")
	}
	if mock.RequestBody(0) != `{"event":"static"}` {
		t.Errorf("RequestBody(0) = %q", mock.RequestBody(0))
	}

	if mock.Request(5) != nil {
		t.Error("out-of-range Request should be nil")
	}
	if mock.RequestBody(5) != "" {
		t.Error("out-of-range RequestBody should be empty")
	}
}
