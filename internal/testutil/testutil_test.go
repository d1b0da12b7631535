package testutil

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)

	ft := &testing.T{}
	AssertStatusCode(ft, http.StatusOK, http.StatusBadRequest)
	if !ft.Failed() {
		t.Error("mismatched status codes did not flag a failure")
	}
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	AssertNoError(t, nil)

	expectFatal(t, func(ft *testing.T) {
		AssertNoError(ft, errors.New("boom"))
	})
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	AssertError(t, errors.New("boom"))

	expectFatal(t, func(ft *testing.T) {
		AssertError(ft, nil)
	})
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	var got struct {
		CameraID string `json:"camera_id"`
		Frames   int    `json:"frames"`
	}
	DecodeJSON(t, strings.NewReader(`{"camera_id":"cam-door","frames":3}`), &got)
	if got.CameraID != "cam-door" || got.Frames != 3 {
		t.Errorf("decoded %+v, want camera cam-door with 3 frames", got)
	}

	expectFatal(t, func(ft *testing.T) {
		var dst map[string]any
		DecodeJSON(ft, strings.NewReader(`{"camera_id":`), &dst)
	})
}

func TestNewTestRequest(t *testing.T) {
	t.Parallel()

	req := NewTestRequest(http.MethodGet, "/api/stats", nil)
	if req.Method != http.MethodGet {
		t.Errorf("method = %q, want GET", req.Method)
	}
	if req.URL.Path != "/api/stats" {
		t.Errorf("path = %q, want /api/stats", req.URL.Path)
	}

	body := `{"camera_id":"cam-door"}`
	req = NewTestRequest(http.MethodPost, "/api/frames", strings.NewReader(body))
	data, err := io.ReadAll(req.Body)
	AssertNoError(t, err)
	if string(data) != body {
		t.Errorf("body = %q, want %q", data, body)
	}
}

func TestNewTestRecorder(t *testing.T) {
	t.Parallel()

	rec := NewTestRecorder()
	if rec == nil {
		t.Fatal("NewTestRecorder returned nil")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("fresh recorder code = %d, want %d", rec.Code, http.StatusOK)
	}
}

// expectFatal runs fn against a throwaway T on its own goroutine, because
// Fatalf stops the calling goroutine via runtime.Goexit.
func expectFatal(t *testing.T, fn func(ft *testing.T)) {
	t.Helper()
	ft := &testing.T{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ft)
	}()
	<-done
	if !ft.Failed() {
		t.Error("helper did not flag a failure")
	}
}
