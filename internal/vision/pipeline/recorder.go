package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/banshee-data/dwell.report/internal/fsutil"
	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
)

// DetectionLogRecorder tees frames into a newline-delimited JSON log that
// ReplayDetectionLog can play back. One recorder owns one open log file.
type DetectionLogRecorder struct {
	path string

	mu     sync.Mutex
	w      io.WriteCloser
	frames int64
	closed bool
}

// NewDetectionLogRecorder creates the log file at path, making parent
// directories as needed.
func NewDetectionLogRecorder(fs fsutil.FileSystem, path string) (*DetectionLogRecorder, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("recorder: create log directory: %w", err)
		}
	}
	w, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	return &DetectionLogRecorder{path: path, w: w}, nil
}

// Record appends one frame to the log.
func (r *DetectionLogRecorder) Record(frame vision.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("recorder: encode frame %d: %w", frame.FrameNumber, err)
	}
	data = append(data, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recorder: log %s already closed", r.path)
	}
	if _, err := r.w.Write(data); err != nil {
		return fmt.Errorf("recorder: write frame %d: %w", frame.FrameNumber, err)
	}
	r.frames++
	return nil
}

// Frames returns how many frames have been written so far.
func (r *DetectionLogRecorder) Frames() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close flushes and closes the log file. Safe to call twice.
func (r *DetectionLogRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	diagf("[Recorder] Closed %s after %d frames", r.path, r.frames)
	return r.w.Close()
}

// WrapCallback returns a frame callback that records the frame and then
// hands it to next. Recording failures are logged, not fatal; an analysis
// run outlives a full disk.
func (r *DetectionLogRecorder) WrapCallback(next func(vision.Frame) []behavior.Event) func(vision.Frame) []behavior.Event {
	return func(frame vision.Frame) []behavior.Event {
		if err := r.Record(frame); err != nil {
			opsf("[Recorder] %v", err)
		}
		return next(frame)
	}
}
