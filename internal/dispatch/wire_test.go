package dispatch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
)

func TestEncodeEvent(t *testing.T) {
	ev := behavior.Event{
		EventID:    "9f1c7e9a-1111-4222-8333-abcdefabcdef",
		Type:       behavior.EventStatic,
		Timestamp:  time.Date(2026, 3, 14, 9, 15, 30, 0, time.UTC),
		TrackingID: 42,
		ClassName:  "person",
		Position:   vision.Position{X: 412.5, Y: 220},
		Confidence: 0.87,
		Metadata: behavior.Metadata{
			BBox:            vision.BoundingBox{Left: 380, Top: 120, Width: 65, Height: 200},
			FrameNumber:     900,
			DurationSeconds: 31.5,
		},
	}

	payload, err := encodeEvent(ev)
	if err != nil {
		t.Fatalf("encodeEvent: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}

	want := map[string]interface{}{
		"event_id":   "9f1c7e9a-1111-4222-8333-abcdefabcdef",
		"event_type": "static",
		"timestamp":  "2026-03-14T09:15:30Z",
		"object": map[string]interface{}{
			"tracking_id": float64(42),
			"class_name":  "person",
			"position":    map[string]interface{}{"x": 412.5, "y": float64(220)},
		},
		"metadata": map[string]interface{}{
			"bbox": map[string]interface{}{
				"left": float64(380), "top": float64(120),
				"width": float64(65), "height": float64(200),
			},
			"frame_number": float64(900),
			"duration":     31.5,
		},
		"confidence": 0.87,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wire payload mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeEventOmitsZeroDuration(t *testing.T) {
	payload, err := encodeEvent(testEvent("evt-1"))
	if err != nil {
		t.Fatalf("encodeEvent: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	meta := got["metadata"].(map[string]interface{})
	if _, present := meta["duration"]; present {
		t.Error("duration should be omitted for non-static events")
	}
}
