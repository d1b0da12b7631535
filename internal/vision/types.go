// Package vision defines the detection-level data types shared by the track
// store, the behavior engine, and the ingest surfaces. A Detection is one
// detector observation of one object in one frame; a Frame bundles the
// detections a camera produced for a single video frame together with the
// capture timestamp. Everything downstream (tracks, events, persistence)
// is derived from these two types.
package vision

import (
	"fmt"
	"math"
	"time"
)

// Position is a point in pixel coordinates of the camera image plane.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean distance to other in pixels.
func (p Position) DistanceTo(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// BoundingBox is an axis-aligned detector box in pixel coordinates.
// Left/Top is the upper-left corner; Width and Height are non-negative.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the geometric center of the box. All track positions are
// box centers, so a box that grows symmetrically does not appear to move.
func (b BoundingBox) Center() Position {
	return Position{
		X: b.Left + b.Width/2,
		Y: b.Top + b.Height/2,
	}
}

// Detection is a single upstream observation: one object in one frame.
// TrackID is assigned by the upstream tracker and is stable across frames
// for the same physical object; this system never generates track ids.
type Detection struct {
	TrackID     int64       `json:"track_id"`
	ClassID     int         `json:"class_id"`
	Confidence  float64     `json:"confidence"`
	BBox        BoundingBox `json:"bbox"`
	FrameNumber int64       `json:"frame_number"`
}

// Validate reports why a detection is unusable, or nil. Ingest rejects
// invalid detections record-by-record rather than failing the whole frame.
func (d Detection) Validate() error {
	if d.BBox.Width < 0 || d.BBox.Height < 0 {
		return fmt.Errorf("track %d: negative bbox dimensions %.1fx%.1f", d.TrackID, d.BBox.Width, d.BBox.Height)
	}
	if d.BBox.Left < 0 || d.BBox.Top < 0 {
		return fmt.Errorf("track %d: negative bbox origin (%.1f, %.1f)", d.TrackID, d.BBox.Left, d.BBox.Top)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("track %d: confidence %.3f outside [0, 1]", d.TrackID, d.Confidence)
	}
	if math.IsNaN(d.BBox.Left) || math.IsNaN(d.BBox.Top) || math.IsNaN(d.BBox.Width) || math.IsNaN(d.BBox.Height) {
		return fmt.Errorf("track %d: bbox contains NaN", d.TrackID)
	}
	return nil
}

// Frame is the per-video-frame ingest unit: every detection the upstream
// pipeline produced for one frame of one camera. Frames must be delivered
// in non-decreasing FrameNumber/Timestamp order; within a frame, detection
// order carries no meaning.
type Frame struct {
	CameraID    string      `json:"camera_id,omitempty"`
	FrameNumber int64       `json:"frame_number"`
	Timestamp   time.Time   `json:"timestamp"`
	Detections  []Detection `json:"detections"`
}
