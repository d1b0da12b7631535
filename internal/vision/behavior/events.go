package behavior

import (
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/tracks"
)

// EventType classifies what a track just did.
type EventType string

const (
	EventAppeared EventType = "appeared"
	EventStatic   EventType = "static"
	EventMoving   EventType = "moving"
)

// Metadata carries the per-frame context captured alongside an event.
// DurationSeconds is populated for static events only.
type Metadata struct {
	BBox            vision.BoundingBox `json:"bbox"`
	FrameNumber     int64              `json:"frame_number"`
	DurationSeconds float64            `json:"duration,omitempty"`
}

// Event is an immutable record of a single behavior transition. Fields are
// copied from the track at emission time, so later track updates never
// mutate a delivered event.
type Event struct {
	EventID    string          `json:"event_id"`
	Type       EventType       `json:"event_type"`
	Timestamp  time.Time       `json:"timestamp"`
	TrackingID int64           `json:"tracking_id"`
	ClassName  string          `json:"class_name"`
	Position   vision.Position `json:"position"`
	Confidence float64         `json:"confidence"`
	Metadata   Metadata        `json:"metadata"`
}

func newEvent(typ EventType, track tracks.Track, now time.Time, duration time.Duration) Event {
	meta := Metadata{BBox: track.BBox, FrameNumber: track.FrameNumber}
	if typ == EventStatic {
		meta.DurationSeconds = duration.Seconds()
	}
	return Event{
		EventID:    uuid.NewString(),
		Type:       typ,
		Timestamp:  now,
		TrackingID: track.ID,
		ClassName:  track.ClassName,
		Position:   track.Center,
		Confidence: track.Confidence,
		Metadata:   meta,
	}
}
