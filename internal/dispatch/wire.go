package dispatch

import (
	"encoding/json"
	"time"

	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
)

// wireObject identifies the tracked object an event is about.
type wireObject struct {
	TrackingID int64           `json:"tracking_id"`
	ClassName  string          `json:"class_name"`
	Position   vision.Position `json:"position"`
}

// wirePayload is the JSON body every delivery channel sends. The shape is
// part of the external contract with webhook receivers and MQTT consumers,
// so changes here are breaking.
type wirePayload struct {
	EventID    string            `json:"event_id"`
	EventType  string            `json:"event_type"`
	Timestamp  time.Time         `json:"timestamp"`
	Object     wireObject        `json:"object"`
	Metadata   behavior.Metadata `json:"metadata"`
	Confidence float64           `json:"confidence"`
}

func encodeEvent(ev behavior.Event) ([]byte, error) {
	return json.Marshal(wirePayload{
		EventID:   ev.EventID,
		EventType: string(ev.Type),
		Timestamp: ev.Timestamp,
		Object: wireObject{
			TrackingID: ev.TrackingID,
			ClassName:  ev.ClassName,
			Position:   ev.Position,
		},
		Metadata:   ev.Metadata,
		Confidence: ev.Confidence,
	})
}
