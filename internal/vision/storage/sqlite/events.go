package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/dwell.report/internal/db"
	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
)

// EventRecord is one persisted behavior event.
type EventRecord struct {
	EventID         string             `json:"event_id"`
	Type            string             `json:"event_type"`
	CameraID        string             `json:"camera_id,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
	TrackingID      int64              `json:"tracking_id"`
	ClassName       string             `json:"class_name"`
	Position        vision.Position    `json:"position"`
	Confidence      float64            `json:"confidence"`
	DurationSeconds float64            `json:"duration,omitempty"`
	BBox            vision.BoundingBox `json:"bbox"`
	FrameNumber     int64              `json:"frame_number"`
}

// EventStore reads and writes the events table.
type EventStore struct {
	db *db.DB
}

func NewEventStore(database *db.DB) *EventStore {
	return &EventStore{db: database}
}

const eventColumns = `event_id, event_type, camera_id, tracking_id, class_name,
	position_x, position_y, confidence, duration_s,
	bbox_left, bbox_top, bbox_width, bbox_height, frame_number, event_unix`

// InsertEvent persists one emitted event for cameraID.
func (s *EventStore) InsertEvent(cameraID string, ev behavior.Event) error {
	duration := sql.NullFloat64{}
	if ev.Type == behavior.EventStatic {
		duration = sql.NullFloat64{Float64: ev.Metadata.DurationSeconds, Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, string(ev.Type), cameraID, ev.TrackingID, ev.ClassName,
		ev.Position.X, ev.Position.Y, ev.Confidence, duration,
		ev.Metadata.BBox.Left, ev.Metadata.BBox.Top, ev.Metadata.BBox.Width, ev.Metadata.BBox.Height,
		ev.Metadata.FrameNumber, unixSeconds(ev.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", ev.EventID, err)
	}
	return nil
}

// RecentEvents returns up to limit of the newest events, oldest first so
// the shape matches the engine's in-memory ring. An empty eventType means
// all types.
func (s *EventStore) RecentEvents(limit int, eventType string) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + eventColumns + ` FROM events`
	args := []interface{}{}
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY event_unix DESC LIMIT ?`
	args = append(args, limit)

	records, err := s.queryEvents(query, args...)
	if err != nil {
		return nil, err
	}
	reverse(records)
	return records, nil
}

// EventsInRange returns events with start <= timestamp < end, oldest
// first. An empty eventType means all types.
func (s *EventStore) EventsInRange(start, end time.Time, eventType string) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE event_unix >= ? AND event_unix < ?`
	args := []interface{}{unixSeconds(start), unixSeconds(end)}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY event_unix ASC`
	return s.queryEvents(query, args...)
}

// CountsByType returns the total number of stored events per type.
func (s *EventStore) CountsByType() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT event_type, COUNT(*) FROM events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var eventType string
		var n int64
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, err
		}
		counts[eventType] = n
	}
	return counts, rows.Err()
}

func (s *EventStore) queryEvents(query string, args ...interface{}) ([]EventRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var rec EventRecord
		var duration sql.NullFloat64
		var eventUnix float64
		if err := rows.Scan(
			&rec.EventID, &rec.Type, &rec.CameraID, &rec.TrackingID, &rec.ClassName,
			&rec.Position.X, &rec.Position.Y, &rec.Confidence, &duration,
			&rec.BBox.Left, &rec.BBox.Top, &rec.BBox.Width, &rec.BBox.Height,
			&rec.FrameNumber, &eventUnix,
		); err != nil {
			return nil, err
		}
		if duration.Valid {
			rec.DurationSeconds = duration.Float64
		}
		rec.Timestamp = timeFromUnix(eventUnix)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(u float64) time.Time {
	return time.Unix(0, int64(u*1e9)).UTC()
}

func reverse(records []EventRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
