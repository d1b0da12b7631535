package sqlite

import (
	"fmt"
	"time"

	"github.com/banshee-data/dwell.report/internal/db"
	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/tracks"
)

// TrackSummary condenses one track's lifetime into a single row.
type TrackSummary struct {
	TrackID         int64           `json:"track_id"`
	CameraID        string          `json:"camera_id,omitempty"`
	ClassName       string          `json:"class_name"`
	FirstSeen       time.Time       `json:"first_seen"`
	LastSeen        time.Time       `json:"last_seen"`
	DurationSeconds float64         `json:"duration"`
	SampleCount     int             `json:"sample_count"`
	MaxDisplacement float64         `json:"max_displacement"`
	LastPosition    vision.Position `json:"last_position"`
}

// SummaryFromTrack builds a summary from an evicted track snapshot.
// Duration and displacement come from the position history, matching how
// the behavior engine measured the track while it was live.
func SummaryFromTrack(cameraID string, track tracks.Track) TrackSummary {
	summary := TrackSummary{
		TrackID:      track.ID,
		CameraID:     cameraID,
		ClassName:    track.ClassName,
		FirstSeen:    track.FirstSeenAt,
		LastSeen:     track.LastSeenAt,
		SampleCount:  len(track.History),
		LastPosition: track.Center,
	}
	if len(track.History) == 0 {
		return summary
	}
	origin := vision.Position{X: track.History[0].X, Y: track.History[0].Y}
	for _, sample := range track.History {
		d := origin.DistanceTo(vision.Position{X: sample.X, Y: sample.Y})
		if d > summary.MaxDisplacement {
			summary.MaxDisplacement = d
		}
	}
	last := track.History[len(track.History)-1]
	summary.LastPosition = vision.Position{X: last.X, Y: last.Y}
	if len(track.History) >= 2 {
		summary.DurationSeconds = last.Timestamp.Sub(track.History[0].Timestamp).Seconds()
	}
	return summary
}

// TrackSummaryStore reads and writes the track_summaries table.
type TrackSummaryStore struct {
	db *db.DB
}

func NewTrackSummaryStore(database *db.DB) *TrackSummaryStore {
	return &TrackSummaryStore{db: database}
}

const summaryColumns = `track_id, camera_id, class_name, first_seen_unix, last_seen_unix,
	duration_s, sample_count, max_displacement, last_x, last_y`

// InsertSummary writes or refreshes one summary. Upstream ids recycle, so
// rows are keyed by (track_id, first_seen): re-inserting the same lifetime
// updates it in place.
func (s *TrackSummaryStore) InsertSummary(summary TrackSummary) error {
	_, err := s.db.Exec(
		`INSERT INTO track_summaries (`+summaryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(track_id, first_seen_unix) DO UPDATE SET
			last_seen_unix = excluded.last_seen_unix,
			duration_s = excluded.duration_s,
			sample_count = excluded.sample_count,
			max_displacement = excluded.max_displacement,
			last_x = excluded.last_x,
			last_y = excluded.last_y`,
		summary.TrackID, summary.CameraID, summary.ClassName,
		unixSeconds(summary.FirstSeen), unixSeconds(summary.LastSeen),
		summary.DurationSeconds, summary.SampleCount, summary.MaxDisplacement,
		summary.LastPosition.X, summary.LastPosition.Y,
	)
	if err != nil {
		return fmt.Errorf("failed to insert summary for track %d: %w", summary.TrackID, err)
	}
	return nil
}

// RecentSummaries returns up to limit of the most recently departed
// tracks, newest first.
func (s *TrackSummaryStore) RecentSummaries(limit int) ([]TrackSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.querySummaries(
		`SELECT `+summaryColumns+` FROM track_summaries ORDER BY last_seen_unix DESC LIMIT ?`,
		limit,
	)
}

// SummariesInRange returns summaries whose last observation falls in
// [start, end), oldest first.
func (s *TrackSummaryStore) SummariesInRange(start, end time.Time) ([]TrackSummary, error) {
	return s.querySummaries(
		`SELECT `+summaryColumns+` FROM track_summaries
		WHERE last_seen_unix >= ? AND last_seen_unix < ? ORDER BY last_seen_unix ASC`,
		unixSeconds(start), unixSeconds(end),
	)
}

// DwellDurations returns the lifetime duration in seconds of every track
// that departed in [start, end). Feeds the monitor's dwell percentiles.
func (s *TrackSummaryStore) DwellDurations(start, end time.Time) ([]float64, error) {
	rows, err := s.db.Query(
		`SELECT duration_s FROM track_summaries
		WHERE last_seen_unix >= ? AND last_seen_unix < ? ORDER BY duration_s ASC`,
		unixSeconds(start), unixSeconds(end),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query dwell durations: %w", err)
	}
	defer rows.Close()

	var durations []float64
	for rows.Next() {
		var d float64
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		durations = append(durations, d)
	}
	return durations, rows.Err()
}

func (s *TrackSummaryStore) querySummaries(query string, args ...interface{}) ([]TrackSummary, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []TrackSummary
	for rows.Next() {
		var summary TrackSummary
		var firstSeen, lastSeen float64
		if err := rows.Scan(
			&summary.TrackID, &summary.CameraID, &summary.ClassName,
			&firstSeen, &lastSeen,
			&summary.DurationSeconds, &summary.SampleCount, &summary.MaxDisplacement,
			&summary.LastPosition.X, &summary.LastPosition.Y,
		); err != nil {
			return nil, err
		}
		summary.FirstSeen = timeFromUnix(firstSeen)
		summary.LastSeen = timeFromUnix(lastSeen)
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}
