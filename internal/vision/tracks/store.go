package tracks

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/dwell.report/internal/config"
	"github.com/banshee-data/dwell.report/internal/monitoring"
	"github.com/banshee-data/dwell.report/internal/vision"
)

// Config holds the tuning parameters of the track store.
type Config struct {
	MaxHistoryLength int           // Maximum position samples retained per track
	TrackTimeout     time.Duration // Absence after which a track is evicted
	HistoryMaxAge    time.Duration // Retention for histories of evicted tracks
}

// DefaultConfig returns the stock track store tuning.
func DefaultConfig() Config {
	return Config{
		MaxHistoryLength: 100,
		TrackTimeout:     30 * time.Second,
		HistoryMaxAge:    300 * time.Second,
	}
}

// ConfigFromTuning builds a store Config from a loaded tuning file.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MaxHistoryLength: cfg.GetMaxHistoryLength(),
		TrackTimeout:     cfg.GetTrackTimeout(),
		HistoryMaxAge:    cfg.GetHistoryMaxAge(),
	}
}

// PositionSample is a single entry in a track's position history.
type PositionSample struct {
	X           float64
	Y           float64
	Timestamp   time.Time
	FrameNumber int64
}

// Track is the state of one tracked object. The upstream tracker assigns
// the id; this store never invents one.
type Track struct {
	ID         int64
	ClassID    int
	ClassName  string
	Confidence float64

	// Most recent observation
	BBox        vision.BoundingBox
	Center      vision.Position
	FrameNumber int64

	FirstSeenAt time.Time
	LastSeenAt  time.Time

	// History is populated on snapshots returned by Track, ActiveTracks and
	// DrainEvicted. Live store state keeps histories in a separate map so
	// they survive track eviction.
	History []PositionSample
}

// IngestResult summarises one IngestFrame call.
type IngestResult struct {
	// NewIDs are track ids created by this call, i.e. ids that had no
	// active track before the frame arrived. The behavior engine keys its
	// appearance check off this list.
	NewIDs   []int64
	Accepted int
	Rejected int
}

// Stats is a point-in-time summary of store occupancy.
type Stats struct {
	ActiveTracks       int   `json:"active_tracks"`
	RetainedHistories  int   `json:"retained_histories"`
	TracksCreated      int64 `json:"tracks_created"`
	RejectedDetections int64 `json:"rejected_detections"`
	EvictedTracks      int64 `json:"evicted_tracks"`
}

// Store manages the live track set and the per-id position histories.
//
// The frame path (IngestFrame, EvictStale, the query methods) is intended
// to be driven from a single goroutine; the RWMutex exists so monitoring
// handlers on other goroutines can take deep-copied snapshots.
type Store struct {
	mu        sync.RWMutex
	tracks    map[int64]*Track
	histories map[int64][]PositionSample

	// seenThisFrame holds the ids of the most recent ingest so eviction can
	// honour "observed in the current frame" regardless of clock skew
	// between the frame timestamp and the eviction timestamp.
	seenThisFrame map[int64]bool

	// evicted buffers final snapshots of removed tracks until the pipeline
	// drains them for summary persistence.
	evicted []Track

	config Config

	tracksCreated int64
	rejected      int64
	evictedTotal  int64
}

// NewStore creates a track store. Zero-valued config fields fall back to
// the defaults from DefaultConfig.
func NewStore(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.MaxHistoryLength <= 0 {
		cfg.MaxHistoryLength = def.MaxHistoryLength
	}
	if cfg.TrackTimeout <= 0 {
		cfg.TrackTimeout = def.TrackTimeout
	}
	if cfg.HistoryMaxAge <= 0 {
		cfg.HistoryMaxAge = def.HistoryMaxAge
	}
	return &Store{
		tracks:        make(map[int64]*Track),
		histories:     make(map[int64][]PositionSample),
		seenThisFrame: make(map[int64]bool),
		config:        cfg,
	}
}

// UpdateConfig applies the given function to the store's configuration
// under the store lock. This is the safe way to mutate Config fields from
// outside the frame goroutine (e.g. the config hot-reload watcher).
func (s *Store) UpdateConfig(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.config)
}

// Reset clears all tracks, histories and counters. Used between replay runs
// so each run starts from a clean store.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = make(map[int64]*Track)
	s.histories = make(map[int64][]PositionSample)
	s.seenThisFrame = make(map[int64]bool)
	s.evicted = nil
	s.tracksCreated = 0
	s.rejected = 0
	s.evictedTotal = 0
}

// IngestFrame applies one frame of detections at the given frame timestamp.
//
// Invalid detections (negative box dimensions, confidence outside [0, 1])
// are rejected record-by-record: they are logged, counted and skipped while
// the rest of the frame still processes. An empty frame is a no-op apart
// from clearing the seen-this-frame set.
func (s *Store) IngestFrame(detections []vision.Detection, now time.Time) IngestResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seenThisFrame = make(map[int64]bool, len(detections))

	var res IngestResult
	for _, det := range detections {
		if err := det.Validate(); err != nil {
			monitoring.Logf("tracks: rejecting detection: %v", err)
			s.rejected++
			res.Rejected++
			continue
		}

		center := det.BBox.Center()
		track, exists := s.tracks[det.TrackID]
		if !exists {
			track = &Track{
				ID:          det.TrackID,
				FirstSeenAt: now,
			}
			s.tracks[det.TrackID] = track
			s.tracksCreated++
			res.NewIDs = append(res.NewIDs, det.TrackID)
		}

		track.ClassID = det.ClassID
		track.ClassName = vision.ClassName(det.ClassID)
		track.Confidence = det.Confidence
		track.BBox = det.BBox
		track.Center = center
		track.FrameNumber = det.FrameNumber
		track.LastSeenAt = now

		s.appendSampleLocked(det.TrackID, PositionSample{
			X:           center.X,
			Y:           center.Y,
			Timestamp:   now,
			FrameNumber: det.FrameNumber,
		})

		s.seenThisFrame[det.TrackID] = true
		res.Accepted++
	}
	return res
}

// appendSampleLocked appends to the id's history and trims to the cap.
func (s *Store) appendSampleLocked(id int64, sample PositionSample) {
	history := append(s.histories[id], sample)
	if len(history) > s.config.MaxHistoryLength {
		history = history[len(history)-s.config.MaxHistoryLength:]
	}
	s.histories[id] = history
}

// EvictStale removes every track that was not observed in the current frame
// and whose last observation is older than the track timeout. The removed
// tracks' histories are retained (see PruneHistory); final snapshots are
// buffered for DrainEvicted. Returns the removed ids so callers can purge
// their own per-id bookkeeping.
func (s *Store) EvictStale(now time.Time) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []int64
	for id, track := range s.tracks {
		if s.seenThisFrame[id] {
			continue
		}
		if now.Sub(track.LastSeenAt) > s.config.TrackTimeout {
			s.evicted = append(s.evicted, s.snapshotLocked(track))
			delete(s.tracks, id)
			removed = append(removed, id)
			s.evictedTotal++
		}
	}
	if len(removed) > 0 {
		sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
		monitoring.Logf("tracks: evicted %d stale track(s): %v", len(removed), removed)
	}
	return removed
}

// DrainEvicted returns the buffered final snapshots of evicted tracks and
// clears the buffer. The pipeline drains this once per frame to persist
// track summaries; snapshots include the history as of eviction time.
func (s *Store) DrainEvicted() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.evicted
	s.evicted = nil
	return out
}

// IsStatic reports whether the track's recent positions stay within
// tolerancePx of the start of the observation window.
//
// The window is the most recent minSamples history entries (the entire
// history when minSamples <= 0). The test is fixed-origin: every entry is
// compared against the FIRST entry of the window, so an object oscillating
// near its original position stays static while a single excursion beyond
// tolerance disqualifies the window.
//
// ok is false when the id has no history at all; static is false when the
// history is shorter than minSamples.
func (s *Store) IsStatic(id int64, tolerancePx float64, minSamples int) (static, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.histories[id]
	if !exists || len(history) == 0 {
		return false, false
	}
	if len(history) < minSamples {
		return false, true
	}

	window := history
	if minSamples > 0 {
		window = history[len(history)-minSamples:]
	}
	origin := vision.Position{X: window[0].X, Y: window[0].Y}
	for _, sample := range window[1:] {
		p := vision.Position{X: sample.X, Y: sample.Y}
		if origin.DistanceTo(p) > tolerancePx {
			return false, true
		}
	}
	return true, true
}

// Duration returns the time spanned by the id's history (last sample minus
// first sample). A single-sample history has zero duration; ok is false
// when the id has no history at all.
func (s *Store) Duration(id int64) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.histories[id]
	if !exists || len(history) == 0 {
		return 0, false
	}
	if len(history) < 2 {
		return 0, true
	}
	return history[len(history)-1].Timestamp.Sub(history[0].Timestamp), true
}

// PruneHistory drops the history of every id that no longer has an active
// track and whose newest sample is older than maxAge. Pass maxAge <= 0 to
// use the configured default. Returns the number of histories dropped.
func (s *Store) PruneHistory(now time.Time, maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxAge <= 0 {
		maxAge = s.config.HistoryMaxAge
	}

	pruned := 0
	for id, history := range s.histories {
		if _, active := s.tracks[id]; active {
			continue
		}
		if len(history) == 0 || now.Sub(history[len(history)-1].Timestamp) > maxAge {
			delete(s.histories, id)
			pruned++
		}
	}
	if pruned > 0 {
		monitoring.Logf("tracks: pruned history for %d departed track(s)", pruned)
	}
	return pruned
}

// Track returns a deep-copied snapshot of one track, with its history
// attached. ok is false when the id has no active track.
func (s *Store) Track(id int64) (Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	track, exists := s.tracks[id]
	if !exists {
		return Track{}, false
	}
	return s.snapshotLocked(track), true
}

// ActiveTracks returns deep-copied snapshots of all active tracks, sorted
// by id for stable output. Safe to hold without the store lock.
func (s *Store) ActiveTracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Track, 0, len(s.tracks))
	for _, track := range s.tracks {
		out = append(out, s.snapshotLocked(track))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// History returns a copy of the id's position history. ok is false when no
// history is retained for the id (active or not).
func (s *Store) History(id int64) ([]PositionSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.histories[id]
	if !exists {
		return nil, false
	}
	out := make([]PositionSample, len(history))
	copy(out, history)
	return out, true
}

// snapshotLocked copies the track struct and attaches a copy of its history.
func (s *Store) snapshotLocked(track *Track) Track {
	snapshot := *track
	if history := s.histories[track.ID]; len(history) > 0 {
		snapshot.History = make([]PositionSample, len(history))
		copy(snapshot.History, history)
	}
	return snapshot
}

// Stats returns current store occupancy counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		ActiveTracks:       len(s.tracks),
		RetainedHistories:  len(s.histories),
		TracksCreated:      s.tracksCreated,
		RejectedDetections: s.rejected,
		EvictedTracks:      s.evictedTotal,
	}
}
