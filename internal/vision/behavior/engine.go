package behavior

import (
	"sync"
	"time"

	"github.com/banshee-data/dwell.report/internal/config"
	"github.com/banshee-data/dwell.report/internal/monitoring"
	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/tracks"
)

// Config holds the thresholds and debounce windows for event emission.
type Config struct {
	// StaticThreshold is how long a track must have existed before it can
	// be reported static.
	StaticThreshold time.Duration

	// StaticDebounce is the minimum gap between static events for the
	// same track id.
	StaticDebounce time.Duration

	// PositionTolerancePixels bounds the displacement from the window
	// origin below which a track still counts as static.
	PositionTolerancePixels float64

	// MinFramesForStatic is the sample window for the static check.
	MinFramesForStatic int

	// MinFramesForMoving is the shorter, more reactive window used when
	// re-testing tracks already flagged static.
	MinFramesForMoving int

	// Debounce is the minimum gap between appeared events and between
	// moving events for the same track id.
	Debounce time.Duration

	// MinConfidence gates appearance and static checks. Detections below
	// it still update tracks.
	MinConfidence float64

	// MaxRetainedEvents caps the in-memory ring served to monitoring.
	MaxRetainedEvents int
}

// DefaultConfig mirrors the shipped tuning file defaults.
func DefaultConfig() Config {
	return Config{
		StaticThreshold:         30 * time.Second,
		StaticDebounce:          30 * time.Second,
		PositionTolerancePixels: 10,
		MinFramesForStatic:      30,
		MinFramesForMoving:      10,
		Debounce:                2 * time.Second,
		MinConfidence:           0.5,
		MaxRetainedEvents:       1000,
	}
}

// ConfigFromTuning maps the engine's slice of the tuning file onto a Config.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		StaticThreshold:         cfg.GetStaticThreshold(),
		StaticDebounce:          cfg.GetStaticDebounce(),
		PositionTolerancePixels: cfg.GetPositionTolerancePixels(),
		MinFramesForStatic:      cfg.GetMinFramesForStatic(),
		MinFramesForMoving:      cfg.GetMinFramesForMoving(),
		Debounce:                cfg.GetDebounce(),
		MinConfidence:           cfg.GetMinConfidence(),
		MaxRetainedEvents:       cfg.GetMaxRetainedEvents(),
	}
}

// Stats is a point-in-time snapshot of engine state for monitoring.
type Stats struct {
	FramesAnalyzed    int64               `json:"frames_analyzed"`
	RetainedEvents    int                 `json:"retained_events"`
	FlaggedStatic     int                 `json:"flagged_static"`
	AppearanceTracked int                 `json:"appearance_events_tracked"`
	StaticTracked     int                 `json:"static_events_tracked"`
	MovingTracked     int                 `json:"moving_events_tracked"`
	Emitted           map[EventType]int64 `json:"emitted"`
	Tracks            tracks.Stats        `json:"tracks"`
}

// Listener receives every emitted event. Listeners run on the frame
// goroutine after engine state is settled, so they should hand work off
// quickly rather than block.
type Listener func(Event)

// Engine owns a track store and the per-id debounce bookkeeping that turns
// raw track motion into events.
type Engine struct {
	store *tracks.Store

	mu     sync.Mutex
	config Config

	lastAppeared  map[int64]time.Time
	lastStatic    map[int64]time.Time
	lastMoving    map[int64]time.Time
	flaggedStatic map[int64]bool

	events    []Event
	listeners []Listener

	framesAnalyzed int64
	emitted        map[EventType]int64
}

// NewEngine builds an engine around store. Zero-valued config fields fall
// back to defaults.
func NewEngine(store *tracks.Store, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.StaticThreshold <= 0 {
		cfg.StaticThreshold = def.StaticThreshold
	}
	if cfg.StaticDebounce <= 0 {
		cfg.StaticDebounce = def.StaticDebounce
	}
	if cfg.PositionTolerancePixels <= 0 {
		cfg.PositionTolerancePixels = def.PositionTolerancePixels
	}
	if cfg.MinFramesForStatic <= 0 {
		cfg.MinFramesForStatic = def.MinFramesForStatic
	}
	if cfg.MinFramesForMoving <= 0 {
		cfg.MinFramesForMoving = def.MinFramesForMoving
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.MaxRetainedEvents <= 0 {
		cfg.MaxRetainedEvents = def.MaxRetainedEvents
	}
	return &Engine{
		store:         store,
		config:        cfg,
		lastAppeared:  make(map[int64]time.Time),
		lastStatic:    make(map[int64]time.Time),
		lastMoving:    make(map[int64]time.Time),
		flaggedStatic: make(map[int64]bool),
		emitted:       make(map[EventType]int64),
	}
}

// Store exposes the underlying track store for read-side consumers such as
// monitoring handlers.
func (e *Engine) Store() *tracks.Store {
	return e.store
}

// Config returns a copy of the current tuning.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// AddListener registers fn for all future events.
func (e *Engine) AddListener(fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// UpdateConfig applies fn to a copy of the config under lock and installs
// the result. The new values take effect from the next frame.
func (e *Engine) UpdateConfig(fn func(*Config)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	updated := e.config
	fn(&updated)
	e.config = updated
}

// Reset clears the track store, all debounce bookkeeping and the retained
// event ring. Registered listeners survive.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.Reset()
	e.lastAppeared = make(map[int64]time.Time)
	e.lastStatic = make(map[int64]time.Time)
	e.lastMoving = make(map[int64]time.Time)
	e.flaggedStatic = make(map[int64]bool)
	e.events = nil
	e.framesAnalyzed = 0
	e.emitted = make(map[EventType]int64)
}

// AnalyzeFrame ingests one frame of detections at now and returns the
// events it emitted, in emission order. Listeners are invoked after the
// engine's own state is fully settled for the frame.
func (e *Engine) AnalyzeFrame(detections []vision.Detection, now time.Time) []Event {
	e.mu.Lock()
	emitted := e.analyzeLocked(detections, now)
	listeners := make([]Listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, ev := range emitted {
		for _, fn := range listeners {
			deliver(fn, ev)
		}
	}
	return emitted
}

func (e *Engine) analyzeLocked(detections []vision.Detection, now time.Time) []Event {
	cfg := e.config

	result := e.store.IngestFrame(detections, now)
	created := make(map[int64]bool, len(result.NewIDs))
	for _, id := range result.NewIDs {
		created[id] = true
	}

	active := e.store.ActiveTracks()
	var emitted []Event

	for _, track := range active {
		if !created[track.ID] || track.Confidence < cfg.MinConfidence {
			continue
		}
		if last, ok := e.lastAppeared[track.ID]; ok && now.Sub(last) < cfg.Debounce {
			continue
		}
		e.lastAppeared[track.ID] = now
		emitted = append(emitted, newEvent(EventAppeared, track, now, 0))
	}

	for _, track := range active {
		if track.Confidence < cfg.MinConfidence {
			continue
		}
		static, ok := e.store.IsStatic(track.ID, cfg.PositionTolerancePixels, cfg.MinFramesForStatic)
		if !ok || !static {
			continue
		}
		duration, ok := e.store.Duration(track.ID)
		if !ok || duration < cfg.StaticThreshold {
			continue
		}
		if last, ok := e.lastStatic[track.ID]; ok && now.Sub(last) < cfg.StaticDebounce {
			continue
		}
		e.lastStatic[track.ID] = now
		e.flaggedStatic[track.ID] = true
		emitted = append(emitted, newEvent(EventStatic, track, now, duration))
	}

	for _, track := range active {
		if !e.flaggedStatic[track.ID] {
			continue
		}
		// The short window makes resumed motion report quickly even when
		// the long window still averages out as static.
		static, ok := e.store.IsStatic(track.ID, cfg.PositionTolerancePixels, cfg.MinFramesForMoving)
		if !ok || static {
			continue
		}
		if last, ok := e.lastMoving[track.ID]; ok && now.Sub(last) < cfg.Debounce {
			continue
		}
		e.lastMoving[track.ID] = now
		delete(e.flaggedStatic, track.ID)
		emitted = append(emitted, newEvent(EventMoving, track, now, 0))
	}

	for _, id := range e.store.EvictStale(now) {
		delete(e.lastAppeared, id)
		delete(e.lastStatic, id)
		delete(e.lastMoving, id)
		delete(e.flaggedStatic, id)
	}

	e.framesAnalyzed++
	for _, ev := range emitted {
		e.emitted[ev.Type]++
	}
	e.events = append(e.events, emitted...)
	if len(e.events) > cfg.MaxRetainedEvents {
		e.events = e.events[len(e.events)-cfg.MaxRetainedEvents:]
	}
	return emitted
}

func deliver(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("Behavior listener panicked on %s event %s: %v", ev.Type, ev.EventID, r)
		}
	}()
	fn(ev)
}

// RecentEvents returns up to limit of the most recently emitted events,
// oldest first. A non-positive limit means 100.
func (e *Engine) RecentEvents(limit int) []Event {
	if limit <= 0 {
		limit = 100
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	start := len(e.events) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Event, len(e.events)-start)
	copy(out, e.events[start:])
	return out
}

// Stats snapshots engine and store counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	emitted := make(map[EventType]int64, len(e.emitted))
	for typ, n := range e.emitted {
		emitted[typ] = n
	}
	return Stats{
		FramesAnalyzed:    e.framesAnalyzed,
		RetainedEvents:    len(e.events),
		FlaggedStatic:     len(e.flaggedStatic),
		AppearanceTracked: len(e.lastAppeared),
		StaticTracked:     len(e.lastStatic),
		MovingTracked:     len(e.lastMoving),
		Emitted:           emitted,
		Tracks:            e.store.Stats(),
	}
}
