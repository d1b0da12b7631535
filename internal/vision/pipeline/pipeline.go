package pipeline

import (
	"sync"
	"time"

	"github.com/banshee-data/dwell.report/internal/config"
	"github.com/banshee-data/dwell.report/internal/dispatch"
	"github.com/banshee-data/dwell.report/internal/timeutil"
	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
	"github.com/banshee-data/dwell.report/internal/vision/monitor"
	"github.com/banshee-data/dwell.report/internal/vision/storage/sqlite"
	"github.com/banshee-data/dwell.report/internal/vision/tracks"
)

// historyPruneInterval bounds how often the frame callback sweeps retained
// histories of departed tracks. Sweeping on every frame would contend with
// readers for the store lock without reclaiming anything new.
const historyPruneInterval = 1 * time.Minute

// FramePipelineConfig holds dependencies for the per-frame analysis callback.
// Engine and CameraID are required; everything else is optional and enables
// the matching stage when present.
type FramePipelineConfig struct {
	Engine   *behavior.Engine
	CameraID string

	// Clock supplies the frame time when an incoming frame carries none,
	// and measures analysis latency. Nil means the wall clock.
	Clock timeutil.Clock

	// Stats receives per-frame throughput and latency for the monitor
	// endpoints.
	Stats *monitor.FrameStats

	// Events persists every emitted event.
	Events *sqlite.EventStore

	// Summaries receives a lifetime summary for each track the store
	// evicts.
	Summaries *sqlite.TrackSummaryStore

	// Dispatcher is registered as an engine listener so emitted events fan
	// out to the configured delivery channels.
	Dispatcher *dispatch.Dispatcher

	// Watcher has its accepted reloads applied to the engine and track
	// store tuning.
	Watcher *config.Watcher
}

// NewFrameCallback builds the callback that carries one frame through
// analysis, persistence, and stats. It also registers the dispatcher
// listener and the tuning reload hook, so call it once per pipeline. The
// returned callback is safe for concurrent frames, though detection
// ordering across concurrent callers is the frame source's problem.
func (cfg *FramePipelineConfig) NewFrameCallback() func(vision.Frame) []behavior.Event {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	if cfg.Dispatcher != nil {
		cfg.Engine.AddListener(cfg.Dispatcher.Enqueue)
	}
	if cfg.Watcher != nil {
		engine := cfg.Engine
		cfg.Watcher.OnChange(func(tc *config.TuningConfig) {
			applyTuning(engine, tc)
		})
	}

	store := cfg.Engine.Store()

	// Prune throttle and rejected-counter state, shared by concurrent
	// HTTP ingest frames.
	var mu sync.Mutex
	var lastPrune time.Time
	var lastRejected int64

	return func(frame vision.Frame) []behavior.Event {
		now := frame.Timestamp
		if now.IsZero() {
			now = clock.Now()
		}

		start := clock.Now()
		events := cfg.Engine.AnalyzeFrame(frame.Detections, now)
		elapsed := clock.Since(start)

		tracef("[Analysis] Frame %d: %d detections, %d events in %v",
			frame.FrameNumber, len(frame.Detections), len(events), elapsed)

		if cfg.Stats != nil {
			cfg.Stats.AddFrame(len(frame.Detections), elapsed)
			cfg.Stats.AddEvents(len(events))
			mu.Lock()
			if rejected := store.Stats().RejectedDetections; rejected > lastRejected {
				cfg.Stats.AddRejected(int(rejected - lastRejected))
				lastRejected = rejected
			}
			mu.Unlock()
		}

		if cfg.Events != nil {
			for _, ev := range events {
				if err := cfg.Events.InsertEvent(cfg.CameraID, ev); err != nil {
					opsf("[Analysis] Failed to insert %s event %s: %v", ev.Type, ev.EventID, err)
				}
			}
		}

		if evicted := store.DrainEvicted(); len(evicted) > 0 {
			diagf("[Analysis] %d tracks departed", len(evicted))
			if cfg.Summaries != nil {
				for _, trk := range evicted {
					summary := sqlite.SummaryFromTrack(cfg.CameraID, trk)
					if err := cfg.Summaries.InsertSummary(summary); err != nil {
						opsf("[Analysis] Failed to insert summary for track %d: %v", trk.ID, err)
					}
				}
			}
		}

		// Periodic history pruning. Runs at most once per
		// historyPruneInterval; the store applies its configured
		// retention age.
		mu.Lock()
		due := lastPrune.IsZero() || now.Sub(lastPrune) >= historyPruneInterval
		if due {
			lastPrune = now
		}
		mu.Unlock()
		if due {
			if pruned := store.PruneHistory(now, 0); pruned > 0 {
				diagf("[Analysis] Pruned %d retained histories", pruned)
			}
		}

		return events
	}
}

// applyTuning swaps the engine and track store tuning for a freshly
// accepted reload. Runs on the watcher goroutine.
func applyTuning(engine *behavior.Engine, tc *config.TuningConfig) {
	engineCfg := behavior.ConfigFromTuning(tc)
	engine.UpdateConfig(func(c *behavior.Config) { *c = engineCfg })

	storeCfg := tracks.ConfigFromTuning(tc)
	engine.Store().UpdateConfig(func(c *tracks.Config) { *c = storeCfg })

	diagf("[Config] Applied tuning: tolerance=%.1fpx static>=%v timeout=%v",
		engineCfg.PositionTolerancePixels, engineCfg.StaticThreshold, storeCfg.TrackTimeout)
}
