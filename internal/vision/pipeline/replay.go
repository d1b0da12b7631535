package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/dwell.report/internal/timeutil"
	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
)

// maxReplayLineBytes caps a single recorded frame line. A frame with a few
// hundred detections is well under this.
const maxReplayLineBytes = 1 << 20

// ReplayConfig drives recorded-frame playback through a frame callback.
type ReplayConfig struct {
	// Path of the detection log: one JSON-encoded frame per line.
	Path string

	// Callback receives each decoded frame in file order.
	Callback func(vision.Frame) []behavior.Event

	// Speed multiplies the playback rate. 1.0 honours the recorded frame
	// spacing, 2.0 halves it. Zero or negative disables pacing and frames
	// are fed as fast as they decode.
	Speed float64

	// Clock paces playback. Nil means the wall clock.
	Clock timeutil.Clock
}

// ReplayStats summarises one playback run.
type ReplayStats struct {
	FramesRead    int
	LinesSkipped  int
	EventsEmitted int
	Elapsed       time.Duration
}

// ReplayDetectionLog reads a recorded detection log and feeds each frame to
// the callback, sleeping between frames so playback matches the recorded
// pacing. Malformed lines are logged and skipped rather than aborting the
// run; a recording cut off mid-write still replays up to the damage.
func ReplayDetectionLog(ctx context.Context, cfg ReplayConfig) (ReplayStats, error) {
	var stats ReplayStats

	if cfg.Callback == nil {
		return stats, fmt.Errorf("replay: no frame callback configured")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return stats, fmt.Errorf("replay: %w", err)
	}
	defer f.Close()

	started := clock.Now()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLineBytes)

	// Rate control state, same shape as the live visualiser replay:
	// compare the recorded frame gap against wall time actually spent
	// and sleep off the difference.
	var lastFrameTime time.Time
	var lastWallTime time.Time

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		select {
		case <-ctx.Done():
			stats.Elapsed = clock.Since(started)
			return stats, ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var frame vision.Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			stats.LinesSkipped++
			opsf("[Replay] Skipping malformed line %d: %v", lineNum, err)
			continue
		}

		if cfg.Speed > 0 && !lastFrameTime.IsZero() && frame.Timestamp.After(lastFrameTime) {
			frameDelta := time.Duration(float64(frame.Timestamp.Sub(lastFrameTime)) / cfg.Speed)
			wallDelta := clock.Since(lastWallTime)
			if frameDelta > wallDelta {
				clock.Sleep(frameDelta - wallDelta)
			}
		}
		lastFrameTime = frame.Timestamp
		lastWallTime = clock.Now()

		events := cfg.Callback(frame)
		stats.FramesRead++
		stats.EventsEmitted += len(events)

		if stats.FramesRead%1000 == 0 {
			diagf("[Replay] %d frames fed, %d events", stats.FramesRead, stats.EventsEmitted)
		}
	}
	if err := scanner.Err(); err != nil {
		stats.Elapsed = clock.Since(started)
		return stats, fmt.Errorf("replay: reading %s: %w", cfg.Path, err)
	}

	stats.Elapsed = clock.Since(started)
	diagf("[Replay] Complete: %d frames, %d events, %d lines skipped in %v",
		stats.FramesRead, stats.EventsEmitted, stats.LinesSkipped, stats.Elapsed)
	return stats, nil
}
