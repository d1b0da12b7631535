package monitor

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// latencyWindowSize bounds the per-frame analysis latencies kept for
// percentile computation.
const latencyWindowSize = 512

// StatsSnapshot represents a snapshot of current statistics
type StatsSnapshot struct {
	FramesPerSec     float64
	DetectionsPerSec float64
	EventsPerSec     float64
	RejectedCount    int64
	LatencyP50Millis float64
	LatencyP85Millis float64
	LatencyP95Millis float64
	Timestamp        time.Time
}

// FrameStats tracks frame pipeline statistics with thread-safe operations
type FrameStats struct {
	mu             sync.Mutex
	frameCount     int64
	detectionCount int64
	eventCount     int64
	rejectedCount  int64
	totalFrames    int64
	totalEvents    int64
	latencies      []float64 // milliseconds, most recent last
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

// NewFrameStats creates a new FrameStats instance
func NewFrameStats() *FrameStats {
	now := time.Now()
	return &FrameStats{
		lastReset: now,
		startTime: now,
	}
}

// AddFrame records one analyzed frame: its detection count and how long the
// analysis took.
func (fs *FrameStats) AddFrame(detections int, latency time.Duration) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.frameCount++
	fs.totalFrames++
	fs.detectionCount += int64(detections)
	fs.latencies = append(fs.latencies, float64(latency.Nanoseconds())/1e6)
	if len(fs.latencies) > latencyWindowSize {
		fs.latencies = fs.latencies[len(fs.latencies)-latencyWindowSize:]
	}
}

// AddEvents increments the emitted event count
func (fs *FrameStats) AddEvents(count int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.eventCount += int64(count)
	fs.totalEvents += int64(count)
}

// AddRejected increments the rejected detection count
func (fs *FrameStats) AddRejected(count int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.rejectedCount += int64(count)
}

// GetAndReset returns current stats and resets counters
func (fs *FrameStats) GetAndReset() (frames, detections, events, rejected int64, duration time.Duration) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := time.Now()
	duration = now.Sub(fs.lastReset)
	frames = fs.frameCount
	detections = fs.detectionCount
	events = fs.eventCount
	rejected = fs.rejectedCount

	fs.frameCount = 0
	fs.detectionCount = 0
	fs.eventCount = 0
	fs.rejectedCount = 0
	fs.lastReset = now

	return
}

// AnalysisPercentiles returns the p50/p85/p95 per-frame analysis latency in
// milliseconds over the retained window.
func (fs *FrameStats) AnalysisPercentiles() (p50, p85, p95 float64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.percentilesLocked()
}

func (fs *FrameStats) percentilesLocked() (p50, p85, p95 float64) {
	if len(fs.latencies) == 0 {
		return 0, 0, 0
	}
	sorted := make([]float64, len(fs.latencies))
	copy(sorted, fs.latencies)
	sort.Float64s(sorted)
	p50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	p85 = stat.Quantile(0.85, stat.Empirical, sorted, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return
}

// LogStats logs formatted statistics and stores snapshot for web interface
func (fs *FrameStats) LogStats() {
	frames, detections, events, rejected, duration := fs.GetAndReset()
	if frames > 0 || rejected > 0 {
		framesPerSec := float64(frames) / duration.Seconds()
		detectionsPerSec := float64(detections) / duration.Seconds()
		eventsPerSec := float64(events) / duration.Seconds()

		fs.mu.Lock()
		p50, p85, p95 := fs.percentilesLocked()
		fs.latestSnapshot = &StatsSnapshot{
			FramesPerSec:     framesPerSec,
			DetectionsPerSec: detectionsPerSec,
			EventsPerSec:     eventsPerSec,
			RejectedCount:    rejected,
			LatencyP50Millis: p50,
			LatencyP85Millis: p85,
			LatencyP95Millis: p95,
			Timestamp:        time.Now(),
		}
		fs.mu.Unlock()

		logMsg := fmt.Sprintf("Pipeline stats (/sec): %.1f frames, %.1f detections, %.2f events (analysis p95 %.2fms)",
			framesPerSec, detectionsPerSec, eventsPerSec, p95)

		if rejected > 0 {
			logMsg += fmt.Sprintf(", %d rejected detections", rejected)
		}

		log.Print(logMsg)
	}
}

// GetUptime returns the time since the stats were created
func (fs *FrameStats) GetUptime() time.Duration {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return time.Since(fs.startTime)
}

// Totals returns lifetime frame and event counts.
func (fs *FrameStats) Totals() (frames, events int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.totalFrames, fs.totalEvents
}

// GetLatestSnapshot returns the most recent stats snapshot for web interface
func (fs *FrameStats) GetLatestSnapshot() *StatsSnapshot {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.latestSnapshot == nil {
		return nil
	}
	// Return a copy to avoid race conditions
	snapshot := *fs.latestSnapshot
	return &snapshot
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
