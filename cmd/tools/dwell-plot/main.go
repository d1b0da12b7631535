// Command dwell-plot renders track plots from a recorded detection log.
// It replays the log through a behavior engine offline and writes the same
// displacement and path PNGs the monitoring UI serves for a live camera,
// plus a combined overview of every track path.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/banshee-data/dwell.report/internal/config"
	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
	"github.com/banshee-data/dwell.report/internal/vision/monitor"
	"github.com/banshee-data/dwell.report/internal/vision/pipeline"
	"github.com/banshee-data/dwell.report/internal/vision/storage/sqlite"
	"github.com/banshee-data/dwell.report/internal/vision/tracks"
)

// Config holds the plot run options.
type Config struct {
	ReplayFile string
	OutputDir  string
	TuningFile string
	MinSamples int
	Verbose    bool
	OutputJSON string
}

// RunResult summarises one plot run for the console report and -json export.
type RunResult struct {
	ReplayFile    string                `json:"replay_file"`
	CameraID      string                `json:"camera_id,omitempty"`
	OutputDir     string                `json:"output_dir"`
	FramesRead    int                   `json:"frames_read"`
	LinesSkipped  int                   `json:"lines_skipped"`
	EventsEmitted int                   `json:"events_emitted"`
	ElapsedSecs   float64               `json:"elapsed_secs"`
	EventCounts   map[string]int64      `json:"event_counts,omitempty"`
	PlotsWritten  int                   `json:"plots_written"`
	Tracks        []sqlite.TrackSummary `json:"tracks"`
}

func main() {
	cfg := parseFlags()

	if cfg.ReplayFile == "" {
		log.Fatal("Replay file is required")
	}
	if _, err := os.Stat(cfg.ReplayFile); os.IsNotExist(err) {
		log.Fatalf("Replay file not found: %s", cfg.ReplayFile)
	}

	tuning := config.MustLoadDefaultConfig()
	if cfg.TuningFile != "" {
		loaded, err := config.LoadTuningConfig(cfg.TuningFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		tuning = loaded
	}

	engine := behavior.NewEngine(
		tracks.NewStore(tracks.ConfigFromTuning(tuning)),
		behavior.ConfigFromTuning(tuning),
	)

	cameraID := ""
	framesSeen := 0
	callback := func(frame vision.Frame) []behavior.Event {
		if frame.CameraID != "" {
			cameraID = frame.CameraID
		}
		framesSeen++
		if cfg.Verbose && framesSeen%100 == 0 {
			log.Printf("Replayed %d frames", framesSeen)
		}
		return engine.AnalyzeFrame(frame.Detections, frame.Timestamp)
	}

	stats, err := pipeline.ReplayDetectionLog(context.Background(), pipeline.ReplayConfig{
		Path:     cfg.ReplayFile,
		Callback: callback,
		Speed:    0, // As fast as possible
	})
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}
	if stats.FramesRead == 0 {
		log.Fatalf("No frames decoded from %s", cfg.ReplayFile)
	}

	// Tracks that timed out mid-log keep the history they had at eviction;
	// tracks still live when the log ends come from the active set.
	trackList := engine.Store().DrainEvicted()
	trackList = append(trackList, engine.Store().ActiveTracks()...)
	trackList = filterShortTracks(trackList, cfg.MinSamples)
	sort.Slice(trackList, func(i, j int) bool { return trackList[i].ID < trackList[j].ID })

	outputDir := monitor.MakePlotOutputDir(cfg.OutputDir, cfg.ReplayFile)
	tolerance := engine.Config().PositionTolerancePixels
	plotCount, err := monitor.SaveTrackPlots(outputDir, trackList, tolerance)
	if err != nil {
		log.Fatalf("Failed to write track plots: %v", err)
	}
	if err := monitor.SavePathsOverview(outputDir, trackList); err != nil {
		log.Printf("Warning: overview plot skipped: %v", err)
	} else {
		plotCount++
	}
	if err := monitor.SaveDwellSummary(outputDir, trackList); err != nil {
		log.Printf("Warning: dwell summary skipped: %v", err)
	} else {
		plotCount++
	}

	result := buildResult(cfg, cameraID, stats, trackList, outputDir, plotCount, engine.Stats())
	printResults(result)

	if cfg.OutputJSON != "" {
		if err := exportJSON(result, cfg.OutputJSON); err != nil {
			log.Printf("Warning: failed to export JSON: %v", err)
		} else {
			log.Printf("Results exported to: %s", cfg.OutputJSON)
		}
	}

	log.Printf("✓ Wrote %d plot(s) to %s", plotCount, outputDir)
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.ReplayFile, "replay", "", "Path to detection log to replay")
	flag.StringVar(&cfg.OutputDir, "output", "plots", "Base directory for plot output")
	flag.StringVar(&cfg.TuningFile, "config", "", "Tuning config JSON (defaults to built-in tuning)")
	flag.IntVar(&cfg.MinSamples, "min-samples", 2, "Skip tracks with fewer history samples")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Log replay progress")
	flag.StringVar(&cfg.OutputJSON, "json", "", "Write the run summary as JSON (e.g. results.json)")

	flag.Parse()

	return cfg
}

// filterShortTracks drops tracks with fewer than minSamples history entries,
// which removes single-frame detector flickers from the report.
func filterShortTracks(trackList []tracks.Track, minSamples int) []tracks.Track {
	if minSamples <= 0 {
		return trackList
	}
	kept := trackList[:0]
	for _, trk := range trackList {
		if len(trk.History) >= minSamples {
			kept = append(kept, trk)
		}
	}
	return kept
}

func buildResult(cfg Config, cameraID string, stats pipeline.ReplayStats, trackList []tracks.Track, outputDir string, plotCount int, engineStats behavior.Stats) *RunResult {
	result := &RunResult{
		ReplayFile:    cfg.ReplayFile,
		CameraID:      cameraID,
		OutputDir:     outputDir,
		FramesRead:    stats.FramesRead,
		LinesSkipped:  stats.LinesSkipped,
		EventsEmitted: stats.EventsEmitted,
		ElapsedSecs:   stats.Elapsed.Seconds(),
		PlotsWritten:  plotCount,
		Tracks:        make([]sqlite.TrackSummary, 0, len(trackList)),
	}
	if len(engineStats.Emitted) > 0 {
		result.EventCounts = make(map[string]int64, len(engineStats.Emitted))
		for typ, n := range engineStats.Emitted {
			result.EventCounts[string(typ)] = n
		}
	}
	for _, trk := range trackList {
		result.Tracks = append(result.Tracks, sqlite.SummaryFromTrack(cameraID, trk))
	}
	return result
}

func printResults(result *RunResult) {
	fmt.Println("\n=== Replay Plot Results ===")
	fmt.Printf("Replay File: %s\n", result.ReplayFile)
	if result.CameraID != "" {
		fmt.Printf("Camera: %s\n", result.CameraID)
	}
	fmt.Printf("Frames Read: %d\n", result.FramesRead)
	if result.LinesSkipped > 0 {
		fmt.Printf("Lines Skipped: %d\n", result.LinesSkipped)
	}
	fmt.Printf("Processing Time: %.2fs\n", result.ElapsedSecs)

	fmt.Println("\n--- Events ---")
	fmt.Printf("Total Emitted: %d\n", result.EventsEmitted)
	for _, typ := range []behavior.EventType{behavior.EventAppeared, behavior.EventStatic, behavior.EventMoving} {
		if n, ok := result.EventCounts[string(typ)]; ok {
			fmt.Printf("  %s: %d\n", typ, n)
		}
	}

	fmt.Println("\n--- Tracks ---")
	if len(result.Tracks) == 0 {
		fmt.Println("No tracks with enough history to plot.")
	}
	for _, ts := range result.Tracks {
		fmt.Printf("track %d (%s): %d samples over %.1fs, max displacement %.1fpx, last at (%.0f, %.0f)\n",
			ts.TrackID, ts.ClassName, ts.SampleCount, ts.DurationSeconds,
			ts.MaxDisplacement, ts.LastPosition.X, ts.LastPosition.Y)
	}
}

func exportJSON(result *RunResult, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
