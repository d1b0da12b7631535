package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/dwell.report/internal/config"
	"github.com/banshee-data/dwell.report/internal/db"
	"github.com/banshee-data/dwell.report/internal/dispatch"
	"github.com/banshee-data/dwell.report/internal/timeutil"
	"github.com/banshee-data/dwell.report/internal/version"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
	"github.com/banshee-data/dwell.report/internal/vision/monitor"
	"github.com/banshee-data/dwell.report/internal/vision/pipeline"
	sqlite "github.com/banshee-data/dwell.report/internal/vision/storage/sqlite"
	"github.com/banshee-data/dwell.report/internal/vision/tracks"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	dbFile      = flag.String("db", "dwell.db", "Path to the SQLite database file")
	cameraID    = flag.String("camera", "cam-0", "Camera identifier stamped on events and summaries")
	tuningFile  = flag.String("config", "", "Tuning config JSON, watched for live reloads")
	replayFile  = flag.String("replay", "", "Replay a recorded detection log instead of waiting for ingest")
	replaySpeed = flag.Float64("replay-speed", 1.0, "Replay pacing multiple (0 replays as fast as possible)")
	recordFile  = flag.String("record", "", "Tee analyzed frames to a detection log at this path")
	debugLog    = flag.String("debug-log", "", "Write pipeline debug streams to this file (or set DWELL_DEBUG_LOG)")
	logInterval = flag.Int("log-interval", 2, "Statistics logging interval in seconds")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// runMigrate handles "dwell migrate <action> [-db path]". Actions come
// before flags so "dwell migrate up -db /var/lib/dwell.db" reads naturally.
func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	path := fs.String("db", "dwell.db", "Path to the SQLite database file")

	var actions []string
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		actions = append(actions, args[0])
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse migrate flags: %v", err)
	}
	db.RunMigrateCommand(actions, *path)
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrate(os.Args[2:])
		return
	}

	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	// Pipeline debug streams: the flag wins, the env var is the fallback.
	debugPath := *debugLog
	if debugPath == "" {
		debugPath = os.Getenv("DWELL_DEBUG_LOG")
	}
	if debugPath != "" {
		f, err := os.OpenFile(debugPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open debug log %s: %v", debugPath, err)
		}
		defer f.Close()
		pipeline.SetLegacyLogger(f)
		log.Printf("Pipeline debug streams -> %s", debugPath)
	}

	// Tuning: embedded defaults unless a config file is given, in which
	// case the file is also watched for live reloads.
	tuning := config.MustLoadDefaultConfig()
	var watcher *config.Watcher
	if *tuningFile != "" {
		loaded, err := config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config %s: %v", *tuningFile, err)
		}
		tuning = loaded
		watcher = config.NewWatcher(*tuningFile, tuning, timeutil.RealClock{})
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	engine := behavior.NewEngine(
		tracks.NewStore(tracks.ConfigFromTuning(tuning)),
		behavior.ConfigFromTuning(tuning),
	)
	events := sqlite.NewEventStore(database)
	summaries := sqlite.NewTrackSummaryStore(database)
	stats := monitor.NewFrameStats()

	channels := dispatch.ChannelsFromTuning(tuning)
	dispatcher := dispatch.NewDispatcher(dispatch.Config{QueueSize: tuning.GetQueueSize()}, channels)
	for _, ch := range channels {
		log.Printf("Event delivery channel enabled: %s", ch.Name())
	}

	pipeCfg := &pipeline.FramePipelineConfig{
		Engine:     engine,
		CameraID:   *cameraID,
		Stats:      stats,
		Events:     events,
		Summaries:  summaries,
		Dispatcher: dispatcher,
		Watcher:    watcher,
	}
	callback := pipeCfg.NewFrameCallback()

	if *recordFile != "" {
		recorder, err := pipeline.NewDetectionLogRecorder(nil, *recordFile)
		if err != nil {
			log.Fatalf("Failed to open detection log %s: %v", *recordFile, err)
		}
		defer recorder.Close()
		callback = recorder.WrapCallback(callback)
		log.Printf("Recording detection frames to %s", *recordFile)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Delivery worker for webhook and MQTT channels.
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
		log.Print("Dispatch worker terminated")
	}()

	if watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watcher.Run(ctx)
		}()
		log.Printf("Watching %s for tuning changes", *tuningFile)
	}

	// Periodic throughput logging, mirrored by /api/stats.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Duration(*logInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats.LogStats()
			}
		}
	}()

	// HTTP server: ingest, live state, exports, and debug plots.
	wg.Add(1)
	go func() {
		defer wg.Done()
		server := monitor.NewWebServer(monitor.WebServerConfig{
			Address:    *listen,
			CameraID:   *cameraID,
			Engine:     engine,
			Stats:      stats,
			Frames:     callback,
			Events:     events,
			Summaries:  summaries,
			Watcher:    watcher,
			Dispatcher: dispatcher,
			DB:         database,
		})
		if err := server.Start(ctx); err != nil {
			log.Printf("Web server error: %v", err)
		}
	}()

	if *replayFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replayStats, err := pipeline.ReplayDetectionLog(ctx, pipeline.ReplayConfig{
				Path:     *replayFile,
				Callback: callback,
				Speed:    *replaySpeed,
			})
			if err != nil && err != context.Canceled {
				log.Printf("Replay error: %v", err)
			}
			log.Printf("Replay finished: %d frames, %d events, %d lines skipped in %v",
				replayStats.FramesRead, replayStats.EventsEmitted, replayStats.LinesSkipped,
				replayStats.Elapsed.Round(time.Millisecond))
			stop()
		}()
		log.Printf("Replaying %s at %gx", *replayFile, *replaySpeed)
	} else {
		log.Printf("Waiting for detection frames on POST %s/api/frames", *listen)
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
