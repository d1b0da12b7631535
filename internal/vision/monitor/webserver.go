package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/dwell.report/internal/config"
	"github.com/banshee-data/dwell.report/internal/db"
	"github.com/banshee-data/dwell.report/internal/dispatch"
	"github.com/banshee-data/dwell.report/internal/httputil"
	"github.com/banshee-data/dwell.report/internal/version"
	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
	sqlite "github.com/banshee-data/dwell.report/internal/vision/storage/sqlite"
	"github.com/banshee-data/dwell.report/internal/vision/tracks"
)

//go:embed status.html
var StatusHTML embed.FS

// FrameSink accepts one decoded frame and returns the events its analysis
// emitted. The HTTP ingest route hands frames to the pipeline through this.
type FrameSink func(frame vision.Frame) []behavior.Event

// WebServer handles the HTTP interface for monitoring the frame pipeline.
// It provides endpoints for health checks, frame ingest, and real-time
// track and event state.
type WebServer struct {
	address    string
	cameraID   string
	engine     *behavior.Engine
	stats      *FrameStats
	frames     FrameSink
	events     *sqlite.EventStore
	summaries  *sqlite.TrackSummaryStore
	watcher    *config.Watcher
	dispatcher *dispatch.Dispatcher
	database   *db.DB
	server     *http.Server
}

// WebServerConfig contains configuration options for the web server.
// Engine and Stats are required; the rest enable routes when present.
type WebServerConfig struct {
	Address    string
	CameraID   string
	Engine     *behavior.Engine
	Stats      *FrameStats
	Frames     FrameSink
	Events     *sqlite.EventStore
	Summaries  *sqlite.TrackSummaryStore
	Watcher    *config.Watcher
	Dispatcher *dispatch.Dispatcher
	DB         *db.DB
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(cfg WebServerConfig) *WebServer {
	ws := &WebServer{
		address:    cfg.Address,
		cameraID:   cfg.CameraID,
		engine:     cfg.Engine,
		stats:      cfg.Stats,
		frames:     cfg.Frames,
		events:     cfg.Events,
		summaries:  cfg.Summaries,
		watcher:    cfg.Watcher,
		dispatcher: cfg.Dispatcher,
		database:   cfg.DB,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: LoggingMiddleware(ws.setupRoutes()),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/frames", ws.handleFrames)
	mux.HandleFunc("/api/tracks", ws.handleTracks)
	mux.HandleFunc("/api/events", ws.handleEvents)
	mux.HandleFunc("/api/summaries", ws.handleSummaries)
	mux.HandleFunc("/api/export/events", ws.handleExportEvents)
	mux.HandleFunc("/api/export/summaries", ws.handleExportSummaries)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/api/config", ws.handleConfig)
	mux.HandleFunc("/debug/charts/tracks", ws.handleTracksChart)
	mux.HandleFunc("/debug/charts/events", ws.handleEventsChart)
	mux.HandleFunc("/debug/plot/track", ws.handleTrackPlot)

	if ws.database != nil {
		ws.database.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "dwell",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleFrames accepts one frame of detections as JSON and feeds it to the
// analysis pipeline. The response reports how many events the frame emitted.
func (ws *WebServer) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.frames == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no frame pipeline attached")
		return
	}

	var frame vision.Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		httputil.BadRequest(w, "invalid frame payload: "+err.Error())
		return
	}
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}

	emitted := ws.frames(frame)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"frame_number":   frame.FrameNumber,
		"detections":     len(frame.Detections),
		"events_emitted": len(emitted),
	})
}

// trackView is the JSON shape for one active track.
type trackView struct {
	TrackID     int64                   `json:"track_id"`
	ClassName   string                  `json:"class_name"`
	Confidence  float64                 `json:"confidence"`
	Position    vision.Position         `json:"position"`
	BBox        vision.BoundingBox      `json:"bbox"`
	FrameNumber int64                   `json:"frame_number"`
	FirstSeen   time.Time               `json:"first_seen"`
	LastSeen    time.Time               `json:"last_seen"`
	AgeSeconds  float64                 `json:"age_seconds"`
	Samples     int                     `json:"samples"`
	Static      bool                    `json:"static"`
	History     []tracks.PositionSample `json:"history,omitempty"`
}

// handleTracks returns the current active track set. Pass history=1 to
// include each track's full position history.
func (ws *WebServer) handleTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	includeHistory := r.URL.Query().Get("history") == "1"
	cfg := ws.engine.Config()
	store := ws.engine.Store()

	active := store.ActiveTracks()
	views := make([]trackView, 0, len(active))
	for _, trk := range active {
		static, ok := store.IsStatic(trk.ID, cfg.PositionTolerancePixels, cfg.MinFramesForStatic)
		view := trackView{
			TrackID:     trk.ID,
			ClassName:   trk.ClassName,
			Confidence:  trk.Confidence,
			Position:    trk.Center,
			BBox:        trk.BBox,
			FrameNumber: trk.FrameNumber,
			FirstSeen:   trk.FirstSeenAt,
			LastSeen:    trk.LastSeenAt,
			AgeSeconds:  trk.LastSeenAt.Sub(trk.FirstSeenAt).Seconds(),
			Samples:     len(trk.History),
			Static:      ok && static,
		}
		if includeHistory {
			view.History = trk.History
		}
		views = append(views, view)
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"camera_id": ws.cameraID,
		"count":     len(views),
		"tracks":    views,
	})
}

// handleEvents returns recent behavior events. Query params:
//
//	limit (optional, default 100)
//	type (optional: appeared, static, moving)
//	source (optional: ring for the in-memory buffer, db for persisted events)
func (ws *WebServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	eventType := r.URL.Query().Get("type")
	source := r.URL.Query().Get("source")

	switch source {
	case "", "ring":
		events := ws.engine.RecentEvents(limit)
		if eventType != "" {
			filtered := events[:0]
			for _, ev := range events {
				if string(ev.Type) == eventType {
					filtered = append(filtered, ev)
				}
			}
			events = filtered
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"source": "ring",
			"count":  len(events),
			"events": events,
		})
	case "db":
		if ws.events == nil {
			httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no event store configured")
			return
		}
		records, err := ws.events.RecentEvents(limit, eventType)
		if err != nil {
			httputil.InternalServerError(w, "failed to query events: "+err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"source": "db",
			"count":  len(records),
			"events": records,
		})
	default:
		httputil.BadRequest(w, "invalid 'source' parameter, want ring or db")
	}
}

// handleSummaries returns recently departed tracks from the summary table.
func (ws *WebServer) handleSummaries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.summaries == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no summary store configured")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	summaries, err := ws.summaries.RecentSummaries(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to query summaries: "+err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(summaries),
		"summaries": summaries,
	})
}

// handleStats returns a composite counters document: pipeline throughput,
// engine and store state, and delivery queue counters when a dispatcher is
// attached.
func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	p50, p85, p95 := ws.stats.AnalysisPercentiles()
	totalFrames, totalEvents := ws.stats.Totals()

	payload := map[string]interface{}{
		"camera_id":      ws.cameraID,
		"version":        version.Version,
		"uptime_seconds": ws.stats.GetUptime().Seconds(),
		"total_frames":   totalFrames,
		"total_events":   totalEvents,
		"analysis_latency_ms": map[string]float64{
			"p50": p50,
			"p85": p85,
			"p95": p95,
		},
		"engine": ws.engine.Stats(),
	}
	if snap := ws.stats.GetLatestSnapshot(); snap != nil {
		payload["rates"] = map[string]interface{}{
			"frames_per_sec":     snap.FramesPerSec,
			"detections_per_sec": snap.DetectionsPerSec,
			"events_per_sec":     snap.EventsPerSec,
			"as_of":              snap.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	if ws.dispatcher != nil {
		payload["dispatch"] = ws.dispatcher.Stats()
	}
	if ws.watcher != nil {
		payload["config_reloads"] = ws.watcher.Stats()
	}

	httputil.WriteJSON(w, http.StatusOK, payload)
}

// handleConfig returns the current tuning with credential fields redacted.
func (ws *WebServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.watcher == nil {
		httputil.NotFound(w, "no tuning config loaded")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ws.watcher.Current().Redacted())
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	engineStats := ws.engine.Stats()
	totalFrames, totalEvents := ws.stats.Totals()

	data := struct {
		CameraID     string
		HTTPAddress  string
		Uptime       string
		TotalFrames  string
		TotalEvents  string
		ActiveTracks int
		Flagged      int
		Stats        *StatsSnapshot
		HasDB        bool
	}{
		CameraID:     ws.cameraID,
		HTTPAddress:  ws.address,
		Uptime:       ws.stats.GetUptime().Round(time.Second).String(),
		TotalFrames:  FormatWithCommas(totalFrames),
		TotalEvents:  FormatWithCommas(totalEvents),
		ActiveTracks: engineStats.Tracks.ActiveTracks,
		Flagged:      engineStats.FlaggedStatic,
		Stats:        ws.stats.GetLatestSnapshot(),
		HasDB:        ws.database != nil,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// Close shuts down the web server
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
