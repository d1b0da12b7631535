package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/dwell.report/internal/config"
	"github.com/banshee-data/dwell.report/internal/db"
	"github.com/banshee-data/dwell.report/internal/dispatch"
	"github.com/banshee-data/dwell.report/internal/testutil"
	"github.com/banshee-data/dwell.report/internal/timeutil"
	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
	sqlite "github.com/banshee-data/dwell.report/internal/vision/storage/sqlite"
	"github.com/banshee-data/dwell.report/internal/vision/tracks"
)

var monitorBase = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func personDet(id int64, x, y float64, frame int64) vision.Detection {
	return vision.Detection{
		TrackID:     id,
		ClassID:     0,
		Confidence:  0.9,
		BBox:        vision.BoundingBox{Left: x - 25, Top: y - 50, Width: 50, Height: 100},
		FrameNumber: frame,
	}
}

func newTestEngine() *behavior.Engine {
	return behavior.NewEngine(tracks.NewStore(tracks.Config{}), behavior.Config{})
}

func newTestServer(cfg WebServerConfig) *WebServer {
	if cfg.Address == "" {
		cfg.Address = ":0"
	}
	if cfg.Engine == nil {
		cfg.Engine = newTestEngine()
	}
	if cfg.Stats == nil {
		cfg.Stats = NewFrameStats()
	}
	return NewWebServer(cfg)
}

func serveRequest(server *WebServer, method, target string, body []byte) *httptest.ResponseRecorder {
	req := testutil.NewTestRequest(method, target, bytes.NewReader(body))
	rr := testutil.NewTestRecorder()
	server.setupRoutes().ServeHTTP(rr, req)
	return rr
}

func TestNewWebServer(t *testing.T) {
	stats := NewFrameStats()
	engine := newTestEngine()

	server := newTestServer(WebServerConfig{
		Address:  ":0",
		CameraID: "cam-entrance",
		Engine:   engine,
		Stats:    stats,
	})

	if server == nil {
		t.Fatal("NewWebServer returned nil")
	}
	if server.stats != stats {
		t.Error("WebServer stats not set correctly")
	}
	if server.engine != engine {
		t.Error("WebServer engine not set correctly")
	}
	if server.cameraID != "cam-entrance" {
		t.Error("WebServer cameraID not set correctly")
	}
}

func TestWebServer_HealthHandler(t *testing.T) {
	server := newTestServer(WebServerConfig{})

	rr := serveRequest(server, "GET", "/health", nil)
	testutil.AssertStatusCode(t, http.StatusOK, rr.Code)

	var payload map[string]string
	testutil.DecodeJSON(t, rr.Body, &payload)
	if payload["status"] != "ok" {
		t.Errorf("status: got %q, want %q", payload["status"], "ok")
	}
	if payload["service"] != "dwell" {
		t.Errorf("service: got %q, want %q", payload["service"], "dwell")
	}
}

func TestWebServer_StatusHandler(t *testing.T) {
	stats := NewFrameStats()
	server := newTestServer(WebServerConfig{CameraID: "cam-entrance", Stats: stats})

	stats.AddFrame(3, 2*time.Millisecond)
	stats.LogStats()

	rr := serveRequest(server, "GET", "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Status handler returned %d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "dwell.report") {
		t.Error("Response should contain 'dwell.report'")
	}
	if !strings.Contains(body, "cam-entrance") {
		t.Error("Response should contain the camera id")
	}
	if !strings.Contains(body, "Frames/sec") {
		t.Error("Response should contain the throughput section after stats are logged")
	}

	// Only the root path renders the status page.
	rr = serveRequest(server, "GET", "/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Unknown path returned %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestWebServer_FramesHandler(t *testing.T) {
	engine := newTestEngine()
	server := newTestServer(WebServerConfig{
		Engine: engine,
		Frames: func(frame vision.Frame) []behavior.Event {
			return engine.AnalyzeFrame(frame.Detections, frame.Timestamp)
		},
	})

	frame := vision.Frame{
		CameraID:    "cam-entrance",
		FrameNumber: 12,
		Timestamp:   monitorBase,
		Detections:  []vision.Detection{personDet(7, 100, 200, 12)},
	}
	body, _ := json.Marshal(frame)

	rr := serveRequest(server, "POST", "/api/frames", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("Frames handler returned %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]interface{}
	testutil.DecodeJSON(t, rr.Body, &resp)
	if resp["events_emitted"] != float64(1) {
		t.Errorf("events_emitted: got %v, want 1 (the appearance)", resp["events_emitted"])
	}
	if resp["detections"] != float64(1) {
		t.Errorf("detections: got %v, want 1", resp["detections"])
	}

	if _, ok := engine.Store().Track(7); !ok {
		t.Error("Frame should have created track 7 in the store")
	}

	rr = serveRequest(server, "POST", "/api/frames", []byte("{not json"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Malformed body returned %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = serveRequest(server, "GET", "/api/frames", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET returned %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestWebServer_FramesHandlerWithoutPipeline(t *testing.T) {
	server := newTestServer(WebServerConfig{})

	rr := serveRequest(server, "POST", "/api/frames", []byte(`{"frame_number": 1}`))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected %d without a frame sink, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestWebServer_TracksHandler(t *testing.T) {
	engine := newTestEngine()
	server := newTestServer(WebServerConfig{CameraID: "cam-entrance", Engine: engine})

	engine.AnalyzeFrame([]vision.Detection{personDet(7, 100, 200, 0)}, monitorBase)
	engine.AnalyzeFrame([]vision.Detection{personDet(7, 102, 201, 1)}, monitorBase.Add(time.Second))

	rr := serveRequest(server, "GET", "/api/tracks", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Tracks handler returned %d", rr.Code)
	}

	var resp struct {
		CameraID string      `json:"camera_id"`
		Count    int         `json:"count"`
		Tracks   []trackView `json:"tracks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Tracks) != 1 {
		t.Fatalf("Expected 1 track, got count=%d len=%d", resp.Count, len(resp.Tracks))
	}
	trk := resp.Tracks[0]
	if trk.TrackID != 7 || trk.ClassName != "person" {
		t.Errorf("Track identity: got %d/%q, want 7/person", trk.TrackID, trk.ClassName)
	}
	if trk.Samples != 2 {
		t.Errorf("Samples: got %d, want 2", trk.Samples)
	}
	if trk.History != nil {
		t.Error("History should be omitted without history=1")
	}

	rr = serveRequest(server, "GET", "/api/tracks?history=1", nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Tracks[0].History) != 2 {
		t.Errorf("History length: got %d, want 2", len(resp.Tracks[0].History))
	}
}

func TestWebServer_EventsHandler(t *testing.T) {
	engine := newTestEngine()
	server := newTestServer(WebServerConfig{Engine: engine})

	engine.AnalyzeFrame([]vision.Detection{personDet(7, 100, 200, 0)}, monitorBase)

	rr := serveRequest(server, "GET", "/api/events", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Events handler returned %d", rr.Code)
	}
	var resp struct {
		Source string           `json:"source"`
		Count  int              `json:"count"`
		Events []behavior.Event `json:"events"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Source != "ring" || resp.Count != 1 {
		t.Errorf("Expected 1 ring event, got source=%q count=%d", resp.Source, resp.Count)
	}
	if resp.Events[0].Type != behavior.EventAppeared {
		t.Errorf("Event type: got %q, want %q", resp.Events[0].Type, behavior.EventAppeared)
	}

	rr = serveRequest(server, "GET", "/api/events?type=static", nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("Type filter should exclude the appearance, got %d events", resp.Count)
	}

	rr = serveRequest(server, "GET", "/api/events?source=db", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("source=db without a store returned %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}

	rr = serveRequest(server, "GET", "/api/events?source=bogus", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Invalid source returned %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = serveRequest(server, "GET", "/api/events?limit=nope", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Invalid limit returned %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestWebServer_EventsHandlerFromDB(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "dwell.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer database.Close()
	store := sqlite.NewEventStore(database)

	err = store.InsertEvent("cam-entrance", behavior.Event{
		EventID:    "ev-db",
		Type:       behavior.EventStatic,
		Timestamp:  monitorBase,
		TrackingID: 7,
		ClassName:  "person",
		Position:   vision.Position{X: 100, Y: 200},
		Confidence: 0.9,
		Metadata:   behavior.Metadata{DurationSeconds: 31.5},
	})
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	server := newTestServer(WebServerConfig{Events: store})

	rr := serveRequest(server, "GET", "/api/events?source=db", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Events handler returned %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Source string               `json:"source"`
		Count  int                  `json:"count"`
		Events []sqlite.EventRecord `json:"events"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Source != "db" || resp.Count != 1 {
		t.Fatalf("Expected 1 db event, got source=%q count=%d", resp.Source, resp.Count)
	}
	if resp.Events[0].EventID != "ev-db" || resp.Events[0].DurationSeconds != 31.5 {
		t.Errorf("Record roundtrip: got %+v", resp.Events[0])
	}
}

func TestWebServer_StatsHandler(t *testing.T) {
	engine := newTestEngine()
	stats := NewFrameStats()
	dispatcher := dispatch.NewDispatcher(dispatch.Config{}, nil)
	server := newTestServer(WebServerConfig{
		CameraID:   "cam-entrance",
		Engine:     engine,
		Stats:      stats,
		Dispatcher: dispatcher,
	})

	engine.AnalyzeFrame([]vision.Detection{personDet(7, 100, 200, 0)}, monitorBase)
	stats.AddFrame(1, time.Millisecond)
	stats.AddEvents(1)

	rr := serveRequest(server, "GET", "/api/stats", nil)
	testutil.AssertStatusCode(t, http.StatusOK, rr.Code)

	var payload map[string]interface{}
	testutil.DecodeJSON(t, rr.Body, &payload)
	if payload["camera_id"] != "cam-entrance" {
		t.Errorf("camera_id: got %v", payload["camera_id"])
	}
	if payload["total_frames"] != float64(1) {
		t.Errorf("total_frames: got %v, want 1", payload["total_frames"])
	}
	if _, ok := payload["engine"]; !ok {
		t.Error("Response should contain engine stats")
	}
	if _, ok := payload["version"]; !ok {
		t.Error("Response should carry the build version")
	}
	if _, ok := payload["dispatch"]; !ok {
		t.Error("Response should contain dispatch stats when a dispatcher is attached")
	}
	if _, ok := payload["analysis_latency_ms"]; !ok {
		t.Error("Response should contain analysis latency percentiles")
	}
}

func TestWebServer_ConfigHandler(t *testing.T) {
	server := newTestServer(WebServerConfig{})

	rr := serveRequest(server, "GET", "/api/config", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Without a watcher returned %d, want %d", rr.Code, http.StatusNotFound)
	}

	raw := `{"min_confidence": 0.6, "webhook": {"enabled": true, "url": "https://example.com/hook", "headers": {"Authorization": "Bearer sekret-token"}}}`
	var tuning config.TuningConfig
	if err := json.Unmarshal([]byte(raw), &tuning); err != nil {
		t.Fatalf("Failed to build tuning config: %v", err)
	}
	watcher := config.NewWatcher(filepath.Join(t.TempDir(), "tuning.json"), &tuning, timeutil.NewMockClock(monitorBase))

	server = newTestServer(WebServerConfig{Watcher: watcher})
	rr = serveRequest(server, "GET", "/api/config", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Config handler returned %d", rr.Code)
	}

	body := rr.Body.String()
	if strings.Contains(body, "sekret-token") {
		t.Error("Config response must not leak webhook header values")
	}
	if !strings.Contains(body, "********") {
		t.Error("Config response should carry redacted header placeholders")
	}
	if !strings.Contains(body, `"min_confidence":0.6`) {
		t.Errorf("Config response should include tuning values, got: %s", body)
	}
}

func TestWebServer_ChartHandlers(t *testing.T) {
	engine := newTestEngine()
	server := newTestServer(WebServerConfig{CameraID: "cam-entrance", Engine: engine})

	engine.AnalyzeFrame([]vision.Detection{personDet(7, 100, 200, 0), personDet(8, 400, 300, 0)}, monitorBase)

	for _, target := range []string{"/debug/charts/tracks", "/debug/charts/events"} {
		rr := serveRequest(server, "GET", target, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s returned %d", target, rr.Code)
			continue
		}
		if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
			t.Errorf("%s content type: got %q", target, ct)
		}
		if !strings.Contains(rr.Body.String(), "echarts") {
			t.Errorf("%s should render an echarts document", target)
		}
	}
}

func TestWebServer_TrackPlotHandler(t *testing.T) {
	engine := newTestEngine()
	server := newTestServer(WebServerConfig{Engine: engine})

	for i := 0; i < 3; i++ {
		det := personDet(7, 100+float64(i), 200, int64(i))
		engine.AnalyzeFrame([]vision.Detection{det}, monitorBase.Add(time.Duration(i)*time.Second))
	}

	rr := serveRequest(server, "GET", "/debug/plot/track?id=7", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Track plot returned %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content type: got %q, want image/png", ct)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("Response should be a PNG image")
	}

	rr = serveRequest(server, "GET", "/debug/plot/track", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Missing id returned %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = serveRequest(server, "GET", "/debug/plot/track?id=999", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Unknown id returned %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestWebServer_AdminRoutesAttached(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "dwell.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer database.Close()

	server := newTestServer(WebServerConfig{DB: database})

	// tsweb guards /debug/ with its own access checks, so only assert the
	// route exists.
	rr := serveRequest(server, "GET", "/debug/", nil)
	if rr.Code == http.StatusNotFound {
		t.Error("/debug/ should be routed when a DB is configured")
	}
}
