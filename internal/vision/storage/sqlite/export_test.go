package sqlite

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
)

func TestWriteEventsCSV(t *testing.T) {
	records := []EventRecord{
		{
			EventID:     "ev-a",
			Type:        "appeared",
			CameraID:    "cam-entrance",
			Timestamp:   storeBase,
			TrackingID:  7,
			ClassName:   "person",
			Position:    vision.Position{X: 320, Y: 240},
			Confidence:  0.91,
			BBox:        vision.BoundingBox{Left: 295, Top: 140, Width: 50, Height: 200},
			FrameNumber: 1200,
		},
		{
			EventID:         "ev-b",
			Type:            "static",
			CameraID:        "cam-entrance",
			Timestamp:       storeBase.Add(31 * time.Second),
			TrackingID:      7,
			ClassName:       "person",
			Position:        vision.Position{X: 321, Y: 241},
			Confidence:      0.9,
			DurationSeconds: 31.25,
			BBox:            vision.BoundingBox{Left: 296, Top: 141, Width: 50, Height: 200},
			FrameNumber:     2130,
		},
	}

	var buf bytes.Buffer
	if err := WriteEventsCSV(&buf, records); err != nil {
		t.Fatalf("WriteEventsCSV: %v", err)
	}

	got, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse generated csv: %v", err)
	}
	want := [][]string{
		eventCSVHeader,
		{
			"ev-a", "appeared", "cam-entrance", "2026-03-14T09:00:00Z",
			"7", "person", "320.00", "240.00", "0.910", "0.00",
			"295.00", "140.00", "50.00", "200.00", "1200",
		},
		{
			"ev-b", "static", "cam-entrance", "2026-03-14T09:00:31Z",
			"7", "person", "321.00", "241.00", "0.900", "31.25",
			"296.00", "141.00", "50.00", "200.00", "2130",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CSV rows mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteSummariesCSV(t *testing.T) {
	summaries := []TrackSummary{
		{
			TrackID:         12,
			CameraID:        "cam-entrance",
			ClassName:       "person",
			FirstSeen:       storeBase,
			LastSeen:        storeBase.Add(45 * time.Second),
			DurationSeconds: 45,
			SampleCount:     90,
			MaxDisplacement: 12.5,
			LastPosition:    vision.Position{X: 330, Y: 244},
		},
	}

	var buf bytes.Buffer
	if err := WriteSummariesCSV(&buf, summaries); err != nil {
		t.Fatalf("WriteSummariesCSV: %v", err)
	}

	got, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse generated csv: %v", err)
	}
	want := [][]string{
		summaryCSVHeader,
		{
			"12", "cam-entrance", "person",
			"2026-03-14T09:00:00Z", "2026-03-14T09:00:45Z",
			"45.00", "90", "12.50", "330.00", "244.00",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CSV rows mismatch (-want +got):\n%s", diff)
	}
}

func TestEventStoreExportCSV(t *testing.T) {
	store := NewEventStore(newTestDB(t))

	for i := 0; i < 3; i++ {
		ev := storedEvent("ev-"+string(rune('a'+i)), behavior.EventAppeared, int64(i), storeBase.Add(time.Duration(i)*time.Second))
		if err := store.InsertEvent("cam-entrance", ev); err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	path, rows, err := store.ExportCSV("dwell-test-events.csv", storeBase, storeBase.Add(time.Minute))
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	defer os.Remove(path)

	if rows != 3 {
		t.Errorf("Exported rows: got %d, want 3", rows)
	}
	if filepath.Dir(path) != filepath.Clean(os.TempDir()) {
		t.Errorf("Export landed in %s, want the temp dir", filepath.Dir(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header plus 3 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "event_id,") {
		t.Errorf("First line should be the header, got %q", lines[0])
	}
}

func TestSummaryStoreExportCSV(t *testing.T) {
	store := NewTrackSummaryStore(newTestDB(t))

	err := store.InsertSummary(TrackSummary{
		TrackID:         5,
		CameraID:        "cam-entrance",
		ClassName:       "person",
		FirstSeen:       storeBase,
		LastSeen:        storeBase.Add(20 * time.Second),
		DurationSeconds: 20,
		SampleCount:     40,
		LastPosition:    vision.Position{X: 100, Y: 120},
	})
	if err != nil {
		t.Fatalf("InsertSummary: %v", err)
	}

	path, rows, err := store.ExportCSV("dwell-test-summaries.csv", storeBase, storeBase.Add(time.Minute))
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	defer os.Remove(path)

	if rows != 1 {
		t.Errorf("Exported rows: got %d, want 1", rows)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}
	if !strings.Contains(string(data), "person") {
		t.Errorf("Export should carry the class name, got:\n%s", data)
	}
}

func TestSafeExportPath(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "exports/.."} {
		if _, err := safeExportPath(bad); err == nil {
			t.Errorf("safeExportPath(%q) should fail", bad)
		}
	}

	// A traversal attempt is reduced to its final component and anchored
	// under the export dir rather than rejected.
	path, err := safeExportPath("../../etc/passwd")
	if err != nil {
		t.Fatalf("safeExportPath: %v", err)
	}
	if filepath.Dir(path) != filepath.Clean(os.TempDir()) {
		t.Errorf("Traversal name escaped to %s", path)
	}
	if filepath.Base(path) != "passwd" {
		t.Errorf("Base: got %q, want passwd", filepath.Base(path))
	}

	path, err = safeExportPath("week 12 report?.csv")
	if err != nil {
		t.Fatalf("safeExportPath: %v", err)
	}
	if base := filepath.Base(path); base != "week_12_report_.csv" {
		t.Errorf("Sanitized base: got %q", base)
	}
}
