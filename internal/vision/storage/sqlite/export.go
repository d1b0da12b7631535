package sqlite

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/dwell.report/internal/security"
)

// exportDir anchors all file exports under a single directory so a
// caller-supplied path can never steer a write outside it.
var exportDir = func() string {
	tmp := os.TempDir()
	abs, err := filepath.Abs(tmp)
	if err != nil {
		log.Printf("export: could not resolve absolute temp dir from %q: %v", tmp, err)
		return tmp
	}
	return filepath.Clean(abs)
}()

// safeExportPath reduces userPath to its final component, sanitizes it,
// and anchors it under exportDir. The result is checked again with the
// shared security helper before any file is created.
func safeExportPath(userPath string) (string, error) {
	if userPath == "" {
		return "", fmt.Errorf("empty export path")
	}
	base := filepath.Base(userPath)
	if base == "." || base == ".." || base == "" {
		return "", fmt.Errorf("invalid export filename %q", userPath)
	}
	name := security.SanitizeFilename(base)

	joined := filepath.Join(exportDir, name)
	absPath, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("cannot resolve export path: %w", err)
	}
	cleanPath := filepath.Clean(absPath)
	if cleanPath != exportDir && !strings.HasPrefix(cleanPath, exportDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("export path escapes %s", exportDir)
	}
	if err := security.ValidateExportPath(cleanPath); err != nil {
		return "", fmt.Errorf("invalid export path: %w", err)
	}
	return cleanPath, nil
}

var eventCSVHeader = []string{
	"event_id", "event_type", "camera_id", "timestamp",
	"tracking_id", "class_name", "position_x", "position_y",
	"confidence", "duration_s",
	"bbox_left", "bbox_top", "bbox_width", "bbox_height", "frame_number",
}

// WriteEventsCSV writes records to w as CSV, header row first. Rows
// keep the column order of the events table so exports line up with
// ad-hoc SQL output.
func WriteEventsCSV(w io.Writer, records []EventRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(eventCSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.EventID,
			rec.Type,
			rec.CameraID,
			rec.Timestamp.UTC().Format(time.RFC3339Nano),
			strconv.FormatInt(rec.TrackingID, 10),
			rec.ClassName,
			fmt.Sprintf("%.2f", rec.Position.X),
			fmt.Sprintf("%.2f", rec.Position.Y),
			fmt.Sprintf("%.3f", rec.Confidence),
			fmt.Sprintf("%.2f", rec.DurationSeconds),
			fmt.Sprintf("%.2f", rec.BBox.Left),
			fmt.Sprintf("%.2f", rec.BBox.Top),
			fmt.Sprintf("%.2f", rec.BBox.Width),
			fmt.Sprintf("%.2f", rec.BBox.Height),
			strconv.FormatInt(rec.FrameNumber, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write event %s: %w", rec.EventID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

var summaryCSVHeader = []string{
	"track_id", "camera_id", "class_name", "first_seen", "last_seen",
	"duration_s", "sample_count", "max_displacement_px", "last_x", "last_y",
}

// WriteSummariesCSV writes summaries to w as CSV, header row first.
func WriteSummariesCSV(w io.Writer, summaries []TrackSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryCSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, summary := range summaries {
		row := []string{
			strconv.FormatInt(summary.TrackID, 10),
			summary.CameraID,
			summary.ClassName,
			summary.FirstSeen.UTC().Format(time.RFC3339Nano),
			summary.LastSeen.UTC().Format(time.RFC3339Nano),
			fmt.Sprintf("%.2f", summary.DurationSeconds),
			strconv.Itoa(summary.SampleCount),
			fmt.Sprintf("%.2f", summary.MaxDisplacement),
			fmt.Sprintf("%.2f", summary.LastPosition.X),
			fmt.Sprintf("%.2f", summary.LastPosition.Y),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write summary for track %d: %w", summary.TrackID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes every event in [start, end) to a CSV file anchored
// under the export directory. Only the final component of userPath is
// used. Returns the path actually written and the row count.
func (s *EventStore) ExportCSV(userPath string, start, end time.Time) (string, int, error) {
	safePath, err := safeExportPath(userPath)
	if err != nil {
		return "", 0, err
	}
	records, err := s.EventsInRange(start, end, "")
	if err != nil {
		return "", 0, err
	}
	f, err := os.Create(safePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()
	if err := WriteEventsCSV(f, records); err != nil {
		return "", 0, err
	}
	log.Printf("Exported %d events to %s", len(records), safePath)
	return safePath, len(records), nil
}

// ExportCSV writes every summary whose track departed in [start, end)
// to a CSV file anchored under the export directory. Only the final
// component of userPath is used. Returns the path actually written and
// the row count.
func (s *TrackSummaryStore) ExportCSV(userPath string, start, end time.Time) (string, int, error) {
	safePath, err := safeExportPath(userPath)
	if err != nil {
		return "", 0, err
	}
	summaries, err := s.SummariesInRange(start, end)
	if err != nil {
		return "", 0, err
	}
	f, err := os.Create(safePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()
	if err := WriteSummariesCSV(f, summaries); err != nil {
		return "", 0, err
	}
	log.Printf("Exported %d track summaries to %s", len(summaries), safePath)
	return safePath, len(summaries), nil
}
