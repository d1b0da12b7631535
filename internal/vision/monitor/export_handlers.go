package monitor

import (
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/dwell.report/internal/httputil"
	sqlite "github.com/banshee-data/dwell.report/internal/vision/storage/sqlite"
)

// exportRange reads optional RFC3339 start and end parameters. Defaults
// cover everything stored so far.
func exportRange(r *http.Request) (time.Time, time.Time, error) {
	start := time.Unix(0, 0)
	end := time.Now().Add(time.Second)
	if v := r.URL.Query().Get("start"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, err
		}
		start = parsed
	}
	if v := r.URL.Query().Get("end"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, err
		}
		end = parsed
	}
	return start, end, nil
}

// handleExportEvents streams stored events as a CSV download. With a
// file=name parameter it instead writes the CSV server side; the store
// anchors that path under the temp directory regardless of what the
// caller supplies.
func (ws *WebServer) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.events == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no event store configured")
		return
	}
	start, end, err := exportRange(r)
	if err != nil {
		httputil.BadRequest(w, "invalid time range: "+err.Error())
		return
	}

	if name := r.URL.Query().Get("file"); name != "" {
		path, rows, err := ws.events.ExportCSV(name, start, end)
		if err != nil {
			httputil.InternalServerError(w, "export failed: "+err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"path":   path,
			"rows":   rows,
		})
		return
	}

	records, err := ws.events.EventsInRange(start, end, r.URL.Query().Get("type"))
	if err != nil {
		httputil.InternalServerError(w, "failed to query events: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.csv"`)
	if err := sqlite.WriteEventsCSV(w, records); err != nil {
		// Headers are gone, so the broken download is all the client sees.
		log.Printf("Failed to stream events csv: %v", err)
	}
}

// handleExportSummaries is the summary-table counterpart of
// handleExportEvents.
func (ws *WebServer) handleExportSummaries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.summaries == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no summary store configured")
		return
	}
	start, end, err := exportRange(r)
	if err != nil {
		httputil.BadRequest(w, "invalid time range: "+err.Error())
		return
	}

	if name := r.URL.Query().Get("file"); name != "" {
		path, rows, err := ws.summaries.ExportCSV(name, start, end)
		if err != nil {
			httputil.InternalServerError(w, "export failed: "+err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"path":   path,
			"rows":   rows,
		})
		return
	}

	summaries, err := ws.summaries.SummariesInRange(start, end)
	if err != nil {
		httputil.InternalServerError(w, "failed to query summaries: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="summaries.csv"`)
	if err := sqlite.WriteSummariesCSV(w, summaries); err != nil {
		log.Printf("Failed to stream summaries csv: %v", err)
	}
}
