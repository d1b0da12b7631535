package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/dwell.report/internal/httputil"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleTracksChart renders current track positions as a scatter plot in
// image pixel coordinates. Tracks currently inside the static window are
// drawn in a separate series so loiter candidates stand out.
func (ws *WebServer) handleTracksChart(w http.ResponseWriter, r *http.Request) {
	cfg := ws.engine.Config()
	store := ws.engine.Store()
	tracks := store.ActiveTracks()

	movingPts := make([]opts.ScatterData, 0, len(tracks))
	staticPts := make([]opts.ScatterData, 0, len(tracks))
	maxX, maxY := 0.0, 0.0
	for _, trk := range tracks {
		x := trk.Center.X
		y := trk.Center.Y
		if x > maxX {
			maxX = x
		}
		if y > maxY {
			maxY = y
		}
		age := trk.LastSeenAt.Sub(trk.FirstSeenAt).Seconds()
		pt := opts.ScatterData{Value: []interface{}{x, y, age}}
		if static, ok := store.IsStatic(trk.ID, cfg.PositionTolerancePixels, cfg.MinFramesForStatic); ok && static {
			staticPts = append(staticPts, pt)
		} else {
			movingPts = append(movingPts, pt)
		}
	}

	padX := maxX * 1.05
	if padX == 0 {
		padX = 1.0
	}
	padY := maxY * 1.05
	if padY == 0 {
		padY = 1.0
	}

	subtitle := fmt.Sprintf("camera=%s tracks=%d static=%d", ws.cameraID, len(tracks), len(staticPts))

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Active Tracks", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Active Tracks", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: padX, Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: padY, Name: "Y (px)", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("moving", movingPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))
	scatter.AddSeries("static", staticPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render tracks chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleEventsChart renders a bar chart of event totals by type. With
// source=db the counts come from the persisted table instead of the
// in-memory counters.
func (ws *WebServer) handleEventsChart(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int64)
	source := "ring"
	if r.URL.Query().Get("source") == "db" {
		if ws.events == nil {
			httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no event store configured")
			return
		}
		dbCounts, err := ws.events.CountsByType()
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to count events: %v", err))
			return
		}
		counts = dbCounts
		source = "db"
	} else {
		for typ, n := range ws.engine.Stats().Emitted {
			counts[string(typ)] = n
		}
	}

	order := []behavior.EventType{behavior.EventAppeared, behavior.EventStatic, behavior.EventMoving}
	x := make([]string, 0, len(order))
	y := make([]opts.BarData, 0, len(order))
	for _, typ := range order {
		x = append(x, string(typ))
		y = append(y, opts.BarData{Value: counts[string(typ)]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Behavior Events", Subtitle: fmt.Sprintf("source=%s at %s", source, time.Now().UTC().Format(time.RFC3339))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("events", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
