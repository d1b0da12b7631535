package monitor

import (
	"fmt"
	"image/color"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/dwell.report/internal/httputil"
	"github.com/banshee-data/dwell.report/internal/security"
	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/tracks"
)

// handleTrackPlot renders one track's displacement-over-time curve as a PNG.
// Query params:
//
//	id (required) upstream track id
func (ws *WebServer) handleTrackPlot(w http.ResponseWriter, r *http.Request) {
	rawID := r.URL.Query().Get("id")
	if rawID == "" {
		httputil.BadRequest(w, "missing 'id' parameter")
		return
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid 'id' parameter")
		return
	}

	trk, ok := ws.engine.Store().Track(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no active track %d", id))
		return
	}
	if len(trk.History) < 2 {
		httputil.NotFound(w, fmt.Sprintf("track %d has no usable history", id))
		return
	}

	cfg := ws.engine.Config()
	p, err := DisplacementPlot(trk, cfg.PositionTolerancePixels)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to build plot: %v", err))
		return
	}
	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}

// DisplacementPlot builds a displacement-from-origin plot for one track.
// A dashed threshold line marks tolerance when it is positive; everything
// under the line over the static window is what the engine calls static.
func DisplacementPlot(trk tracks.Track, tolerance float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Track %d (%s) - Displacement from Origin", trk.ID, trk.ClassName)
	p.X.Label.Text = "Elapsed (s)"
	p.Y.Label.Text = "Displacement (px)"

	origin := vision.Position{X: trk.History[0].X, Y: trk.History[0].Y}
	start := trk.History[0].Timestamp

	pts := make(plotter.XYs, 0, len(trk.History))
	maxElapsed := 0.0
	for _, s := range trk.History {
		elapsed := s.Timestamp.Sub(start).Seconds()
		if elapsed > maxElapsed {
			maxElapsed = elapsed
		}
		d := origin.DistanceTo(vision.Position{X: s.X, Y: s.Y})
		pts = append(pts, plotter.XY{X: elapsed, Y: d})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{R: 66, G: 133, B: 244, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("displacement", line)

	if tolerance > 0 {
		thresholdPts := plotter.XYs{{X: 0, Y: tolerance}, {X: maxElapsed, Y: tolerance}}
		threshold, err := plotter.NewLine(thresholdPts)
		if err != nil {
			return nil, err
		}
		threshold.Color = color.RGBA{R: 219, G: 68, B: 55, A: 255}
		threshold.Width = vg.Points(1)
		threshold.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(threshold)
		p.Legend.Add("tolerance", threshold)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// PathPlot builds an image-plane trace of one track's history. The Y axis
// is inverted so the plot matches the camera image orientation.
func PathPlot(trk tracks.Track) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Track %d (%s) - Path", trk.ID, trk.ClassName)
	p.X.Label.Text = "X (px)"
	p.Y.Label.Text = "Y (px)"
	p.Y.Scale = plot.InvertedScale{Normal: plot.LinearScale{}}

	pts := make(plotter.XYs, 0, len(trk.History))
	for _, s := range trk.History {
		pts = append(pts, plotter.XY{X: s.X, Y: s.Y})
	}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{R: 66, G: 133, B: 244, A: 255}
	line.Width = vg.Points(1)
	points.Color = color.RGBA{R: 66, G: 133, B: 244, A: 255}
	points.Radius = vg.Points(1.5)
	p.Add(line, points)
	return p, nil
}

// SaveTrackPlots writes displacement and path PNGs for every track with at
// least two history samples. Returns the number of plots generated.
func SaveTrackPlots(outputDir string, trackList []tracks.Track, tolerance float64) (int, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	plotCount := 0
	for _, trk := range trackList {
		if len(trk.History) < 2 {
			continue
		}

		pDisp, err := DisplacementPlot(trk, tolerance)
		if err != nil {
			return plotCount, fmt.Errorf("track %d: %w", trk.ID, err)
		}
		dispFile := filepath.Join(outputDir, fmt.Sprintf("track_%d_displacement.png", trk.ID))
		if err := pDisp.Save(10*vg.Inch, 4*vg.Inch, dispFile); err != nil {
			return plotCount, fmt.Errorf("save displacement plot: %w", err)
		}
		plotCount++

		pPath, err := PathPlot(trk)
		if err != nil {
			return plotCount, fmt.Errorf("track %d: %w", trk.ID, err)
		}
		pathFile := filepath.Join(outputDir, fmt.Sprintf("track_%d_path.png", trk.ID))
		if err := pPath.Save(8*vg.Inch, 8*vg.Inch, pathFile); err != nil {
			return plotCount, fmt.Errorf("save path plot: %w", err)
		}
		plotCount++
	}

	return plotCount, nil
}

// SavePathsOverview draws every track's path on a single canvas with one
// color per track.
func SavePathsOverview(outputDir string, trackList []tracks.Track) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = "Track Paths"
	p.X.Label.Text = "X (px)"
	p.Y.Label.Text = "Y (px)"
	p.Y.Scale = plot.InvertedScale{Normal: plot.LinearScale{}}

	colors := generateColors(len(trackList))
	drawn := 0
	for i, trk := range trackList {
		if len(trk.History) < 2 {
			continue
		}
		pts := make(plotter.XYs, 0, len(trk.History))
		for _, s := range trk.History {
			pts = append(pts, plotter.XY{X: s.X, Y: s.Y})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("track %d", trk.ID), line)
		drawn++
	}
	if drawn == 0 {
		return fmt.Errorf("no tracks with usable history")
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(outputDir, "paths_overview.png")
	if err := p.Save(10*vg.Inch, 10*vg.Inch, file); err != nil {
		return fmt.Errorf("save overview plot: %w", err)
	}
	return nil
}

// DwellSummaryPlot builds a bar chart of observed duration per track,
// longest first, so loiterers stand out at a glance.
func DwellSummaryPlot(trackList []tracks.Track) (*plot.Plot, error) {
	type dwell struct {
		id      int64
		seconds float64
	}
	dwells := make([]dwell, 0, len(trackList))
	for _, trk := range trackList {
		if len(trk.History) < 2 {
			continue
		}
		first := trk.History[0].Timestamp
		last := trk.History[len(trk.History)-1].Timestamp
		dwells = append(dwells, dwell{id: trk.ID, seconds: last.Sub(first).Seconds()})
	}
	if len(dwells) == 0 {
		return nil, fmt.Errorf("no tracks with usable history")
	}
	sort.Slice(dwells, func(i, j int) bool { return dwells[i].seconds > dwells[j].seconds })

	p := plot.New()
	p.Title.Text = "Dwell Duration by Track"
	p.Y.Label.Text = "Observed (s)"

	values := make(plotter.Values, len(dwells))
	labels := make([]string, len(dwells))
	for i, d := range dwells {
		values[i] = d.seconds
		labels[i] = fmt.Sprintf("trk %d", d.id)
	}

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return nil, err
	}
	bars.Color = color.RGBA{R: 66, G: 133, B: 244, A: 255}
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(labels...)
	return p, nil
}

// SaveDwellSummary writes the dwell bar chart next to the per-track plots.
func SaveDwellSummary(outputDir string, trackList []tracks.Track) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	p, err := DwellSummaryPlot(trackList)
	if err != nil {
		return err
	}
	file := filepath.Join(outputDir, "dwell_summary.png")
	if err := p.Save(8*vg.Inch, 5*vg.Inch, file); err != nil {
		return fmt.Errorf("save dwell summary: %w", err)
	}
	return nil
}

// generateColors creates a palette of distinct colors for track lines
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir builds a timestamped output directory for plots.
// For replay files: plots/<replay_basename>/<timestamp>
// For live data: plots/live_<timestamp>
// The replay basename is sanitized before it becomes a path component.
func MakePlotOutputDir(baseDir, replayFile string) string {
	ts := FormatTimestamp(time.Now())
	if replayFile != "" {
		base := filepath.Base(replayFile)
		ext := filepath.Ext(base)
		name := security.SanitizeFilename(base[:len(base)-len(ext)])
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "live_"+ts)
}
