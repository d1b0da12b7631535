// Command gen-detections writes a synthetic detection log for exercising
// replay and the behavior engine without a live camera feed. The scripted
// scene has a walker crossing the frame, a loiterer who stops long enough
// to go static, and a brief low-confidence flicker.
package main

import (
	"flag"
	"log"
	"math/rand"
	"time"

	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/pipeline"
)

var (
	output = flag.String("o", "detections.jsonl", "output path")
	camera = flag.String("camera", "cam-sim", "camera id stamped on frames")
	frames = flag.Int("n", 600, "number of frames")
	fps    = flag.Float64("fps", 10, "frame rate encoded in the timestamps")
	seed   = flag.Int64("seed", 1, "random seed for position jitter")
)

func personDetection(id int64, x, y, conf float64, frame int64) vision.Detection {
	return vision.Detection{
		TrackID:     id,
		ClassID:     0,
		Confidence:  conf,
		BBox:        vision.BoundingBox{Left: x - 25, Top: y - 55, Width: 50, Height: 110},
		FrameNumber: frame,
	}
}

func main() {
	flag.Parse()

	if *frames <= 0 || *fps <= 0 {
		log.Fatal("need a positive frame count and frame rate")
	}

	recorder, err := pipeline.NewDetectionLogRecorder(nil, *output)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *output, err)
	}
	defer recorder.Close()

	rng := rand.New(rand.NewSource(*seed))
	interval := time.Duration(float64(time.Second) / *fps)
	start := time.Now().Add(-time.Duration(*frames) * interval).Truncate(time.Millisecond)

	n := int64(*frames)
	dwellStart := n / 5
	dwellEnd := 4 * n / 5

	for i := int64(0); i < n; i++ {
		ts := start.Add(time.Duration(i) * interval)
		var dets []vision.Detection

		// Track 1 walks left to right across a 1920px scene.
		x := 60 + float64(i)/float64(n)*1800
		dets = append(dets, personDetection(1, x, 420+rng.Float64()*2, 0.93, i))

		// Track 2 walks in, stands near the doorway between dwellStart and
		// dwellEnd with sub-pixel jitter, and walks out.
		switch {
		case i < dwellStart:
			x := 900 - float64(dwellStart-i)*4
			dets = append(dets, personDetection(2, x, 600, 0.9, i))
		case i < dwellEnd:
			dets = append(dets, personDetection(2, 900+rng.Float64()*2-1, 600+rng.Float64()*2-1, 0.88, i))
		default:
			x := 900 + float64(i-dwellEnd)*4
			dets = append(dets, personDetection(2, x, 600, 0.9, i))
		}

		// Track 3 flickers for a few frames at low confidence, the kind of
		// ghost the min-confidence filter exists for.
		if i%97 < 3 {
			dets = append(dets, personDetection(3, 1500, 200, 0.22, i))
		}

		frame := vision.Frame{
			CameraID:    *camera,
			FrameNumber: i,
			Timestamp:   ts,
			Detections:  dets,
		}
		if err := recorder.Record(frame); err != nil {
			log.Fatalf("Failed to write frame %d: %v", i, err)
		}
		if (i+1)%100 == 0 {
			log.Printf("%d/%d frames", i+1, n)
		}
	}

	if err := recorder.Close(); err != nil {
		log.Fatalf("Failed to close %s: %v", *output, err)
	}
	log.Printf("✓ Created: %s (%d frames at %.0f fps)", *output, n, *fps)
}
