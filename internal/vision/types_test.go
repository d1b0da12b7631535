package vision

import (
	"math"
	"testing"
)

func TestBoundingBoxCenter(t *testing.T) {
	tests := []struct {
		name  string
		box   BoundingBox
		wantX float64
		wantY float64
	}{
		{
			name:  "square at origin",
			box:   BoundingBox{Left: 0, Top: 0, Width: 100, Height: 100},
			wantX: 50,
			wantY: 50,
		},
		{
			name:  "offset box",
			box:   BoundingBox{Left: 80, Top: 60, Width: 40, Height: 80},
			wantX: 100,
			wantY: 100,
		},
		{
			name:  "zero size box",
			box:   BoundingBox{Left: 15, Top: 25, Width: 0, Height: 0},
			wantX: 15,
			wantY: 25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.box.Center()
			if c.X != tt.wantX || c.Y != tt.wantY {
				t.Errorf("Center() = (%v, %v), want (%v, %v)", c.X, c.Y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestPositionDistanceTo(t *testing.T) {
	a := Position{X: 0, Y: 0}
	b := Position{X: 3, Y: 4}
	if got := a.DistanceTo(b); got != 5 {
		t.Errorf("DistanceTo() = %v, want 5", got)
	}
	if got := b.DistanceTo(a); got != 5 {
		t.Errorf("DistanceTo() reversed = %v, want 5", got)
	}
	if got := a.DistanceTo(a); got != 0 {
		t.Errorf("DistanceTo(self) = %v, want 0", got)
	}
}

func TestDetectionValidate(t *testing.T) {
	valid := Detection{
		TrackID:    7,
		ClassID:    0,
		Confidence: 0.9,
		BBox:       BoundingBox{Left: 50, Top: 50, Width: 100, Height: 100},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid detection rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Detection)
	}{
		{"negative width", func(d *Detection) { d.BBox.Width = -1 }},
		{"negative height", func(d *Detection) { d.BBox.Height = -20 }},
		{"negative left", func(d *Detection) { d.BBox.Left = -5 }},
		{"negative top", func(d *Detection) { d.BBox.Top = -0.5 }},
		{"confidence above one", func(d *Detection) { d.Confidence = 1.2 }},
		{"confidence below zero", func(d *Detection) { d.Confidence = -0.1 }},
		{"nan coordinate", func(d *Detection) { d.BBox.Left = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			if err := d.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestClassName(t *testing.T) {
	tests := []struct {
		classID int
		want    string
	}{
		{0, "person"},
		{2, "car"},
		{9, "traffic light"},
		{79, "toothbrush"},
		{80, "unknown_class_80"},
		{-1, "unknown_class_-1"},
		{500, "unknown_class_500"},
	}

	for _, tt := range tests {
		if got := ClassName(tt.classID); got != tt.want {
			t.Errorf("ClassName(%d) = %q, want %q", tt.classID, got, tt.want)
		}
	}
}
