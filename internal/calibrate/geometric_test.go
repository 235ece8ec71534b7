package calibrate

import (
	"image"
	"testing"

	"gocv.io/x/gocv"
)

func TestOrderScreenCorners(t *testing.T) {
	// Shuffled corners of a skewed quadrilateral.
	corners := []gocv.Point2f{
		{X: 600, Y: 50},  // top right
		{X: 90, Y: 400},  // bottom left
		{X: 100, Y: 60},  // top left
		{X: 620, Y: 420}, // bottom right
	}

	ordered := orderScreenCorners(corners)

	want := []gocv.Point2f{
		{X: 100, Y: 60},
		{X: 90, Y: 400},
		{X: 620, Y: 420},
		{X: 600, Y: 50},
	}
	for i := range want {
		if ordered[i] != want[i] {
			t.Errorf("corner %d = %v, want %v", i, ordered[i], want[i])
		}
	}
}

func TestIdealChessboardCorners(t *testing.T) {
	corners := idealChessboardCorners(image.Pt(640, 480), image.Pt(22, 18))

	if len(corners) != 21*17 {
		t.Fatalf("expected %d inner corners, got %d", 21*17, len(corners))
	}

	// First corner sits one square in from the origin.
	first := corners[0]
	if first.X != 640.0/22.0 || first.Y != 480.0/18.0 {
		t.Errorf("first corner = %v", first)
	}

	// Last corner sits one square short of the far edge.
	last := corners[len(corners)-1]
	if last.X != 21.0*640.0/22.0 || last.Y != 17.0*480.0/18.0 {
		t.Errorf("last corner = %v", last)
	}
}

func TestDetectScreen_SolidSamples(t *testing.T) {
	// Synthetic samples: a centered bright rectangle over a dark
	// surround, rendered in each calibration color.
	size := image.Pt(320, 240)
	screen := image.Rect(60, 40, 260, 200)

	samples := make([]gocv.Mat, len(calibrationColors))
	for i, c := range calibrationColors {
		samples[i] = gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3)
		defer samples[i].Close()
		samples[i].SetTo(gocv.NewScalar(8, 8, 8, 0))

		region := samples[i].Region(screen)
		region.SetTo(gocv.NewScalar(c[0], c[1], c[2], 0))
		region.Close()
	}

	corners, err := detectScreen(calibrationColors, samples)
	if err != nil {
		t.Fatalf("detectScreen failed: %v", err)
	}
	if len(corners) != 4 {
		t.Fatalf("expected 4 corners, got %d", len(corners))
	}

	// Counter-clockwise from the top left, within sub-pixel slack.
	wants := []gocv.Point2f{
		{X: 60, Y: 40},
		{X: 60, Y: 199},
		{X: 259, Y: 199},
		{X: 259, Y: 40},
	}
	for i, want := range wants {
		dx := float64(corners[i].X - want.X)
		dy := float64(corners[i].Y - want.Y)
		if dx*dx+dy*dy > 9 {
			t.Errorf("corner %d = %v, want near %v", i, corners[i], want)
		}
	}
}

func TestDetectScreen_TouchingBorder(t *testing.T) {
	size := image.Pt(320, 240)

	samples := make([]gocv.Mat, len(calibrationColors))
	for i, c := range calibrationColors {
		samples[i] = gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3)
		defer samples[i].Close()
		samples[i].SetTo(gocv.NewScalar(8, 8, 8, 0))

		// Screen region extends to the image origin.
		region := samples[i].Region(image.Rect(0, 0, 200, 160))
		region.SetTo(gocv.NewScalar(c[0], c[1], c[2], 0))
		region.Close()
	}

	if _, err := detectScreen(calibrationColors, samples); err == nil {
		t.Error("expected failure for screen touching the border")
	}
}

func TestDetectScreen_NoScreen(t *testing.T) {
	size := image.Pt(320, 240)

	samples := make([]gocv.Mat, len(calibrationColors))
	for i := range samples {
		samples[i] = gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3)
		defer samples[i].Close()
		// Every sample is a flat random-ish gray; no region matches all
		// four colors.
		samples[i].SetTo(gocv.NewScalar(float64(40*i), float64(30*i), float64(20*i), 0))
	}

	if _, err := detectScreen(calibrationColors, samples); err == nil {
		t.Error("expected failure when no screen is present")
	}
}
