package mask

import (
	"image"
	"testing"

	"gocv.io/x/gocv"
)

func solidView(size image.Point, b, g, r float64) gocv.Mat {
	m := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(b, g, r, 0))
	return m
}

func TestFloodFillZero_ClearsSeedComponent(t *testing.T) {
	m := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8U)
	defer m.Close()
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))

	// A border-touching blob and a floating island.
	for x := 0; x < 4; x++ {
		m.SetUCharAt(0, x, 255)
		m.SetUCharAt(1, x, 255)
	}
	m.SetUCharAt(5, 5, 255)
	m.SetUCharAt(5, 6, 255)

	if err := floodFillZero(&m, image.Pt(0, 0)); err != nil {
		t.Fatalf("floodFillZero failed: %v", err)
	}

	// The seed component is gone; the island survives.
	if m.GetUCharAt(1, 2) != 0 {
		t.Error("border blob should be cleared")
	}
	if m.GetUCharAt(5, 5) != 255 || m.GetUCharAt(5, 6) != 255 {
		t.Error("floating island should survive the fill")
	}
}

func TestFloodFillZero_ZeroSeedIsNoop(t *testing.T) {
	m := gocv.NewMatWithSize(5, 5, gocv.MatTypeCV8U)
	defer m.Close()
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))
	m.SetUCharAt(2, 2, 255)

	if err := floodFillZero(&m, image.Pt(0, 0)); err != nil {
		t.Fatalf("floodFillZero failed: %v", err)
	}
	if m.GetUCharAt(2, 2) != 255 {
		t.Error("fill from a zero seed must not change the mask")
	}
}

func TestBorderMask(t *testing.T) {
	mask := borderMask(image.Pt(64, 48))
	defer mask.Close()

	// Corners and edge midpoints are inside the stripe.
	for _, p := range []image.Point{{0, 0}, {63, 0}, {63, 47}, {0, 47}, {32, 0}, {0, 24}} {
		if mask.GetUCharAt(p.Y, p.X) == 0 {
			t.Errorf("border mask should cover %v", p)
		}
	}

	// The interior stays clear.
	if mask.GetUCharAt(24, 32) != 0 {
		t.Error("border mask should not cover the interior")
	}
}

func TestSegment_EmptySceneProducesEmptyMask(t *testing.T) {
	size := image.Pt(64, 48)
	g, err := NewGenerator(size, 20)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	// View matches the prediction exactly: a mid-gray screen.
	view := solidView(size, 120, 120, 120)
	defer view.Close()
	background := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV32FC3)
	defer background.Close()
	background.SetTo(gocv.NewScalar(120, 120, 120, 0))

	fg := gocv.NewMat()
	defer fg.Close()
	shadow := gocv.NewMat()
	defer shadow.Close()

	if err := g.Segment(view, background, &fg, &shadow); err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if n := gocv.CountNonZero(fg); n != 0 {
		t.Errorf("expected empty foreground mask, got %d pixels", n)
	}
	// With nothing in frame, the background mask covers everything.
	if n := gocv.CountNonZero(g.BackgroundMask()); n != size.X*size.Y {
		t.Errorf("expected full background mask, got %d pixels", n)
	}
}

func TestSegment_FloatingNoiseRemoved(t *testing.T) {
	size := image.Pt(64, 48)
	g, err := NewGenerator(size, 20)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	background := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV32FC3)
	defer background.Close()
	background.SetTo(gocv.NewScalar(120, 120, 120, 0))

	// A bright island in the middle of the view, detached from every
	// border: classic projector sparkle, not a finger.
	view := solidView(size, 120, 120, 120)
	defer view.Close()
	island := view.Region(image.Rect(28, 20, 38, 30))
	island.SetTo(gocv.NewScalar(255, 255, 255, 0))
	island.Close()

	fg := gocv.NewMat()
	defer fg.Close()
	shadow := gocv.NewMat()
	defer shadow.Close()

	if err := g.Segment(view, background, &fg, &shadow); err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if n := gocv.CountNonZero(fg); n != 0 {
		t.Errorf("floating island should be removed, got %d foreground pixels", n)
	}
}

func TestSegment_BorderBlobSurvives(t *testing.T) {
	size := image.Pt(64, 48)
	g, err := NewGenerator(size, 20)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	background := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV32FC3)
	defer background.Close()
	background.SetTo(gocv.NewScalar(120, 120, 120, 0))

	// A thick blob entering from the left border, like a hand.
	view := solidView(size, 120, 120, 120)
	defer view.Close()
	blob := view.Region(image.Rect(0, 14, 30, 36))
	blob.SetTo(gocv.NewScalar(250, 250, 250, 0))
	blob.Close()

	fg := gocv.NewMat()
	defer fg.Close()
	shadow := gocv.NewMat()
	defer shadow.Close()

	if err := g.Segment(view, background, &fg, &shadow); err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if n := gocv.CountNonZero(fg); n == 0 {
		t.Error("border-connected blob should survive segmentation")
	}
	// The blob interior is well inside the surviving region.
	if fg.GetUCharAt(25, 10) == 0 {
		t.Error("expected foreground at the blob interior")
	}
}

func TestSegment_ShadowMask(t *testing.T) {
	size := image.Pt(64, 48)
	ambient := 30.0
	g, err := NewGenerator(size, ambient)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	background := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV32FC3)
	defer background.Close()
	background.SetTo(gocv.NewScalar(150, 150, 150, 0))

	// A dark blob entering from the border: both foreground and, being
	// darker than ambient+offset, shadow.
	view := solidView(size, 150, 150, 150)
	defer view.Close()
	blob := view.Region(image.Rect(0, 14, 30, 36))
	blob.SetTo(gocv.NewScalar(10, 10, 10, 0))
	blob.Close()

	fg := gocv.NewMat()
	defer fg.Close()
	shadow := gocv.NewMat()
	defer shadow.Close()

	if err := g.Segment(view, background, &fg, &shadow); err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if shadow.GetUCharAt(25, 10) == 0 {
		t.Error("dark foreground pixel should be marked as shadow")
	}
	// Background pixels are forced white and can never be shadow.
	if shadow.GetUCharAt(5, 55) != 0 {
		t.Error("background pixel must not be marked as shadow")
	}
}
