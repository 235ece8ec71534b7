package calibrate

import (
	"image"
	"math"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/sparsha/internal/vision"
)

func testProfile(t *testing.T, size image.Point) *Profile {
	t.Helper()

	profile, err := NewProfile(size)
	if err != nil {
		t.Fatalf("NewProfile failed: %v", err)
	}
	t.Cleanup(profile.Close)
	return profile
}

func TestNewProfile_Invariants(t *testing.T) {
	profile := testProfile(t, image.Pt(64, 48))

	if profile.CorrectionMap.Cols() != 64 || profile.CorrectionMap.Rows() != 48 {
		t.Errorf("correction map not view sized: %dx%d", profile.CorrectionMap.Cols(), profile.CorrectionMap.Rows())
	}
	if profile.Reflectance.Cols() != 64 || profile.Reflectance.Rows() != 48 {
		t.Errorf("reflectance not view sized: %dx%d", profile.Reflectance.Cols(), profile.Reflectance.Rows())
	}
	if len(profile.LUT) != 512 {
		t.Errorf("expected 512 lookup entries, got %d", len(profile.LUT))
	}
}

func TestProfile_AmbientIntensity(t *testing.T) {
	profile := testProfile(t, image.Pt(8, 8))
	profile.LUT[0] = vision.Vec3{30, 60, 90}

	if got := profile.AmbientIntensity(); math.Abs(got-60) > 1e-6 {
		t.Errorf("ambient intensity = %f, want 60", got)
	}
}

func TestProfile_PredictBlack(t *testing.T) {
	profile := testProfile(t, image.Pt(16, 12))

	// Ambient response with a non-uniform reflectance.
	profile.LUT[0] = vision.Vec3{40, 50, 60}
	profile.Reflectance.SetTo(gocv.NewScalar(0.5, 1.0, 2.0, 0))

	src := gocv.NewMatWithSize(12, 16, gocv.MatTypeCV8UC3)
	defer src.Close()
	src.SetTo(gocv.NewScalar(0, 0, 0, 0))

	dst := gocv.NewMat()
	defer dst.Close()
	if err := profile.Predict(src, &dst); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	// Black input reads the ambient entry scaled by reflectance.
	got := dst.GetVecfAt(5, 5)
	want := [3]float32{40 * 0.5, 50 * 1.0, 60 * 2.0}
	for ch := 0; ch < 3; ch++ {
		if math.Abs(float64(got[ch]-want[ch])) > 1e-4 {
			t.Errorf("channel %d = %f, want %f", ch, got[ch], want[ch])
		}
	}
}

func TestProfile_PredictInterpolates(t *testing.T) {
	profile := testProfile(t, image.Pt(8, 8))

	// A lookup cube that ramps linearly with the blue index makes the
	// trilinear interpolation exact for any input.
	for z := 0; z < LUTSize; z++ {
		for y := 0; y < LUTSize; y++ {
			for x := 0; x < LUTSize; x++ {
				v := float32(x) * LUTStep * 255.0
				profile.LUT[vision.LUTIndex(x, y, z, LUTSize)] = vision.Vec3{v, v, v}
			}
		}
	}

	src := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	defer src.Close()
	src.SetTo(gocv.NewScalar(128, 7, 200, 0))

	dst := gocv.NewMat()
	defer dst.Close()
	if err := profile.Predict(src, &dst); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	got := dst.GetVecfAt(0, 0)
	if math.Abs(float64(got[0])-128) > 0.5 {
		t.Errorf("interpolated blue = %f, want ~128", got[0])
	}
}

func TestProfile_PredictIsPure(t *testing.T) {
	profile := testProfile(t, image.Pt(8, 8))
	for i := range profile.LUT {
		profile.LUT[i] = vision.Vec3{float32(i % 7), float32(i % 11), float32(i % 13)}
	}

	src := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	defer src.Close()
	src.SetTo(gocv.NewScalar(10, 130, 250, 0))

	first := gocv.NewMat()
	defer first.Close()
	second := gocv.NewMat()
	defer second.Close()

	if err := profile.Predict(src, &first); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if err := profile.Predict(src, &second); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	a := first.GetVecfAt(3, 3)
	b := second.GetVecfAt(3, 3)
	for ch := 0; ch < 3; ch++ {
		if a[ch] != b[ch] {
			t.Errorf("prediction changed between identical calls: %v vs %v", a, b)
		}
	}
}

func TestProfile_PredictFullWhite(t *testing.T) {
	profile := testProfile(t, image.Pt(8, 8))
	for i := range profile.LUT {
		profile.LUT[i] = vision.Vec3{100, 100, 100}
	}
	profile.LUT[vision.LUTIndex(7, 7, 7, LUTSize)] = vision.Vec3{200, 200, 200}

	src := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	defer src.Close()
	src.SetTo(gocv.NewScalar(255, 255, 255, 0))

	dst := gocv.NewMat()
	defer dst.Close()
	if err := profile.Predict(src, &dst); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	// Full intensity must land exactly on the last cube corner.
	if got := dst.GetVecfAt(0, 0); math.Abs(float64(got[0])-200) > 1e-3 {
		t.Errorf("full white = %f, want 200", got[0])
	}
}

func TestProfile_Clone(t *testing.T) {
	profile := testProfile(t, image.Pt(16, 12))
	profile.LUT[0] = vision.Vec3{1, 2, 3}
	profile.ScreenContour = []gocv.Point2f{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5, Y: 6}, {X: 7, Y: 8}}

	clone := profile.Clone()
	defer clone.Close()

	if clone.LUT[0] != profile.LUT[0] {
		t.Error("clone lost lookup data")
	}
	if len(clone.ScreenContour) != 4 {
		t.Error("clone lost screen contour")
	}

	// Mutating the clone must not touch the original.
	clone.Reflectance.SetTo(gocv.NewScalar(9, 9, 9, 0))
	if profile.Reflectance.GetVecfAt(0, 0)[0] == 9 {
		t.Error("clone shares reflectance storage with original")
	}
}
