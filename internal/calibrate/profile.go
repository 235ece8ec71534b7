// Package calibrate recovers the geometric and photometric model of the
// projector-camera loop and applies it at runtime.
package calibrate

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/sparsha/internal/vision"
)

// Color lookup cube dimensions.
const (
	// LUTSize is the side length of the color lookup cube.
	LUTSize = 8
	// LUTEntries is the total number of lookup entries.
	LUTEntries = LUTSize * LUTSize * LUTSize
	// LUTStep is the normalized color step between neighboring entries.
	LUTStep = 1.0 / (LUTSize - 1.0)
	// ReflectanceFloor keeps reflectance channels strictly positive so
	// per-pixel division stays finite.
	ReflectanceFloor = 1e-4
)

// Profile is an immutable calibration result: the combined geometric
// correction plus the photometric response of the projector-camera loop.
type Profile struct {
	// ViewSize is the working resolution all rectified images share.
	ViewSize image.Point
	// CorrectionMap gives, for each view pixel, the source sub-pixel in
	// the raw camera frame (CV_32FC2). Combines lens undistortion with
	// the screen homography.
	CorrectionMap gocv.Mat
	// ScreenContour holds the four screen corners in raw camera
	// coordinates, counter-clockwise from the top left.
	ScreenContour []gocv.Point2f
	// ViewHomography maps undistorted camera points to view coordinates.
	ViewHomography gocv.Mat
	// Reflectance is the per-pixel per-channel white response normalized
	// by its own mean (CV_32FC3).
	Reflectance gocv.Mat
	// LUT is the 8x8x8 measured appearance grid, reflectance divided out.
	// Entry (0,0,0) is the ambient black response.
	LUT [LUTEntries]vision.Vec3
}

// NewProfile allocates an empty profile at the given view resolution.
// The correction and reflectance fields are allocated exactly once here.
func NewProfile(viewSize image.Point) (*Profile, error) {
	if viewSize.X <= 0 || viewSize.Y <= 0 {
		return nil, fmt.Errorf("invalid view resolution %v", viewSize)
	}

	p := &Profile{
		ViewSize:       viewSize,
		CorrectionMap:  gocv.NewMatWithSize(viewSize.Y, viewSize.X, gocv.MatTypeCV32FC2),
		ViewHomography: gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F),
		Reflectance:    gocv.NewMatWithSize(viewSize.Y, viewSize.X, gocv.MatTypeCV32FC3),
	}
	p.CorrectionMap.SetTo(gocv.NewScalar(0, 0, 0, 0))
	p.Reflectance.SetTo(gocv.NewScalar(1, 1, 1, 0))
	return p, nil
}

// Clone returns an independent deep copy of the profile, so the producer
// thread can predict against its own GPU context.
func (p *Profile) Clone() *Profile {
	c := &Profile{
		ViewSize:       p.ViewSize,
		CorrectionMap:  gocv.NewMat(),
		ViewHomography: gocv.NewMat(),
		Reflectance:    gocv.NewMat(),
		LUT:            p.LUT,
	}
	p.CorrectionMap.CopyTo(&c.CorrectionMap)
	p.ViewHomography.CopyTo(&c.ViewHomography)
	p.Reflectance.CopyTo(&c.Reflectance)
	c.ScreenContour = append([]gocv.Point2f(nil), p.ScreenContour...)
	return c
}

// Close releases all mats held by the profile.
func (p *Profile) Close() {
	p.CorrectionMap.Close()
	p.ViewHomography.Close()
	p.Reflectance.Close()
}

// AmbientIntensity is the mean of the three channels of the black lookup
// entry, i.e. the camera response of an unlit screen.
func (p *Profile) AmbientIntensity() float64 {
	ambient := p.LUT[0]
	return float64(ambient[0]+ambient[1]+ambient[2]) / 3.0
}

// Correct remaps a raw camera frame into view coordinates.
func (p *Profile) Correct(src gocv.Mat, dst *gocv.Mat) {
	gocv.Remap(src, dst, p.CorrectionMap, emptyMat, gocv.InterpolationCubic, gocv.BorderConstant, zeroRGBA)
}

// Predict computes the expected camera appearance of an 8-bit BGR screen
// buffer at view resolution. The output is float BGR in nominal [0, 255]
// range, without clamping. Predict is a pure function of the profile and
// its input.
func (p *Profile) Predict(src gocv.Mat, dst *gocv.Mat) error {
	if src.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("predict input must be 8-bit BGR, got %v", src.Type())
	}
	if src.Cols() != p.ViewSize.X || src.Rows() != p.ViewSize.Y {
		return fmt.Errorf("predict input must be %v, got %dx%d", p.ViewSize, src.Cols(), src.Rows())
	}

	if dst.Rows() != src.Rows() || dst.Cols() != src.Cols() || dst.Type() != gocv.MatTypeCV32FC3 {
		dst.Close()
		*dst = gocv.NewMatWithSize(src.Rows(), src.Cols(), gocv.MatTypeCV32FC3)
	}

	in, err := src.DataPtrUint8()
	if err != nil {
		return fmt.Errorf("predict source buffer: %w", err)
	}
	out, err := dst.DataPtrFloat32()
	if err != nil {
		return fmt.Errorf("predict output buffer: %w", err)
	}
	ref, err := p.Reflectance.DataPtrFloat32()
	if err != nil {
		return fmt.Errorf("reflectance buffer: %w", err)
	}

	for i := 0; i < len(in); i += 3 {
		var norm [3]float32
		var cell [3]int
		var frac [3]float32
		for ch := 0; ch < 3; ch++ {
			norm[ch] = float32(in[i+ch]) / 255.0

			// Locate the sub-cube; full intensity falls in the last cell.
			c := int(norm[ch] / LUTStep)
			if c > LUTSize-2 {
				c = LUTSize - 2
			}
			cell[ch] = c
			frac[ch] = norm[ch]/LUTStep - float32(c)
		}

		x, y, z := cell[0], cell[1], cell[2]
		prediction := vision.Trilerp(
			p.LUT[vision.LUTIndex(x, y, z, LUTSize)],
			p.LUT[vision.LUTIndex(x, y+1, z, LUTSize)],
			p.LUT[vision.LUTIndex(x+1, y+1, z, LUTSize)],
			p.LUT[vision.LUTIndex(x+1, y, z, LUTSize)],
			p.LUT[vision.LUTIndex(x, y, z+1, LUTSize)],
			p.LUT[vision.LUTIndex(x, y+1, z+1, LUTSize)],
			p.LUT[vision.LUTIndex(x+1, y+1, z+1, LUTSize)],
			p.LUT[vision.LUTIndex(x+1, y, z+1, LUTSize)],
			frac[0], frac[1], frac[2],
		)

		out[i+0] = prediction[0] * ref[i+0]
		out[i+1] = prediction[1] * ref[i+1]
		out[i+2] = prediction[2] * ref[i+2]
	}
	return nil
}
