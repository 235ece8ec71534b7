package calibrate

import (
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/sparsha/internal/capture"
	"github.com/ayusman/sparsha/internal/display"
	"github.com/ayusman/sparsha/internal/vision"
)

// patternCells is the side length of the displayed color tiles. Two
// 16x16 tiles cover all 512 lookup entries.
const patternCells = 16

// buildReflectance fills the profile's reflectance map from a corrected
// white sample: each channel is divided by its mean over the whole
// sample, then floored to stay strictly positive.
func buildReflectance(profile *Profile, whiteSample gocv.Mat) error {
	if whiteSample.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("white sample must be 8-bit BGR, got %v", whiteSample.Type())
	}

	data, err := whiteSample.DataPtrUint8()
	if err != nil {
		return fmt.Errorf("white sample buffer: %w", err)
	}

	pixels := len(data) / 3
	channels := [3][]float64{
		make([]float64, pixels),
		make([]float64, pixels),
		make([]float64, pixels),
	}
	for i := 0; i < pixels; i++ {
		channels[0][i] = float64(data[i*3+0])
		channels[1][i] = float64(data[i*3+1])
		channels[2][i] = float64(data[i*3+2])
	}

	var whitePoint [3]float64
	for ch := range channels {
		whitePoint[ch] = stat.Mean(channels[ch], nil)
		if whitePoint[ch] <= 0 {
			return fmt.Errorf("white sample channel %d has zero mean", ch)
		}
	}

	ref, err := profile.Reflectance.DataPtrFloat32()
	if err != nil {
		return fmt.Errorf("reflectance buffer: %w", err)
	}
	for i := 0; i < pixels; i++ {
		for ch := 0; ch < 3; ch++ {
			r := float32(float64(data[i*3+ch]) / whitePoint[ch])
			if r < ReflectanceFloor {
				r = ReflectanceFloor
			}
			ref[i*3+ch] = r
		}
	}
	return nil
}

// lutPattern renders the k-th 16x16 color tile. Cell i (row-major)
// encodes lookup index m = 256k + i decomposed over the color cube.
func lutPattern(k int) gocv.Mat {
	pattern := gocv.NewMatWithSize(patternCells, patternCells, gocv.MatTypeCV8UC3)
	for i := 0; i < patternCells*patternCells; i++ {
		m := k*patternCells*patternCells + i

		x := m % LUTSize
		y := (m / LUTSize) % LUTSize
		z := m / (LUTSize * LUTSize)

		r, c := i/patternCells, i%patternCells
		pattern.SetUCharAt(r, c*3+0, uint8(float32(x)*LUTStep*255.0))
		pattern.SetUCharAt(r, c*3+1, uint8(float32(y)*LUTStep*255.0))
		pattern.SetUCharAt(r, c*3+2, uint8(float32(z)*LUTStep*255.0))
	}
	return pattern
}

// findPhotometricModel learns the reflectance map and the full color
// lookup cube by displaying two color tiles and measuring their
// geometrically corrected appearance.
func (c *Calibrator) findPhotometricModel(
	profile *Profile,
	webcam capture.Webcam,
	surface *display.Surface,
	settleTime time.Duration,
	samples int,
	whiteSample gocv.Mat,
) error {
	if err := buildReflectance(profile, whiteSample); err != nil {
		return err
	}

	captureBuffer := gocv.NewMat()
	defer captureBuffer.Close()
	corrected := gocv.NewMat()
	defer corrected.Close()
	measured := gocv.NewMat()
	defer measured.Close()

	cellSize := image.Pt(profile.ViewSize.X/patternCells, profile.ViewSize.Y/patternCells)

	ref, err := profile.Reflectance.DataPtrFloat32()
	if err != nil {
		return fmt.Errorf("reflectance buffer: %w", err)
	}

	for k := 0; k < 2; k++ {
		pattern := lutPattern(k)

		err := CaptureImage(webcam, surface, pattern, settleTime, samples, &captureBuffer)
		pattern.Close()
		if err != nil {
			return fmt.Errorf("photometric tile %d: %w", k, err)
		}

		profile.Correct(captureBuffer, &corrected)
		corrected.ConvertTo(&measured, gocv.MatTypeCV32FC3)

		raw, err := measured.DataPtrFloat32()
		if err != nil {
			return fmt.Errorf("photometric tile %d buffer: %w", k, err)
		}
		stride := measured.Cols() * 3

		// Average each cell's block with reflectance divided out.
		for r := 0; r < patternCells; r++ {
			for cc := 0; cc < patternCells; cc++ {
				var sum vision.Vec3
				origin := image.Pt(cc*cellSize.X, r*cellSize.Y)
				for y := 0; y < cellSize.Y; y++ {
					row := (origin.Y + y) * stride
					for x := 0; x < cellSize.X; x++ {
						i := row + (origin.X+x)*3
						sum[0] += raw[i+0] / ref[i+0]
						sum[1] += raw[i+1] / ref[i+1]
						sum[2] += raw[i+2] / ref[i+2]
					}
				}

				area := float32(cellSize.X * cellSize.Y)
				index := k*patternCells*patternCells + r*patternCells + cc
				profile.LUT[index] = sum.Scale(1 / area)
			}
		}
	}
	return nil
}
