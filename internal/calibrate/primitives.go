package calibrate

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/sparsha/internal/capture"
	"github.com/ayusman/sparsha/internal/display"
)

var zeroRGBA = color.RGBA{}

// emptyMat stands in for an absent optional argument.
var emptyMat = gocv.NewMat()

// staleFrames is the number of buffered camera frames discarded after a
// display change.
const staleFrames = 3

// CaptureImage displays a pattern fullscreen, waits for the camera and
// projector to settle, then returns the pixelwise mean of several frames
// as an 8-bit image.
func CaptureImage(
	webcam capture.Webcam,
	surface *display.Surface,
	pattern gocv.Mat,
	settleTime time.Duration,
	samples int,
	dst *gocv.Mat,
) error {
	if samples < 1 {
		return fmt.Errorf("capture samples must be at least 1, got %d", samples)
	}

	surface.ShowPattern(pattern)
	time.Sleep(settleTime)

	// Buffered frames predate the display change.
	for i := 0; i < staleFrames; i++ {
		webcam.Drop()
	}

	size := webcam.Size()
	average := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV64FC3)
	defer average.Close()
	average.SetTo(gocv.NewScalar(0, 0, 0, 0))

	frame := gocv.NewMat()
	defer frame.Close()
	converted := gocv.NewMat()
	defer converted.Close()

	for i := 0; i < samples; i++ {
		if err := webcam.Read(&frame); err != nil {
			return fmt.Errorf("capture sample %d: %w", i, err)
		}
		frame.ConvertTo(&converted, gocv.MatTypeCV64FC3)
		gocv.Add(average, converted, &average)
	}

	average.ConvertToWithParams(dst, gocv.MatTypeCV8UC3, 1.0/float32(samples), 0)
	return nil
}

// CaptureColor captures the webcam view of a solid fullscreen color.
func CaptureColor(
	webcam capture.Webcam,
	surface *display.Surface,
	b, g, r float64,
	settleTime time.Duration,
	samples int,
	dst *gocv.Mat,
) error {
	solid := gocv.NewMatWithSize(1, 1, gocv.MatTypeCV8UC3)
	defer solid.Close()
	solid.SetTo(gocv.NewScalar(b, g, r, 0))

	return CaptureImage(webcam, surface, solid, settleTime, samples, dst)
}

// LockExposure disables the camera's automatic controls and searches
// exposure downward from zero until the brightest pixel of a pure white
// display no longer clips above the target intensity. The search ends at
// the first probe at or below the target and has no lower exposure
// bound, so on a backend that ignores manual exposure it ends only when
// the unchanged exposure already meets the target.
func LockExposure(webcam capture.Webcam, surface *display.Surface, target float64) error {
	if target <= 0 || target >= 255 {
		return fmt.Errorf("brightness target must be in (0, 255), got %f", target)
	}

	// Assume the camera is already in focus and freeze it there. All of
	// these are best-effort; unsupported properties are tolerated.
	webcam.Set(gocv.VideoCaptureAutoFocus, 0)
	webcam.Set(gocv.VideoCaptureFocus, webcam.Get(gocv.VideoCaptureFocus))
	webcam.Set(gocv.VideoCaptureAutoWB, 0)
	webcam.Set(gocv.VideoCaptureWBTemperature, 4500)
	webcam.Set(gocv.VideoCaptureAutoExposure, 0.25)
	webcam.Set(gocv.VideoCaptureGain, 0)

	sample := gocv.NewMat()
	defer sample.Close()
	intensity := gocv.NewMat()
	defer intensity.Close()

	settle := time.Duration(webcam.LatencyMs()*2) * time.Millisecond

	for exposure := 0; ; exposure-- {
		webcam.Set(gocv.VideoCaptureExposure, float64(exposure))

		if err := CaptureColor(webcam, surface, 255, 255, 255, settle, 3, &sample); err != nil {
			return fmt.Errorf("exposure probe at %d: %w", exposure, err)
		}
		gocv.CvtColor(sample, &intensity, gocv.ColorBGRToGray)

		_, maxBrightness, _, _ := gocv.MinMaxLoc(intensity)
		if float64(maxBrightness) <= target {
			return nil
		}
	}
}

// ShowFeedback displays the live webcam view between two text banners on
// the projector surface and spins until the user presses a key.
func ShowFeedback(webcam capture.Webcam, surface *display.Surface, topText, botText string) error {
	const headerSize, footerSize = 80, 80

	windowSize := surface.Size()
	camSize := webcam.Size()

	// Scale the webcam view to fit between the banners.
	verticalSpace := float64(windowSize.Y - headerSize - footerSize)
	hs := verticalSpace / float64(camSize.Y)
	ws := float64(windowSize.X) / float64(camSize.X)
	scaling := hs
	if ws < hs {
		scaling = ws
	}

	slotSize := image.Pt(int(float64(camSize.X)*scaling), int(float64(camSize.Y)*scaling))
	slot := image.Rect(0, 0, slotSize.X, slotSize.Y).
		Add(image.Pt((windowSize.X-slotSize.X)/2, (windowSize.Y-slotSize.Y)/2))

	frame := gocv.NewMatWithSize(windowSize.Y, windowSize.X, gocv.MatTypeCV8UC3)
	defer frame.Close()
	camFrame := gocv.NewMat()
	defer camFrame.Close()
	scaled := gocv.NewMat()
	defer scaled.Close()

	black := color.RGBA{0, 0, 0, 0}

	for surface.WaitKey(webcam.LatencyMs()) == -1 {
		frame.SetTo(gocv.NewScalar(255, 255, 255, 0))

		if err := webcam.Read(&camFrame); err != nil {
			return fmt.Errorf("feedback view: %w", err)
		}
		gocv.Resize(camFrame, &scaled, slotSize, 0, 0, gocv.InterpolationLinear)
		region := frame.Region(slot)
		scaled.CopyTo(&region)
		region.Close()

		gocv.PutText(&frame, topText, image.Pt(10, 50), gocv.FontHersheyComplexSmall, 2, black, 3)
		gocv.PutText(&frame, botText, image.Pt(10, windowSize.Y-50), gocv.FontHersheyComplexSmall, 2, black, 3)

		surface.ShowFrame(frame)
	}
	return nil
}
