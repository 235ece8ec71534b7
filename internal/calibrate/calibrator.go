package calibrate

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/sparsha/internal/capture"
	"github.com/ayusman/sparsha/internal/config"
	"github.com/ayusman/sparsha/internal/display"
	"github.com/ayusman/sparsha/internal/vision"
)

// exposureTarget is the maximum acceptable gray value of a pure white
// display; exposures above it clip projector highlights.
const exposureTarget = 250

// calibrationColors are displayed during screen detection and reused for
// the photometric white sample. All four carry a strong green component,
// which holds up well under common indoor lighting. BGR order.
var calibrationColors = [][3]float64{
	{255, 255, 255},
	{0, 255, 0},
	{255, 255, 0},
	{0, 255, 255},
}

// Calibrator runs the interactive calibration procedure and produces an
// immutable Profile.
type Calibrator struct {
	cfg config.Config
}

// NewCalibrator creates a Calibrator for the given configuration.
func NewCalibrator(cfg config.Config) *Calibrator {
	return &Calibrator{cfg: cfg}
}

// Calibrate runs exposure, geometric and photometric calibration against
// the live webcam, retrying with user feedback on every recoverable
// detection failure. It blocks until calibration succeeds or the camera
// stream ends.
func (c *Calibrator) Calibrate(webcam capture.Webcam, surface *display.Surface) (*Profile, error) {
	if !webcam.IsOpen() {
		return nil, errors.New("webcam must be open before calibration")
	}

	profile, err := NewProfile(c.cfg.ViewSize())
	if err != nil {
		return nil, err
	}

	settleTime := time.Duration(c.cfg.SettleTimeMs) * time.Millisecond
	boardSize := c.cfg.ChessboardSize()

	// Let the user position the camera before the first attempt.
	if err := ShowFeedback(webcam, surface,
		"Please ensure the entire screen is visible and in focus!",
		"Press any key to start the calibration...",
	); err != nil {
		profile.Close()
		return nil, err
	}

	samples := make([]gocv.Mat, len(calibrationColors))
	for i := range samples {
		samples[i] = gocv.NewMat()
		defer samples[i].Close()
	}
	chessboardSample := gocv.NewMat()
	defer chessboardSample.Close()

	for {
		if !c.cfg.SkipAutoExposure {
			if err := LockExposure(webcam, surface, exposureTarget); err != nil {
				profile.Close()
				return nil, fmt.Errorf("exposure calibration: %w", err)
			}
		}

		for i, cc := range calibrationColors {
			if err := CaptureColor(webcam, surface, cc[0], cc[1], cc[2], settleTime, c.cfg.CaptureSamples, &samples[i]); err != nil {
				profile.Close()
				return nil, err
			}
		}

		pattern, err := vision.Chessboard(boardSize, vision.Vec3{0, 0, 0}, vision.Vec3{255, 255, 255})
		if err != nil {
			profile.Close()
			return nil, err
		}
		err = CaptureImage(webcam, surface, pattern, settleTime, c.cfg.CaptureSamples, &chessboardSample)
		pattern.Close()
		if err != nil {
			profile.Close()
			return nil, err
		}

		screenCorners, err := c.findGeometricModel(profile, calibrationColors, samples, chessboardSample, boardSize)
		if err != nil {
			var detection *DetectionError
			if errors.As(err, &detection) {
				log.Printf("Calibration attempt failed: %s", detection.Message)
				if err := ShowFeedback(webcam, surface, detection.Message, "Press any key to try again"); err != nil {
					profile.Close()
					return nil, err
				}
				continue
			}
			profile.Close()
			return nil, err
		}

		// The screen must fill enough of the view to track fingers on.
		if area := contourAreaOf(screenCorners); area < c.cfg.MinCoverage*float64(profile.ViewSize.X*profile.ViewSize.Y) {
			log.Printf("Screen coverage %.0fpx below threshold", area)
			if err := ShowFeedback(webcam, surface, "Please move the camera closer", "Press any key to try again"); err != nil {
				profile.Close()
				return nil, err
			}
			continue
		}

		// The white color sample doubles as the reflectance source once
		// geometrically corrected.
		correctedWhite := gocv.NewMat()
		profile.Correct(samples[0], &correctedWhite)
		err = c.findPhotometricModel(profile, webcam, surface, settleTime, c.cfg.CaptureSamples, correctedWhite)
		correctedWhite.Close()
		if err != nil {
			profile.Close()
			return nil, fmt.Errorf("photometric calibration: %w", err)
		}
		break
	}

	c.showResult(surface, chessboardSample, profile.ScreenContour)
	return profile, nil
}

// contourAreaOf computes the polygon area of the screen corners in raw
// camera pixels.
func contourAreaOf(corners []gocv.Point2f) float64 {
	points := make([]image.Point, len(corners))
	for i, c := range corners {
		points[i] = image.Pt(int(c.X), int(c.Y))
	}
	contour := gocv.NewPointVectorFromPoints(points)
	defer contour.Close()
	return gocv.ContourArea(contour)
}

// showResult draws the detected screen outline over the chessboard
// sample and presents it briefly.
func (c *Calibrator) showResult(surface *display.Surface, sample gocv.Mat, contour []gocv.Point2f) {
	if len(contour) == 0 {
		return
	}

	magenta := color.RGBA{R: 255, G: 0, B: 255, A: 0}
	last := contour[len(contour)-1]
	for _, point := range contour {
		gocv.Line(&sample,
			image.Pt(int(last.X), int(last.Y)),
			image.Pt(int(point.X), int(point.Y)),
			magenta, 2,
		)
		last = point
	}

	surface.ShowFrame(sample)
	surface.WaitKey(2000)
}
