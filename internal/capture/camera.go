// Package capture provides webcam and screen-buffer capture for the
// touch pipeline using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// ErrStreamEnded is returned when the camera stream ends cleanly.
var ErrStreamEnded = errors.New("camera stream ended")

// Webcam defines the interface for camera capture implementations.
type Webcam interface {
	Open() error
	Close() error
	// Read reads the next frame into dst. Returns ErrStreamEnded when the
	// stream is exhausted.
	Read(dst *gocv.Mat) error
	// Drop burns a buffered frame without decoding it.
	Drop()
	// Set applies a capture property, best-effort.
	Set(prop gocv.VideoCaptureProperties, value float64)
	// Get reads back a capture property.
	Get(prop gocv.VideoCaptureProperties) float64
	Size() image.Point
	// LatencyMs is the nominal per-frame latency derived from the stream FPS.
	LatencyMs() int
	IsOpen() bool
}

// webcamImpl manages video capture from a camera device using GoCV.
type webcamImpl struct {
	deviceID int
	size     image.Point
	fps      int
	capture  *gocv.VideoCapture
	mu       sync.Mutex
	running  bool
}

// NewWebcam creates a new Webcam for the given device ID, requesting the
// given resolution and frame rate once opened.
func NewWebcam(deviceID int, size image.Point, fps int) Webcam {
	if size.X <= 0 || size.Y <= 0 {
		size = image.Pt(DefaultWidth, DefaultHeight)
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &webcamImpl{
		deviceID: deviceID,
		size:     size,
		fps:      fps,
	}
}

// Open opens the camera and applies the requested stream properties.
func (w *webcamImpl) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	// The MSMF hardware transform delays stream init on some backends.
	os.Setenv("OPENCV_VIDEOIO_MSMF_ENABLE_HW_TRANSFORMS", "0")

	capture, err := gocv.OpenVideoCapture(w.deviceID)
	if err != nil {
		return fmt.Errorf("failed to open webcam %d: %w", w.deviceID, err)
	}

	capture.Set(gocv.VideoCaptureFPS, float64(w.fps))
	capture.Set(gocv.VideoCaptureFrameWidth, float64(w.size.X))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(w.size.Y))

	// Read back what the driver actually granted.
	if granted := image.Pt(
		int(capture.Get(gocv.VideoCaptureFrameWidth)),
		int(capture.Get(gocv.VideoCaptureFrameHeight)),
	); granted.X > 0 && granted.Y > 0 {
		w.size = granted
	}
	if fps := int(capture.Get(gocv.VideoCaptureFPS)); fps > 0 {
		w.fps = fps
	}

	w.capture = capture
	w.running = true
	return nil
}

// Close closes the camera and releases resources.
func (w *webcamImpl) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running || w.capture == nil {
		w.running = false
		return nil
	}

	err := w.capture.Close()
	w.capture = nil
	w.running = false
	return err
}

// Read reads a single frame from the camera into dst.
func (w *webcamImpl) Read(dst *gocv.Mat) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running || w.capture == nil {
		return ErrCameraNotOpen
	}
	if ok := w.capture.Read(dst); !ok || dst.Empty() {
		return ErrStreamEnded
	}
	return nil
}

// Drop grabs and discards a buffered frame.
func (w *webcamImpl) Drop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running && w.capture != nil {
		w.capture.Grab(1)
	}
}

// Set applies a capture property. Unsupported properties are silently
// ignored by the backend.
func (w *webcamImpl) Set(prop gocv.VideoCaptureProperties, value float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running && w.capture != nil {
		w.capture.Set(prop, value)
	}
}

// Get reads back a capture property, or 0 when the camera is closed.
func (w *webcamImpl) Get(prop gocv.VideoCaptureProperties) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running && w.capture != nil {
		return w.capture.Get(prop)
	}
	return 0
}

// Size returns the granted stream resolution.
func (w *webcamImpl) Size() image.Point {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// LatencyMs returns the nominal per-frame latency in milliseconds.
func (w *webcamImpl) LatencyMs() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fps <= 0 {
		return 1000 / DefaultFPS
	}
	return 1000 / w.fps
}

// IsOpen returns true if the camera is currently open and running.
func (w *webcamImpl) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
