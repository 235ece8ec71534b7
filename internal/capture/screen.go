package capture

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/vova616/screenshot"
	"gocv.io/x/gocv"
)

// ScreenCapture supplies the current framebuffer of the monitor the
// projector mirrors. Read returns true iff a new framebuffer arrived
// within the timeout; dst receives a BGRA image at native resolution.
type ScreenCapture interface {
	Read(dst *gocv.Mat, timeout time.Duration) bool
	Size() image.Point
	Close() error
}

// screenCaptureImpl implements ScreenCapture over the screenshot library.
// The library has no change notification, so every grab is reported as a
// new frame; the timeout bounds the grab rate instead.
type screenCaptureImpl struct {
	bounds   image.Rectangle
	lastGrab time.Time
	mu       sync.Mutex
}

// OpenScreenCapture probes the screen and returns a ScreenCapture for it.
func OpenScreenCapture() (ScreenCapture, error) {
	bounds, err := screenshot.ScreenRect()
	if err != nil {
		return nil, fmt.Errorf("failed to open screen capture: %w", err)
	}
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("screen capture reported empty bounds %v", bounds)
	}
	return &screenCaptureImpl{bounds: bounds}, nil
}

// Read grabs the screen into dst as BGRA. When the previous grab is more
// recent than the timeout the call first sleeps out the remainder,
// bounding the capture rate; every successful grab reports a new frame.
func (s *screenCaptureImpl) Read(dst *gocv.Mat, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if since := time.Since(s.lastGrab); since < timeout {
		time.Sleep(timeout - since)
	}

	img, err := screenshot.CaptureRect(s.bounds)
	if err != nil {
		return false
	}
	s.lastGrab = time.Now()

	// The capture is 32-bit BGRA on every supported platform; image.RGBA
	// is only the container type.
	frame, err := gocv.NewMatFromBytes(s.bounds.Dy(), s.bounds.Dx(), gocv.MatTypeCV8UC4, img.Pix)
	if err != nil {
		return false
	}
	defer frame.Close()
	frame.CopyTo(dst)
	return true
}

// Size returns the native resolution of the captured monitor.
func (s *screenCaptureImpl) Size() image.Point {
	return s.bounds.Size()
}

// Close releases the capture. The screenshot library is stateless.
func (s *screenCaptureImpl) Close() error { return nil }

// MockScreenCapture serves a fixed framebuffer for tests.
type MockScreenCapture struct {
	Frame    gocv.Mat
	NewFrame bool
	mu       sync.Mutex
}

// NewMockScreenCapture creates a mock serving a solid BGRA framebuffer.
func NewMockScreenCapture(size image.Point, b, g, r float64) *MockScreenCapture {
	frame := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC4)
	frame.SetTo(gocv.NewScalar(b, g, r, 255))
	return &MockScreenCapture{Frame: frame, NewFrame: true}
}

// Read copies the mock framebuffer into dst when NewFrame is set.
func (m *MockScreenCapture) Read(dst *gocv.Mat, _ time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.NewFrame {
		return false
	}
	m.Frame.CopyTo(dst)
	return true
}

// Size returns the mock framebuffer resolution.
func (m *MockScreenCapture) Size() image.Point {
	return image.Pt(m.Frame.Cols(), m.Frame.Rows())
}

// Close releases the mock framebuffer.
func (m *MockScreenCapture) Close() error {
	m.Frame.Close()
	return nil
}
