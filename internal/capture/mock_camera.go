package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MockWebcam is a Webcam implementation that serves queued frames, for
// testing the pipeline without camera hardware.
type MockWebcam struct {
	size   image.Point
	frames []gocv.Mat
	next   int
	props  map[gocv.VideoCaptureProperties]float64
	open   bool
	mu     sync.Mutex
}

// NewMockWebcam creates a MockWebcam of the given resolution.
func NewMockWebcam(size image.Point) *MockWebcam {
	return &MockWebcam{
		size:  size,
		props: make(map[gocv.VideoCaptureProperties]float64),
	}
}

// Queue appends a frame to be served by Read. The mock takes ownership
// of the Mat.
func (m *MockWebcam) Queue(frame gocv.Mat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame)
}

// QueueSolid appends a solid BGR frame.
func (m *MockWebcam) QueueSolid(b, g, r float64) {
	frame := gocv.NewMatWithSize(m.size.Y, m.size.X, gocv.MatTypeCV8UC3)
	frame.SetTo(gocv.NewScalar(b, g, r, 0))
	m.Queue(frame)
}

// Open marks the mock camera as open.
func (m *MockWebcam) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	return nil
}

// Close releases all queued frames.
func (m *MockWebcam) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.frames {
		m.frames[i].Close()
	}
	m.frames = nil
	m.open = false
	return nil
}

// Read serves the next queued frame; an exhausted queue ends the stream.
func (m *MockWebcam) Read(dst *gocv.Mat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return ErrCameraNotOpen
	}
	if m.next >= len(m.frames) {
		return ErrStreamEnded
	}

	m.frames[m.next].CopyTo(dst)
	m.next++
	return nil
}

// Drop is a no-op for the mock.
func (m *MockWebcam) Drop() {}

// Set records the property value.
func (m *MockWebcam) Set(prop gocv.VideoCaptureProperties, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.props[prop] = value
}

// Get returns a previously recorded property value.
func (m *MockWebcam) Get(prop gocv.VideoCaptureProperties) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.props[prop]
}

// Size returns the mock resolution.
func (m *MockWebcam) Size() image.Point { return m.size }

// LatencyMs returns a nominal latency for the mock stream.
func (m *MockWebcam) LatencyMs() int { return 1000 / DefaultFPS }

// IsOpen returns whether Open has been called.
func (m *MockWebcam) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}
