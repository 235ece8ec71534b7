package touch

import (
	"image"
	"math"

	"github.com/go-vgo/robotgo"
)

// Cursor smoothing settings, in host screen pixels.
const (
	// dragThreshold separates intentional motion from jitter.
	dragThreshold = 20
	// jumpThreshold separates repositioning from dragging.
	jumpThreshold = 150
	// stopRate damps sub-threshold jitter almost completely.
	stopRate = 0.05
	// dragRate trails intentional motion closely.
	dragRate = 0.8
)

// Injector issues raw synthetic input events to the host.
type Injector interface {
	SetCursor(x, y int)
	ButtonDown(button string)
	ButtonUp(button string)
}

// RobotgoInjector drives the host pointer through robotgo.
type RobotgoInjector struct{}

// SetCursor moves the cursor to absolute screen coordinates.
func (RobotgoInjector) SetCursor(x, y int) {
	robotgo.Move(x, y)
}

// ButtonDown presses and holds a mouse button.
func (RobotgoInjector) ButtonDown(button string) {
	robotgo.MouseToggle("down", button)
}

// ButtonUp releases a mouse button.
func (RobotgoInjector) ButtonUp(button string) {
	robotgo.MouseToggle("up", button)
}

// PrimaryMonitor returns the primary monitor rectangle shifted by the
// configured virtual-desktop offset.
func PrimaryMonitor(offset image.Point) image.Rectangle {
	width, height := robotgo.GetScreenSize()
	return image.Rect(0, 0, width, height).Add(offset)
}

// Mouse maps view coordinates onto a monitor and drives the pointer
// with motion smoothing and button-hold bookkeeping.
type Mouse struct {
	injector Injector
	offset   image.Point
	scaleX   float64
	scaleY   float64

	x, y      float64
	leftDown  bool
	rightDown bool
}

// NewMouse creates a Mouse mapping the view region onto the monitor
// rectangle. The offset and scaling are fixed at construction.
func NewMouse(viewSize image.Point, monitor image.Rectangle, injector Injector) *Mouse {
	return &Mouse{
		injector: injector,
		offset:   monitor.Min,
		scaleX:   float64(monitor.Dx()) / float64(viewSize.X),
		scaleY:   float64(monitor.Dy()) / float64(viewSize.Y),
	}
}

// Move positions the cursor at the view point mapped into screen
// coordinates. With smoothing, large displacements jump immediately,
// deliberate motion is trailed and jitter is damped to a near stop.
func (m *Mouse) Move(p image.Point, smoothing bool) {
	nx := float64(p.X)*m.scaleX + float64(m.offset.X)
	ny := float64(p.Y)*m.scaleY + float64(m.offset.Y)

	if smoothing {
		dx, dy := nx-m.x, ny-m.y
		switch dist := math.Hypot(dx, dy); {
		case dist > jumpThreshold:
			m.x, m.y = nx, ny
		case dist > dragThreshold:
			m.x += dragRate * dx
			m.y += dragRate * dy
		default:
			m.x += stopRate * dx
			m.y += stopRate * dy
		}
	} else {
		m.x, m.y = nx, ny
	}

	m.injector.SetCursor(int(m.x), int(m.y))
}

// HoldLeft presses and holds the left button.
func (m *Mouse) HoldLeft() {
	m.injector.ButtonDown("left")
	m.leftDown = true
}

// HoldRight presses and holds the right button.
func (m *Mouse) HoldRight() {
	m.injector.ButtonDown("right")
	m.rightDown = true
}

// ReleaseHold releases every currently held button.
func (m *Mouse) ReleaseHold() {
	if m.leftDown {
		m.injector.ButtonUp("left")
		m.leftDown = false
	}
	if m.rightDown {
		m.injector.ButtonUp("right")
		m.rightDown = false
	}
}

// Position returns the smoothed cursor position in screen coordinates.
func (m *Mouse) Position() (float64, float64) {
	return m.x, m.y
}
