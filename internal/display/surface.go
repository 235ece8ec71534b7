// Package display manages the fullscreen projector surface used during
// calibration to show patterns, solid colors and user feedback.
package display

import (
	"image"

	"gocv.io/x/gocv"
)

// Surface is a borderless fullscreen window on the projector monitor.
type Surface struct {
	window *gocv.Window
	offset image.Point
	size   image.Point
	buffer gocv.Mat
}

// NewSurface opens a fullscreen window at the given monitor offset. The
// size is the projector resolution used for pattern stretching; a zero
// size falls back to 1920x1080.
func NewSurface(name string, offset, size image.Point) *Surface {
	window := gocv.NewWindow(name)
	window.MoveWindow(offset.X, offset.Y)
	window.SetWindowProperty(gocv.WindowPropertyFullscreen, gocv.WindowFullscreen)

	if size.X <= 0 || size.Y <= 0 {
		size = image.Pt(1920, 1080)
	}

	return &Surface{
		window: window,
		offset: offset,
		size:   size,
		buffer: gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3),
	}
}

// Size returns the surface resolution used for pattern stretching.
func (s *Surface) Size() image.Point {
	return s.size
}

// ShowColor fills the surface with a solid BGR color.
func (s *Surface) ShowColor(b, g, r float64) {
	s.buffer.SetTo(gocv.NewScalar(b, g, r, 0))
	s.window.IMShow(s.buffer)
	s.window.WaitKey(1)
}

// ShowPattern stretches a pattern image over the whole surface using
// nearest-neighbour sampling so pattern cells stay crisp.
func (s *Surface) ShowPattern(pattern gocv.Mat) {
	gocv.Resize(pattern, &s.buffer, s.size, 0, 0, gocv.InterpolationNearestNeighbor)
	s.window.IMShow(s.buffer)
	s.window.WaitKey(1)
}

// ShowFrame displays an arbitrary frame without rescaling.
func (s *Surface) ShowFrame(frame gocv.Mat) {
	s.window.IMShow(frame)
	s.window.WaitKey(1)
}

// WaitKey polls the window event loop for up to delayMs milliseconds and
// returns the pressed key, or -1 if none.
func (s *Surface) WaitKey(delayMs int) int {
	return s.window.WaitKey(delayMs)
}

// Close destroys the window and releases the draw buffer.
func (s *Surface) Close() error {
	s.buffer.Close()
	return s.window.Close()
}
