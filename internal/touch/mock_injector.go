package touch

import "image"

// MockInjector records injected input events for tests.
type MockInjector struct {
	Cursor image.Point
	Moves  int
	Downs  []string
	Ups    []string
}

// SetCursor records the cursor position.
func (m *MockInjector) SetCursor(x, y int) {
	m.Cursor = image.Pt(x, y)
	m.Moves++
}

// ButtonDown records a button press.
func (m *MockInjector) ButtonDown(button string) {
	m.Downs = append(m.Downs, button)
}

// ButtonUp records a button release.
func (m *MockInjector) ButtonUp(button string) {
	m.Ups = append(m.Ups, button)
}
