// Package tray provides a system tray toggle for suspending touch
// output without stopping the pipeline.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(enabled bool)
	onQuit   func()
	enabled  bool
	mu       sync.RWMutex

	menuToggle *systray.MenuItem
}

// New creates a new Tray instance with touch output enabled by default.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback invoked when the enabled state changes.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnQuit sets the callback invoked when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// IsEnabled returns whether touch output is currently enabled.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the system tray event loop.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady sets up the menu structure once the tray is available.
func (t *Tray) onReady() {
	systray.SetTitle("Sparsha")
	systray.SetTooltip("Projected touch surface")

	t.menuToggle = systray.AddMenuItemCheckbox("Touch Enabled", "Toggle touch output", true)
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Stop the touch pipeline")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.toggle()
			case <-menuQuit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

// toggle flips the enabled state and updates the checkbox.
func (t *Tray) toggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	callback := t.onToggle
	t.mu.Unlock()

	if enabled {
		t.menuToggle.Check()
	} else {
		t.menuToggle.Uncheck()
	}
	if callback != nil {
		callback(enabled)
	}
}

// onExit runs when the tray shuts down.
func (t *Tray) onExit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}
