// Package app wires the calibration and touch pipeline together and
// runs the consumer loop.
package app

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/sparsha/internal/calibrate"
	"github.com/ayusman/sparsha/internal/capture"
	"github.com/ayusman/sparsha/internal/config"
	"github.com/ayusman/sparsha/internal/display"
	"github.com/ayusman/sparsha/internal/mask"
	"github.com/ayusman/sparsha/internal/predict"
	"github.com/ayusman/sparsha/internal/store"
	"github.com/ayusman/sparsha/internal/touch"
	"github.com/ayusman/sparsha/internal/track"
)

// focusSize is the tracking region placed around an active touch point.
var focusSize = image.Pt(256, 256)

// App owns the camera, calibration and all consumer-side pipeline state.
type App struct {
	cfg     config.Config
	webcam  capture.Webcam
	screen  capture.ScreenCapture
	store   *store.Store
	pointer *touch.Mouse

	profile   *calibrate.Profile
	predictor *predict.Predictor

	enabled bool
	mu      sync.RWMutex
}

// New creates an App over the given collaborators. The store is
// optional; without it calibration profiles are not persisted.
func New(cfg config.Config, webcam capture.Webcam, screen capture.ScreenCapture, st *store.Store, injector touch.Injector) *App {
	monitor := touch.PrimaryMonitor(image.Pt(cfg.MonitorOffsetX, cfg.MonitorOffsetY))

	return &App{
		cfg:     cfg,
		webcam:  webcam,
		screen:  screen,
		store:   st,
		pointer: touch.NewMouse(cfg.ViewSize(), monitor, injector),
		enabled: true,
	}
}

// SetEnabled suspends or resumes pointer output. The pipeline keeps
// running either way so tracking state stays warm.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
	if !enabled {
		a.pointer.ReleaseHold()
	}
}

// IsEnabled returns whether pointer output is active.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetProfile installs an existing calibration profile, taking ownership
// of it. Used in place of Prepare when calibration happened elsewhere.
func (a *App) SetProfile(p *calibrate.Profile) {
	if a.profile != nil {
		a.profile.Close()
	}
	a.profile = p
}

// Close releases the calibration profile.
func (a *App) Close() {
	if a.profile != nil {
		a.profile.Close()
		a.profile = nil
	}
}

// Prepare obtains a calibration profile, either from the store or by
// running the interactive calibration on the projector surface.
func (a *App) Prepare() error {
	if a.cfg.ReuseCalibration && a.store != nil {
		profile, err := a.store.LoadLatestProfile()
		if err == nil && profile.ViewSize == a.cfg.ViewSize() {
			log.Println("Loaded stored calibration profile")
			a.profile = profile
			return nil
		}
		if err != nil && !errors.Is(err, store.ErrNoProfile) {
			return fmt.Errorf("failed to load calibration: %w", err)
		}
		if profile != nil {
			profile.Close()
		}
		log.Println("No usable stored calibration, running interactive calibration")
	}

	surface := display.NewSurface(
		"Sparsha Calibration",
		image.Pt(a.cfg.MonitorOffsetX, a.cfg.MonitorOffsetY),
		image.Point{},
	)
	defer surface.Close()

	calibrator := calibrate.NewCalibrator(a.cfg)
	profile, err := calibrator.Calibrate(a.webcam, surface)
	if err != nil {
		return fmt.Errorf("calibration failed: %w", err)
	}
	a.profile = profile

	if a.store != nil {
		if id, err := a.store.SaveProfile(profile); err != nil {
			log.Printf("Failed to persist calibration: %v", err)
		} else {
			log.Printf("Saved calibration profile %s", id)
		}
	}
	return nil
}

// Run starts the predictor and processes camera frames until the stream
// ends. It blocks on the consumer loop.
func (a *App) Run() error {
	if a.profile == nil {
		return errors.New("app is not calibrated")
	}

	predictor, err := predict.New(a.screen, a.profile, a.cfg.PredictionDelay)
	if err != nil {
		return err
	}
	a.predictor = predictor
	predictor.Start()
	defer predictor.Stop()

	generator, err := mask.NewGenerator(a.profile.ViewSize, a.profile.AmbientIntensity())
	if err != nil {
		return err
	}
	defer generator.Close()

	tracker := track.NewTracker(a.profile.ViewSize)
	decider := touch.NewDecider()

	rawFrame := gocv.NewMat()
	defer rawFrame.Close()
	view := gocv.NewMat()
	defer view.Close()
	background := gocv.NewMat()
	defer background.Close()
	foregroundMask := gocv.NewMat()
	defer foregroundMask.Close()
	shadowMask := gocv.NewMat()
	defer shadowMask.Close()

	for {
		if err := a.webcam.Read(&rawFrame); err != nil {
			if errors.Is(err, capture.ErrStreamEnded) {
				log.Println("Camera stream ended")
				a.pointer.ReleaseHold()
				return nil
			}
			return fmt.Errorf("camera read: %w", err)
		}

		a.profile.Correct(rawFrame, &view)

		a.predictor.ReadBackground(&background)
		if err := generator.Segment(view, background, &foregroundMask, &shadowMask); err != nil {
			return fmt.Errorf("segmentation: %w", err)
		}

		fingertips := tracker.Detect(foregroundMask)

		decision, ok := decider.Decide(fingertips, foregroundMask, shadowMask)
		if !ok {
			a.pointer.ReleaseHold()
			continue
		}

		tracker.Focus(decision.Point, focusSize)

		if !a.IsEnabled() {
			continue
		}

		a.pointer.Move(decision.Point, true)
		if decision.Touch {
			a.pointer.HoldLeft()
		}
	}
}
