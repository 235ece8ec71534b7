package app

import (
	"image"
	"testing"
	"time"

	"github.com/ayusman/sparsha/internal/calibrate"
	"github.com/ayusman/sparsha/internal/capture"
	"github.com/ayusman/sparsha/internal/config"
	"github.com/ayusman/sparsha/internal/touch"
)

// identityProfile builds a profile whose correction map is the identity
// warp, so the view equals the raw camera frame.
func identityProfile(t *testing.T, size image.Point) *calibrate.Profile {
	t.Helper()

	profile, err := calibrate.NewProfile(size)
	if err != nil {
		t.Fatal(err)
	}

	data, err := profile.CorrectionMap.DataPtrFloat32()
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			i := (y*size.X + x) * 2
			data[i] = float32(x)
			data[i+1] = float32(y)
		}
	}
	return profile
}

func testConfig(size image.Point) config.Config {
	cfg := config.DefaultConfig()
	cfg.ViewWidth = size.X
	cfg.ViewHeight = size.Y
	cfg.WebcamWidth = size.X
	cfg.WebcamHeight = size.Y
	return cfg
}

func TestRun_EndsCleanlyWithStream(t *testing.T) {
	size := image.Pt(64, 48)

	webcam := capture.NewMockWebcam(size)
	if err := webcam.Open(); err != nil {
		t.Fatal(err)
	}
	defer webcam.Close()
	// A handful of identical dark frames, then end of stream.
	for i := 0; i < 5; i++ {
		webcam.QueueSolid(10, 10, 10)
	}

	screen := capture.NewMockScreenCapture(size, 10, 10, 10)
	defer screen.Close()

	injector := &touch.MockInjector{}
	application := New(testConfig(size), webcam, screen, nil, injector)
	defer application.Close()

	application.SetProfile(identityProfile(t, size))

	done := make(chan error, 1)
	go func() { done <- application.Run() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not finish with the camera stream")
	}

	// An empty scene must never press a button.
	if len(injector.Downs) != 0 {
		t.Errorf("unexpected button presses: %v", injector.Downs)
	}
}

func TestRun_RequiresProfile(t *testing.T) {
	size := image.Pt(64, 48)

	webcam := capture.NewMockWebcam(size)
	screen := capture.NewMockScreenCapture(size, 0, 0, 0)
	defer screen.Close()

	application := New(testConfig(size), webcam, screen, nil, &touch.MockInjector{})
	defer application.Close()

	if err := application.Run(); err == nil {
		t.Error("Run must fail without a calibration profile")
	}
}

func TestSetEnabled(t *testing.T) {
	size := image.Pt(64, 48)
	webcam := capture.NewMockWebcam(size)
	screen := capture.NewMockScreenCapture(size, 0, 0, 0)
	defer screen.Close()

	injector := &touch.MockInjector{}
	application := New(testConfig(size), webcam, screen, nil, injector)
	defer application.Close()

	if !application.IsEnabled() {
		t.Error("output should start enabled")
	}
	application.SetEnabled(false)
	if application.IsEnabled() {
		t.Error("output should be disabled")
	}
}
