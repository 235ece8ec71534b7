// Package config provides runtime configuration for the Sparsha touch pipeline.
package config

import (
	"fmt"
	"image"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all tunable parameters of the calibration and touch pipeline.
type Config struct {
	// WebcamID is the hardware ID of the webcam observing the projection.
	WebcamID int `yaml:"webcam_id"`
	// WebcamWidth and WebcamHeight are the requested camera dimensions.
	WebcamWidth  int `yaml:"webcam_width"`
	WebcamHeight int `yaml:"webcam_height"`
	// ViewWidth and ViewHeight form the internal working resolution. All
	// rectified images, masks and the reflectance map have this size.
	ViewWidth  int `yaml:"view_width"`
	ViewHeight int `yaml:"view_height"`
	// ChessboardCols and ChessboardRows are the calibration pattern size
	// in squares per side.
	ChessboardCols int `yaml:"chessboard_cols"`
	ChessboardRows int `yaml:"chessboard_rows"`
	// CaptureSamples is the number of frames averaged per calibration capture.
	CaptureSamples int `yaml:"capture_samples"`
	// SettleTimeMs is the wait after a display change before capturing,
	// letting camera AGC and the projector settle.
	SettleTimeMs int `yaml:"settle_time_ms"`
	// MinCoverage is the fraction of the view the detected screen polygon
	// must fill for a calibration to be accepted.
	MinCoverage float64 `yaml:"min_coverage"`
	// PredictionDelay is the size of the background delay queue in frames.
	PredictionDelay int `yaml:"prediction_delay"`
	// MonitorOffsetX and MonitorOffsetY locate the projector monitor in
	// virtual desktop coordinates.
	MonitorOffsetX int `yaml:"monitor_offset_x"`
	MonitorOffsetY int `yaml:"monitor_offset_y"`
	// SkipAutoExposure disables the exposure lock search during calibration.
	SkipAutoExposure bool `yaml:"skip_auto_exposure"`
	// ReuseCalibration loads the most recent stored calibration profile
	// instead of running interactive calibration.
	ReuseCalibration bool `yaml:"reuse_calibration"`
	// EnableTray shows a system tray toggle for suspending touch output.
	EnableTray bool `yaml:"enable_tray"`
	// DataDir is where the profile database lives. Empty means ~/.sparsha.
	DataDir string `yaml:"data_dir"`
}

// DefaultConfig returns a Config with the shipping defaults.
func DefaultConfig() Config {
	return Config{
		WebcamID:        1,
		WebcamWidth:     640,
		WebcamHeight:    480,
		ViewWidth:       640,
		ViewHeight:      480,
		ChessboardCols:  22,
		ChessboardRows:  18,
		CaptureSamples:  6,
		SettleTimeMs:    1000,
		MinCoverage:     0.10,
		PredictionDelay: 3,
	}
}

// Load reads a YAML configuration file over the defaults. A missing file
// is not an error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.WebcamWidth <= 0 || c.WebcamHeight <= 0 {
		return fmt.Errorf("invalid webcam resolution %dx%d", c.WebcamWidth, c.WebcamHeight)
	}
	if c.ViewWidth <= 0 || c.ViewHeight <= 0 {
		return fmt.Errorf("invalid view resolution %dx%d", c.ViewWidth, c.ViewHeight)
	}
	if c.ChessboardCols < 4 || c.ChessboardRows < 4 || c.ChessboardCols%2 != 0 || c.ChessboardRows%2 != 0 {
		return fmt.Errorf("chessboard size must be even and at least 4x4, got %dx%d", c.ChessboardCols, c.ChessboardRows)
	}
	if c.CaptureSamples < 1 {
		return fmt.Errorf("capture samples must be at least 1, got %d", c.CaptureSamples)
	}
	if c.MinCoverage <= 0 || c.MinCoverage > 1 {
		return fmt.Errorf("min coverage must be in (0, 1], got %f", c.MinCoverage)
	}
	if c.PredictionDelay < 1 {
		return fmt.Errorf("prediction delay must be at least 1, got %d", c.PredictionDelay)
	}
	return nil
}

// ViewSize returns the working view resolution as an image.Point.
func (c Config) ViewSize() image.Point {
	return image.Pt(c.ViewWidth, c.ViewHeight)
}

// WebcamSize returns the requested camera resolution as an image.Point.
func (c Config) WebcamSize() image.Point {
	return image.Pt(c.WebcamWidth, c.WebcamHeight)
}

// ChessboardSize returns the pattern size in squares as an image.Point.
func (c Config) ChessboardSize() image.Point {
	return image.Pt(c.ChessboardCols, c.ChessboardRows)
}
