package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ayusman/sparsha/internal/app"
	"github.com/ayusman/sparsha/internal/capture"
	"github.com/ayusman/sparsha/internal/config"
	"github.com/ayusman/sparsha/internal/store"
	"github.com/ayusman/sparsha/internal/touch"
	"github.com/ayusman/sparsha/internal/tray"
)

func main() {
	fmt.Println("Sparsha - Projected Touch Surface")

	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// A single optional positional argument overrides the webcam id.
	if len(os.Args) == 2 {
		id, err := strconv.Atoi(os.Args[1])
		if err != nil {
			log.Fatalf("Invalid webcam id %q", os.Args[1])
		}
		cfg.WebcamID = id
	}

	webcam := capture.NewWebcam(cfg.WebcamID, cfg.WebcamSize(), capture.DefaultFPS)
	if err := webcam.Open(); err != nil {
		log.Fatalf("Failed to open webcam %d: %v", cfg.WebcamID, err)
	}
	defer webcam.Close()
	size := webcam.Size()
	fmt.Printf("Loaded webcam (%dx%d)\n", size.X, size.Y)

	screen, err := capture.OpenScreenCapture()
	if err != nil {
		log.Fatalf("Failed to open screen capture: %v", err)
	}
	defer screen.Close()

	st, err := openStore(cfg)
	if err != nil {
		log.Printf("Calibration store unavailable: %v", err)
	} else {
		defer st.Close()
	}

	application := app.New(cfg, webcam, screen, st, touch.RobotgoInjector{})
	defer application.Close()

	if err := application.Prepare(); err != nil {
		log.Fatalf("Calibration failed: %v", err)
	}

	if cfg.EnableTray {
		t := tray.New()
		t.OnToggle(application.SetEnabled)
		go t.Run()
		defer t.Quit()
	}

	if err := application.Run(); err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
}

// openStore opens the calibration profile database under the data
// directory, creating the directory if needed.
func openStore(cfg config.Config) (*store.Store, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dataDir = filepath.Join(homeDir, ".sparsha")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	return store.New(filepath.Join(dataDir, "sparsha.db"))
}

// configPath finds the configuration file in the working directory or its
// config subdirectory, falling back to ~/.sparsha/sparsha.yaml.
func configPath() string {
	candidates := []string{"sparsha.yaml", filepath.Join("config", "sparsha.yaml")}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "sparsha.yaml"
	}
	return filepath.Join(homeDir, ".sparsha", "sparsha.yaml")
}
