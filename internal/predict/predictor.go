// Package predict runs the producer side of the touch pipeline: it
// captures the screen buffer, predicts its appearance through the
// projector-camera loop, and holds the result in a fixed-latency ring
// so the consumer reads a background aligned with the camera delay.
package predict

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/sparsha/internal/calibrate"
	"github.com/ayusman/sparsha/internal/capture"
)

// Prediction rate of the producer loop.
const (
	RateHz = 60
	rateMs = 1000 / RateHz
)

// Predictor owns the screen-capture handle and a private copy of the
// calibration profile, and produces delayed background predictions.
type Predictor struct {
	screen  capture.ScreenCapture
	profile *calibrate.Profile
	delay   int

	// The ring and write index are the only state shared with the
	// consumer; the producer writes at writeIndex then advances it, so
	// writeIndex always names the oldest held frame.
	mu         sync.Mutex
	ring       []gocv.Mat
	writeIndex int

	runflag atomic.Bool
	done    chan struct{}
}

// New creates a Predictor over the given screen capture with a delay
// ring of the given size. The profile is cloned so the producer thread
// works against its own copy.
func New(screen capture.ScreenCapture, profile *calibrate.Profile, delay int) (*Predictor, error) {
	if delay < 1 {
		return nil, fmt.Errorf("prediction delay must be at least 1, got %d", delay)
	}

	size := profile.ViewSize
	ring := make([]gocv.Mat, delay)
	for i := range ring {
		ring[i] = gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV32FC3)
		ring[i].SetTo(gocv.NewScalar(0, 0, 0, 0))
	}

	return &Predictor{
		screen:  screen,
		profile: profile.Clone(),
		delay:   delay,
		ring:    ring,
	}, nil
}

// Start launches the producer goroutine.
func (p *Predictor) Start() {
	if p.runflag.Swap(true) {
		return
	}
	p.done = make(chan struct{})
	go p.run()
}

// Stop signals the producer to exit and joins it, then releases the ring.
func (p *Predictor) Stop() {
	if !p.runflag.Swap(false) {
		return
	}
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.ring {
		p.ring[i].Close()
	}
	p.ring = nil
	p.profile.Close()
}

// ReadBackground copies the oldest held prediction into dst. The read
// slot coincides with the write slot: the producer advances the index
// after writing, so from here it names the next frame to be overwritten,
// which is the oldest.
func (p *Predictor) ReadBackground(dst *gocv.Mat) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ring == nil {
		return
	}
	p.ring[p.writeIndex].CopyTo(dst)
}

// run is the producer loop, clocked to the prediction rate. Every tick
// pushes a frame onto the ring, reusing the previous prediction when no
// new screen buffer arrived; the ring is a time-domain sample-and-hold,
// not a frame-change queue.
func (p *Predictor) run() {
	defer close(p.done)

	size := p.profile.ViewSize
	rawCapture := gocv.NewMat()
	defer rawCapture.Close()
	resized := gocv.NewMat()
	defer resized.Close()
	frame := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3)
	defer frame.Close()
	prediction := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV32FC3)
	defer prediction.Close()
	prediction.SetTo(gocv.NewScalar(0, 0, 0, 0))

	for p.runflag.Load() {
		start := time.Now()

		if newFrame := p.screen.Read(&rawCapture, (rateMs-1)*time.Millisecond); newFrame {
			gocv.CvtColor(rawCapture, &resized, gocv.ColorBGRAToBGR)
			gocv.Resize(resized, &frame, size, 0, 0, gocv.InterpolationLinear)

			if err := p.profile.Predict(frame, &prediction); err != nil {
				log.Printf("Prediction failed: %v", err)
			}
		}

		// Hold the loop to the prediction rate before publishing.
		for time.Since(start) < rateMs*time.Millisecond {
			time.Sleep(time.Millisecond)
		}

		p.publish(prediction)
	}
}

// publish copies a prediction into the write slot and advances the ring.
func (p *Predictor) publish(prediction gocv.Mat) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ring == nil {
		return
	}
	prediction.CopyTo(&p.ring[p.writeIndex])
	p.writeIndex = (p.writeIndex + 1) % p.delay
}
