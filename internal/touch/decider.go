// Package touch classifies tracked fingertips as touching or hovering
// and drives the host pointer.
package touch

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/sparsha/internal/track"
)

// Decision thresholds.
const (
	// minFingerAge filters transient noise; a real finger easily lives
	// past this many frames.
	minFingerAge = 5
	// touchRatio is the largest shadow-to-foreground ratio counted as
	// contact; the finger hides its own shadow when touching.
	touchRatio = 0.20
	// hoverRatio is the largest ratio counted as hovering.
	hoverRatio = 0.30
	// radiusPadding widens the test window past the tip-to-com distance.
	radiusPadding = 7
)

// Decision is the outcome of a touch test for one frame.
type Decision struct {
	// Point is the acted-on fingertip in view coordinates.
	Point image.Point
	// Touch is true for contact, false for hover.
	Touch bool
}

// Decider selects one fingertip per frame and runs the shadow ratio
// test on it. It remembers the last acted-on finger so an established
// touch is preferred over older candidates.
type Decider struct {
	lastID uint64
}

// NewDecider creates a Decider with no remembered finger.
func NewDecider() *Decider {
	return &Decider{}
}

// Decide picks the remembered fingertip if present, otherwise the
// oldest one of sufficient age, and classifies it by the ratio of
// shadow to foreground around its center of mass. The second return is
// false when no finger qualifies or the ratio implies neither touch
// nor hover.
func (d *Decider) Decide(fingertips []track.Fingertip, foregroundMask, shadowMask gocv.Mat) (Decision, bool) {
	var chosen *track.Fingertip

	oldestAge := minFingerAge
	for i := range fingertips {
		f := &fingertips[i]
		if f.ID == d.lastID {
			chosen = f
			break
		}
		if f.Age >= oldestAge {
			oldestAge = f.Age
			chosen = f
		}
	}
	if chosen == nil {
		return Decision{}, false
	}
	d.lastID = chosen.ID

	ratio := shadowRatio(*chosen, foregroundMask, shadowMask)
	switch {
	case ratio <= touchRatio:
		return Decision{Point: chosen.Point, Touch: true}, true
	case ratio <= hoverRatio:
		return Decision{Point: chosen.Point, Touch: false}, true
	default:
		return Decision{}, false
	}
}

// shadowRatio measures shadow against foreground coverage in a window
// around the finger's center of mass. A touching finger coincides with
// the shadow it casts, so the ratio stays small; a hovering finger
// exposes the full shadow outline.
func shadowRatio(finger track.Fingertip, foregroundMask, shadowMask gocv.Mat) float64 {
	offset := finger.CenterOfMass.Sub(finger.Point)
	radius := int(math.Hypot(float64(offset.X), float64(offset.Y))) + radiusPadding

	com := finger.CenterOfMass
	roi := image.Rect(
		max(com.X-radius, 0),
		max(com.Y-radius, 0),
		min(com.X+radius, shadowMask.Cols()-2),
		min(com.Y+radius, shadowMask.Rows()-2),
	)
	if roi.Empty() {
		return math.Inf(1)
	}

	shadowRegion := shadowMask.Region(roi)
	shadow := gocv.CountNonZero(shadowRegion)
	shadowRegion.Close()

	foregroundRegion := foregroundMask.Region(roi)
	foreground := gocv.CountNonZero(foregroundRegion)
	foregroundRegion.Close()

	return float64(shadow) / float64(foreground)
}
