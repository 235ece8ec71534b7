package track

import (
	"image"
	"math"

	"github.com/ayusman/sparsha/internal/vision"
)

// Arc test settings. The envelope bounds were fit empirically against
// pointing fingers at the working resolution.
const (
	// arcMinScore is the minimum number of accepted walk steps for a
	// contour point to qualify as a fingertip.
	arcMinScore = 50
	// arcTestLength bounds the symmetric walk along the contour.
	arcTestLength = 450
)

// arcMax is the upper angle bound at walk offset k. Near the tip the
// contour may fold back sharply; further out the silhouette must
// straighten into a finger.
func arcMax(k int) float64 {
	x := float64(k * k)
	if k < 40 {
		return -0.05*x + 175
	}
	return -0.001*x + 75
}

// arcMin is the lower angle bound at walk offset k.
func arcMin(k int) float64 {
	return math.Max(-0.1*float64(k*k)+50, 10)
}

// arcScore walks symmetrically outward from the contour point at index
// and counts how many steps stay inside the fingertip angle envelope.
// Points on the tracking region edge score zero; a walk that reaches the
// edge stops there and keeps the steps accepted so far.
func (t *Tracker) arcScore(contour []image.Point, index int) int {
	n := len(contour)
	ref := contour[index]

	if t.edgeTest(ref) {
		return 0
	}

	score := 0
	for k := 4; k < arcTestLength+4; k++ {
		prev := contour[((index-k)%n+n)%n]
		next := contour[(index+k)%n]

		if t.edgeTest(prev) || t.edgeTest(next) {
			break
		}

		angle := vision.SignedAngle(
			float64(next.X-ref.X), float64(next.Y-ref.Y),
			float64(prev.X-ref.X), float64(prev.Y-ref.Y),
		)
		angle = math.Mod(360+angle, 360)

		if angle < arcMin(k) || angle > arcMax(k) {
			break
		}
		score++
	}
	return score
}
