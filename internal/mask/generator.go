// Package mask segments the rectified camera view into foreground and
// shadow masks by subtracting the predicted background.
package mask

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Segmentation thresholds.
const (
	// noiseOffset is added to the measured noise floor when splitting
	// foreground from background.
	noiseOffset = 15
	// shadowOffset above the ambient intensity is the brightest a pixel
	// can be while still counting as shadow.
	shadowOffset = 50
	// borderThickness of the screen-edge stripe used to keep only
	// components that enter from outside the view.
	borderThickness = 3
	// smoothThreshold rebinarizes the mask after the box blur.
	smoothThreshold = 192
)

// Generator turns a rectified view plus its predicted background into
// foreground and shadow masks. It keeps the previous frame's background
// mask as the sampling region for the noise floor.
type Generator struct {
	ambientIntensity float64

	sharpenKernel gocv.Mat
	morphKernel   gocv.Mat
	borderMask    gocv.Mat

	view           gocv.Mat
	difference     gocv.Mat
	score          gocv.Mat
	noiseMask      gocv.Mat
	grayView       gocv.Mat
	white          gocv.Mat
	backgroundMask gocv.Mat
}

// NewGenerator creates a Generator for the given view resolution and
// calibrated ambient intensity.
func NewGenerator(viewSize image.Point, ambientIntensity float64) (*Generator, error) {
	if viewSize.X <= 0 || viewSize.Y <= 0 {
		return nil, fmt.Errorf("invalid view resolution %v", viewSize)
	}

	sharpen := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	for i, v := range []float32{0, -0.25, 0, -0.25, 2, -0.25, 0, -0.25, 0} {
		sharpen.SetFloatAt(i/3, i%3, v)
	}

	g := &Generator{
		ambientIntensity: ambientIntensity,
		sharpenKernel:    sharpen,
		morphKernel:      gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
		borderMask:       borderMask(viewSize),
		view:             gocv.NewMat(),
		difference:       gocv.NewMat(),
		score:            gocv.NewMat(),
		noiseMask:        gocv.NewMat(),
		grayView:         gocv.NewMat(),
		white:            gocv.NewMatWithSize(viewSize.Y, viewSize.X, gocv.MatTypeCV8U),
		backgroundMask:   gocv.NewMatWithSize(viewSize.Y, viewSize.X, gocv.MatTypeCV8U),
	}
	g.white.SetTo(gocv.NewScalar(255, 0, 0, 0))
	// Everything counts as background until the first segmentation.
	g.backgroundMask.SetTo(gocv.NewScalar(255, 0, 0, 0))
	return g, nil
}

// Close releases all retained mats.
func (g *Generator) Close() {
	g.sharpenKernel.Close()
	g.morphKernel.Close()
	g.borderMask.Close()
	g.view.Close()
	g.difference.Close()
	g.score.Close()
	g.noiseMask.Close()
	g.grayView.Close()
	g.white.Close()
	g.backgroundMask.Close()
}

// borderMask renders the 3 px screen-edge stripe.
func borderMask(size image.Point) gocv.Mat {
	mask := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8U)
	mask.SetTo(gocv.NewScalar(0, 0, 0, 0))

	white := color.RGBA{255, 255, 255, 0}
	w, h := size.X-1, size.Y-1
	gocv.Line(&mask, image.Pt(0, 0), image.Pt(w, 0), white, borderThickness)
	gocv.Line(&mask, image.Pt(w, 0), image.Pt(w, h), white, borderThickness)
	gocv.Line(&mask, image.Pt(w, h), image.Pt(0, h), white, borderThickness)
	gocv.Line(&mask, image.Pt(0, h), image.Pt(0, 0), white, borderThickness)
	return mask
}

// Segment computes the foreground and shadow masks for one frame. The
// view is the rectified 8-bit BGR camera frame; the background is the
// delayed float prediction of the same instant.
func (g *Generator) Segment(view, background gocv.Mat, foregroundMask, shadowMask *gocv.Mat) error {
	if view.Empty() || background.Empty() {
		return fmt.Errorf("segment requires a view and a background")
	}

	// Sharpen the view so finger edges survive the subtraction.
	gocv.Filter2D(view, &g.view, gocv.MatTypeCV32F, g.sharpenKernel, image.Pt(-1, -1), 0, gocv.BorderDefault)

	// Difference against the prediction, weighted towards red where
	// skin contrasts most against projected content.
	gocv.AbsDiff(background, g.view, &g.difference)
	weights := gocv.NewMatWithSize(1, 3, gocv.MatTypeCV32F)
	weights.SetFloatAt(0, 0, 0.75)
	weights.SetFloatAt(0, 1, 0.75)
	weights.SetFloatAt(0, 2, 1.0)
	gocv.Transform(g.difference, &g.score, weights)
	weights.Close()

	// Anything within the noise floor of the quiet region is background.
	noiseFloor := g.score.MeanWithMask(g.backgroundMask)
	gocv.Threshold(g.score, &g.score, float32(noiseFloor.Val1+noiseOffset), 255, gocv.ThresholdBinary)
	g.score.ConvertTo(foregroundMask, gocv.MatTypeCV8U)

	// Knock out small specks and thin lines.
	gocv.Erode(*foregroundMask, foregroundMask, g.morphKernel)
	gocv.Erode(*foregroundMask, foregroundMask, g.morphKernel)

	// Keep only components that reach the screen border; hands enter
	// from outside the projection, floating islands are noise.
	gocv.Add(*foregroundMask, g.borderMask, &g.noiseMask)
	if err := floodFillZero(&g.noiseMask, image.Pt(0, 0)); err != nil {
		return err
	}
	gocv.Subtract(*foregroundMask, g.noiseMask, foregroundMask)
	gocv.Subtract(*foregroundMask, g.borderMask, foregroundMask)

	// Regrow and smooth the surviving silhouettes.
	gocv.Dilate(*foregroundMask, foregroundMask, g.morphKernel)
	gocv.Dilate(*foregroundMask, foregroundMask, g.morphKernel)
	gocv.BoxFilter(*foregroundMask, foregroundMask, -1, image.Pt(5, 5))
	gocv.Threshold(*foregroundMask, foregroundMask, smoothThreshold, 255, gocv.ThresholdBinary)

	// The complement seeds next frame's noise floor.
	gocv.BitwiseNot(*foregroundMask, &g.backgroundMask)

	// Shadows are foreground-region pixels darker than ambient light.
	gocv.CvtColor(view, &g.grayView, gocv.ColorBGRToGray)
	g.white.CopyToWithMask(&g.grayView, g.backgroundMask)
	gocv.Threshold(g.grayView, shadowMask, float32(g.ambientIntensity+shadowOffset), 255, gocv.ThresholdBinaryInv)

	return nil
}

// BackgroundMask exposes the previous frame's background region.
func (g *Generator) BackgroundMask() gocv.Mat {
	return g.backgroundMask
}
