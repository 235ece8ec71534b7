package calibrate

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Robust homography estimation settings.
const (
	homographyConfidence = 0.999
	homographyThreshold  = 3.0
	homographyIterations = 1000
)

// DetectionError is a recoverable calibration failure. The message is
// shown to the user before the calibration loop restarts.
type DetectionError struct {
	Message string
}

func (e *DetectionError) Error() string {
	return e.Message
}

func detectionFailure(format string, args ...any) error {
	return &DetectionError{Message: fmt.Sprintf(format, args...)}
}

// detectScreen locates the projected screen in the given color samples.
// Each sample is masked by its closeness to the displayed color; the
// screen region is the set of pixels that matched all colors. Returns
// the four sub-pixel corners ordered counter-clockwise from the top left.
func detectScreen(colors [][3]float64, samples []gocv.Mat) ([]gocv.Point2f, error) {
	if len(samples) == 0 || len(samples) != len(colors) {
		return nil, fmt.Errorf("sample count %d does not match color count %d", len(samples), len(colors))
	}

	difference := gocv.NewMat()
	defer difference.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	solid := gocv.NewMatWithSize(samples[0].Rows(), samples[0].Cols(), gocv.MatTypeCV8UC3)
	defer solid.Close()

	// Intersect the per-color masks; only the screen survives all four.
	screenMask := gocv.NewMat()
	defer screenMask.Close()

	for i, c := range colors {
		solid.SetTo(gocv.NewScalar(c[0], c[1], c[2], 0))

		gocv.AbsDiff(samples[i], solid, &difference)
		gocv.CvtColor(difference, &mask, gocv.ColorBGRToGray)
		gocv.Threshold(mask, &mask, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)

		if screenMask.Empty() {
			mask.CopyTo(&screenMask)
		} else {
			gocv.BitwiseAnd(screenMask, mask, &screenMask)
		}
	}

	// The screen region is the largest external contour in the mask.
	contours := gocv.FindContours(screenMask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return nil, detectionFailure("Screen was not detected")
	}

	best, bestArea := 0, 0.0
	for i := 0; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); area > bestArea {
			best, bestArea = i, area
		}
	}

	// A properly detected screen simplifies to exactly four vertices.
	simplified := gocv.ApproxPolyDP(contours.At(best), 4, true)
	defer simplified.Close()

	if simplified.Size() != 4 {
		return nil, detectionFailure("Screen contour had %d corners, expected 4", simplified.Size())
	}

	// The whole screen must be visible, so no corner may touch the border.
	corners := gocv.NewMatWithSize(4, 1, gocv.MatTypeCV32FC2)
	defer corners.Close()
	for i := 0; i < 4; i++ {
		vertex := simplified.At(i)
		if vertex.X <= 0 || vertex.Y <= 0 || vertex.X >= screenMask.Cols()-1 || vertex.Y >= screenMask.Rows()-1 {
			return nil, detectionFailure("Screen touches the edge of the camera view")
		}
		corners.SetFloatAt(i, 0, float32(vertex.X))
		corners.SetFloatAt(i, 1, float32(vertex.Y))
	}

	criteria := gocv.NewTermCriteria(gocv.Count, 500, 0)
	gocv.CornerSubPix(screenMask, &corners, image.Pt(30, 30), image.Pt(-1, -1), criteria)

	refined := make([]gocv.Point2f, 4)
	for i := 0; i < 4; i++ {
		refined[i] = gocv.Point2f{X: corners.GetFloatAt(i, 0), Y: corners.GetFloatAt(i, 1)}
	}
	return orderScreenCorners(refined), nil
}

// orderScreenCorners sorts four corners counter-clockwise starting at
// the top left, by the centroid-relative quadrant each falls in.
func orderScreenCorners(corners []gocv.Point2f) []gocv.Point2f {
	var cx, cy float32
	for _, c := range corners {
		cx += c.X
		cy += c.Y
	}
	cx *= 0.25
	cy *= 0.25

	ordered := make([]gocv.Point2f, 4)
	for _, c := range corners {
		var index int
		if c.X < cx {
			if c.Y < cy {
				index = 0
			} else {
				index = 1
			}
		} else {
			if c.Y < cy {
				index = 3
			} else {
				index = 2
			}
		}
		ordered[index] = c
	}
	return ordered
}

// detectChessboard finds the inner chessboard corners in a captured
// sample. The sample is painted onto a white fill of the screen region
// first; the corner detector needs a quiet margin around the pattern.
func detectChessboard(screenCorners []gocv.Point2f, sample gocv.Mat, boardSize image.Point) (gocv.Mat, error) {
	innerSize := image.Pt(boardSize.X-1, boardSize.Y-1)

	polygon := make([]image.Point, len(screenCorners))
	for i, c := range screenCorners {
		polygon[i] = image.Pt(int(c.X), int(c.Y))
	}
	screenPoly := gocv.NewPointsVectorFromPoints([][]image.Point{polygon})
	defer screenPoly.Close()

	bordered := gocv.NewMatWithSize(sample.Rows(), sample.Cols(), gocv.MatTypeCV8UC3)
	defer bordered.Close()
	bordered.SetTo(gocv.NewScalar(0, 0, 0, 0))
	gocv.FillPoly(&bordered, screenPoly, color.RGBA{255, 255, 255, 0})
	gocv.BitwiseNot(bordered, &bordered)
	gocv.Add(bordered, sample, &bordered)

	corners := gocv.NewMat()
	found := gocv.FindChessboardCorners(bordered, innerSize, &corners, gocv.CalibCBAdaptiveThresh|gocv.CalibCBNormalizeImage)
	if !found {
		corners.Close()
		return gocv.Mat{}, detectionFailure("Chessboard corners were not found")
	}
	return corners, nil
}

// idealChessboardCorners places the inner pattern corners on a perfect
// grid in view coordinates.
func idealChessboardCorners(viewSize, boardSize image.Point) []gocv.Point2f {
	corners := make([]gocv.Point2f, 0, (boardSize.Y-1)*(boardSize.X-1))
	for r := 1; r < boardSize.Y; r++ {
		for c := 1; c < boardSize.X; c++ {
			corners = append(corners, gocv.Point2f{
				X: float32(c*viewSize.X) / float32(boardSize.X),
				Y: float32(r*viewSize.Y) / float32(boardSize.Y),
			})
		}
	}
	return corners
}

// findGeometricModel fits the combined lens-distortion and perspective
// model from the color samples and the chessboard sample. On success the
// profile's correction map, view homography and screen contour are
// filled in and the raw screen corners are returned.
func (c *Calibrator) findGeometricModel(
	profile *Profile,
	colors [][3]float64,
	samples []gocv.Mat,
	chessboardSample gocv.Mat,
	boardSize image.Point,
) ([]gocv.Point2f, error) {
	if boardSize.X <= 2 || boardSize.Y <= 2 {
		return nil, fmt.Errorf("chessboard size %v too small", boardSize)
	}

	camSize := image.Pt(chessboardSample.Cols(), chessboardSample.Rows())

	// Stage 1: find the raw screen contour.
	screenCorners, err := detectScreen(colors, samples)
	if err != nil {
		return nil, err
	}

	rawBoardCorners, err := detectChessboard(screenCorners, chessboardSample, boardSize)
	if err != nil {
		return nil, err
	}
	defer rawBoardCorners.Close()

	// Stage 2: fit the camera intrinsics from the single chessboard view.
	idealCorners := idealChessboardCorners(profile.ViewSize, boardSize)

	objectPoints := gocv.NewPoints3fVector()
	defer objectPoints.Close()
	ideal3f := make([]gocv.Point3f, len(idealCorners))
	for i, p := range idealCorners {
		ideal3f[i] = gocv.Point3f{X: p.X, Y: p.Y, Z: 0}
	}
	obj := gocv.NewPoint3fVectorFromPoints(ideal3f)
	objectPoints.Append(obj)
	obj.Close()

	imagePoints := gocv.NewPoints2fVector()
	defer imagePoints.Close()
	img := gocv.NewPoint2fVectorFromMat(rawBoardCorners)
	imagePoints.Append(img)
	img.Close()

	cameraMatrix := gocv.NewMat()
	defer cameraMatrix.Close()
	distCoeffs := gocv.NewMat()
	defer distCoeffs.Close()
	rvecs := gocv.NewMat()
	defer rvecs.Close()
	tvecs := gocv.NewMat()
	defer tvecs.Close()

	gocv.CalibrateCamera(objectPoints, imagePoints, camSize, &cameraMatrix, &distCoeffs, &rvecs, &tvecs, gocv.CalibFlag(0))

	// Preserve all source pixels when rescaling the intrinsics.
	optimalMatrix, _ := gocv.GetOptimalNewCameraMatrixWithParams(cameraMatrix, distCoeffs, camSize, 1.0, camSize, false)
	defer optimalMatrix.Close()

	lensMap := gocv.NewMat()
	defer lensMap.Close()
	lensStub := gocv.NewMat()
	defer lensStub.Close()
	gocv.InitUndistortRectifyMap(cameraMatrix, distCoeffs, emptyMat, optimalMatrix, camSize, int(gocv.MatTypeCV32FC2), lensMap, lensStub)

	// Stage 3: rerun both detections on lens-corrected samples and fit
	// the screen homography against the ideal geometry.
	correctedBoard := gocv.NewMat()
	defer correctedBoard.Close()
	gocv.Remap(chessboardSample, &correctedBoard, lensMap, emptyMat, gocv.InterpolationLanczos4, gocv.BorderConstant, zeroRGBA)

	correctedSamples := make([]gocv.Mat, len(samples))
	for i := range samples {
		correctedSamples[i] = gocv.NewMat()
		defer correctedSamples[i].Close()
		gocv.Remap(samples[i], &correctedSamples[i], lensMap, emptyMat, gocv.InterpolationLanczos4, gocv.BorderConstant, zeroRGBA)
	}

	correctedScreenCorners, err := detectScreen(colors, correctedSamples)
	if err != nil {
		return nil, err
	}

	correctedBoardCorners, err := detectChessboard(correctedScreenCorners, correctedBoard, boardSize)
	if err != nil {
		return nil, err
	}
	defer correctedBoardCorners.Close()

	// Source points: 4 screen corners then the chessboard grid.
	boardCount := correctedBoardCorners.Rows()
	srcPoints := gocv.NewMatWithSize(4+boardCount, 1, gocv.MatTypeCV32FC2)
	defer srcPoints.Close()
	for i, corner := range correctedScreenCorners {
		srcPoints.SetFloatAt(i, 0, corner.X)
		srcPoints.SetFloatAt(i, 1, corner.Y)
	}
	for i := 0; i < boardCount; i++ {
		v := correctedBoardCorners.GetVecfAt(i, 0)
		srcPoints.SetFloatAt(4+i, 0, v[0])
		srcPoints.SetFloatAt(4+i, 1, v[1])
	}

	// Target points: the ideal screen quad then the ideal grid.
	w, h := float32(profile.ViewSize.X), float32(profile.ViewSize.Y)
	idealQuad := []gocv.Point2f{{X: 0, Y: 0}, {X: 0, Y: h}, {X: w, Y: h}, {X: w, Y: 0}}

	dstPoints := gocv.NewMatWithSize(4+len(idealCorners), 1, gocv.MatTypeCV32FC2)
	defer dstPoints.Close()
	for i, corner := range idealQuad {
		dstPoints.SetFloatAt(i, 0, corner.X)
		dstPoints.SetFloatAt(i, 1, corner.Y)
	}
	for i, corner := range idealCorners {
		dstPoints.SetFloatAt(4+i, 0, corner.X)
		dstPoints.SetFloatAt(4+i, 1, corner.Y)
	}

	inliers := gocv.NewMat()
	defer inliers.Close()
	homography := gocv.FindHomography(
		srcPoints, &dstPoints, gocv.HomograpyMethodRANSAC,
		homographyThreshold, &inliers, homographyIterations, homographyConfidence,
	)
	defer homography.Close()

	if homography.Empty() {
		return nil, detectionFailure("Screen homography estimation failed")
	}
	homography.CopyTo(&profile.ViewHomography)

	// Compose the lens map with the homography into the runtime map.
	gocv.WarpPerspective(lensMap, &profile.CorrectionMap, homography, profile.ViewSize)

	profile.ScreenContour = screenCorners
	return screenCorners, nil
}
