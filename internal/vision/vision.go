// Package vision provides small math and image helpers shared by the
// calibration and tracking pipelines.
package vision

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Vec3 is a three-component float vector used for BGR color samples.
type Vec3 [3]float32

// Add returns the component-wise sum of v and u.
func (v Vec3) Add(u Vec3) Vec3 {
	return Vec3{v[0] + u[0], v[1] + u[1], v[2] + u[2]}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Chessboard renders a chessboard pattern of the given size in squares,
// alternating between the two colors. Both dimensions must be positive
// and even so the pattern tiles cleanly.
func Chessboard(size image.Point, c1, c2 Vec3) (gocv.Mat, error) {
	if size.X < 2 || size.Y < 2 || size.X%2 != 0 || size.Y%2 != 0 {
		return gocv.Mat{}, fmt.Errorf("chessboard size must be positive and even, got %dx%d", size.X, size.Y)
	}

	pattern := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3)
	data, err := pattern.DataPtrUint8()
	if err != nil {
		pattern.Close()
		return gocv.Mat{}, fmt.Errorf("chessboard buffer: %w", err)
	}
	for r := 0; r < size.Y; r++ {
		for c := 0; c < size.X; c++ {
			color := c1
			if (r+c)%2 != 0 {
				color = c2
			}
			i := (r*size.X + c) * 3
			data[i+0] = uint8(color[0])
			data[i+1] = uint8(color[1])
			data[i+2] = uint8(color[2])
		}
	}
	return pattern, nil
}

// SignedAngle returns the signed angle in degrees between vectors v and u,
// positive counter-clockwise.
func SignedAngle(vx, vy, ux, uy float64) float64 {
	return math.Atan2(ux*vy-uy*vx, ux*vx+uy*vy) * (180.0 / math.Pi)
}

// Angle returns the absolute angle in degrees between vectors v and u.
func Angle(vx, vy, ux, uy float64) float64 {
	return math.Abs(SignedAngle(vx, vy, ux, uy))
}

// Trilerp performs trilinear interpolation over the eight corners of a
// unit cube. The corners are ordered bottom face (c000, c010, c110, c100)
// then top face (c001, c011, c111, c101), with fx, fy, fz the fractional
// position along each axis.
func Trilerp(c000, c010, c110, c100, c001, c011, c111, c101 Vec3, fx, fy, fz float32) Vec3 {
	lerp := func(a, b Vec3, t float32) Vec3 {
		return a.Scale(1 - t).Add(b.Scale(t))
	}

	bottom := lerp(lerp(c000, c100, fx), lerp(c010, c110, fx), fy)
	top := lerp(lerp(c001, c101, fx), lerp(c011, c111, fx), fy)
	return lerp(bottom, top, fz)
}

// LUTIndex flattens a 3D lookup coordinate into a linear index for a
// cube of the given side length.
func LUTIndex(x, y, z, size int) int {
	return (z*size+y)*size + x
}

// SideBySide composites the given images horizontally into dst, top
// aligned. All images must share the same type.
func SideBySide(dst *gocv.Mat, images ...gocv.Mat) error {
	if len(images) == 0 {
		return fmt.Errorf("no images to composite")
	}

	width, height := 0, 0
	for _, img := range images {
		if img.Type() != images[0].Type() {
			return fmt.Errorf("image type mismatch: %v vs %v", img.Type(), images[0].Type())
		}
		width += img.Cols()
		if img.Rows() > height {
			height = img.Rows()
		}
	}

	if dst.Rows() != height || dst.Cols() != width || dst.Type() != images[0].Type() {
		dst.Close()
		*dst = gocv.NewMatWithSize(height, width, images[0].Type())
	}
	dst.SetTo(gocv.NewScalar(0, 0, 0, 0))

	x := 0
	for _, img := range images {
		slot := dst.Region(image.Rect(x, 0, x+img.Cols(), img.Rows()))
		img.CopyTo(&slot)
		slot.Close()
		x += img.Cols()
	}
	return nil
}
