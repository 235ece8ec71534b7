package mask

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// floodFillZero clears the 4-connected component of equal-valued pixels
// containing the seed. GoCV does not bind floodFill, so this walks the
// mask bytes directly.
func floodFillZero(mask *gocv.Mat, seed image.Point) error {
	data, err := mask.DataPtrUint8()
	if err != nil {
		return fmt.Errorf("flood fill buffer: %w", err)
	}

	cols, rows := mask.Cols(), mask.Rows()
	if seed.X < 0 || seed.Y < 0 || seed.X >= cols || seed.Y >= rows {
		return fmt.Errorf("flood fill seed %v outside %dx%d mask", seed, cols, rows)
	}

	target := data[seed.Y*cols+seed.X]
	if target == 0 {
		return nil
	}

	stack := []image.Point{seed}
	data[seed.Y*cols+seed.X] = 0

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, n := range [4]image.Point{
			{X: p.X - 1, Y: p.Y},
			{X: p.X + 1, Y: p.Y},
			{X: p.X, Y: p.Y - 1},
			{X: p.X, Y: p.Y + 1},
		} {
			if n.X < 0 || n.Y < 0 || n.X >= cols || n.Y >= rows {
				continue
			}
			i := n.Y*cols + n.X
			if data[i] == target {
				data[i] = 0
				stack = append(stack, n)
			}
		}
	}
	return nil
}
