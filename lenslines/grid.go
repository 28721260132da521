package lenslines

import (
	"errors"
	"fmt"

	"github.com/bob-anderson-ok/COOLESTutil/coordinates"
)

var ErrGridShape = errors.New("map does not match the mapper grid")

// GridLens is a Lens backed by magnification and deflection maps computed by
// an external lens code on the pixel grid of a Mapper. Values between pixel
// centers are interpolated bilinearly; positions off the grid take the value
// of the nearest edge.
type GridLens struct {
	mapper         *coordinates.Mapper
	mag            [][]float64
	alphaX, alphaY [][]float64
}

// NewGridLens checks that every map is [row][col] on the grid of m.
func NewGridLens(m *coordinates.Mapper, mag, alphaX, alphaY [][]float64) (*GridLens, error) {
	nx, ny := m.Shape()
	for name, grid := range map[string][][]float64{"magnification": mag, "alpha_x": alphaX, "alpha_y": alphaY} {
		if len(grid) != ny {
			return nil, fmt.Errorf("%w: %s has %d rows, want %d", ErrGridShape, name, len(grid), ny)
		}
		for r, row := range grid {
			if len(row) != nx {
				return nil, fmt.Errorf("%w: %s row %d has %d columns, want %d", ErrGridShape, name, r, len(row), nx)
			}
		}
	}
	return &GridLens{mapper: m, mag: mag, alphaX: alphaX, alphaY: alphaY}, nil
}

// RayShoot applies the lens equation beta = theta - alpha(theta).
func (g *GridLens) RayShoot(x, y []float64) (bx, by []float64) {
	cols, rows := g.mapper.SkyToPixels(x, y)
	bx = make([]float64, len(x))
	by = make([]float64, len(y))
	for i := range x {
		bx[i] = x[i] - interpolate(g.alphaX, cols[i], rows[i])
		by[i] = y[i] - interpolate(g.alphaY, cols[i], rows[i])
	}
	return bx, by
}

// Magnification samples the magnification map at every position of x, y.
func (g *GridLens) Magnification(x, y [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i := range x {
		cols, rows := g.mapper.SkyToPixels(x[i], y[i])
		out[i] = make([]float64, len(x[i]))
		for j := range x[i] {
			out[i][j] = interpolate(g.mag, cols[j], rows[j])
		}
	}
	return out
}

// interpolate samples matrix[row][col] bilinearly at fractional (x=col, y=row).
func interpolate(matrix [][]float64, x, y float64) float64 {
	h := len(matrix)
	if h == 0 || len(matrix[0]) == 0 {
		return 0
	}
	w := len(matrix[0])

	// Clamp to valid range (that is, at edges of matrix)
	x = clampf(x, 0, float64(w-1))
	y = clampf(y, 0, float64(h-1))

	// Integer indices
	x0 := int(x)
	y0 := int(y)
	x1 := min(x0+1, w-1)
	y1 := min(y0+1, h-1)

	// Fractional parts
	xFrac := x - float64(x0)
	yFrac := y - float64(y0)

	// Four surrounding values
	v00 := matrix[y0][x0]
	v01 := matrix[y0][x1]
	v10 := matrix[y1][x0]
	v11 := matrix[y1][x1]

	// Bilinear interpolation
	v0 := v00*(1-xFrac) + v01*xFrac
	v1 := v10*(1-xFrac) + v11*xFrac

	return v0*(1-yFrac) + v1*yFrac
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
