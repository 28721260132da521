// Package lenslines finds the critical lines of a lens in the image plane and
// the caustics they map to in the source plane.
//
// Critical lines are the zero-level contours of the inverse magnification map
// sampled on a coordinates.Mapper grid. Caustics are obtained by ray shooting
// the critical lines through the lens. Lens physics is supplied by the caller
// through the RayShooter and MagnificationEvaluator interfaces.
package lenslines

import (
	"iter"
	"slices"

	"github.com/bob-anderson-ok/COOLESTutil/contour"
	"github.com/bob-anderson-ok/COOLESTutil/coordinates"
)

// Polyline is a line in angular coordinates. X and Y have the same length.
type Polyline struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// Len returns the number of vertices.
func (p Polyline) Len() int { return len(p.X) }

// RayShooter maps image-plane positions to source-plane positions.
type RayShooter interface {
	RayShoot(x, y []float64) (bx, by []float64)
}

// MagnificationEvaluator evaluates the magnification on a grid of
// image-plane positions. The result has the shape of x.
type MagnificationEvaluator interface {
	Magnification(x, y [][]float64) [][]float64
}

// Lens can both ray shoot and evaluate magnifications.
type Lens interface {
	RayShooter
	MagnificationEvaluator
}

// FindCriticalLines returns the lines of infinite magnification of magMap,
// which must be sampled on the pixel grid of m ([row][col]). The contours are
// computed when the sequence is iterated; iterating again recomputes them
// from a snapshot taken at call time. A map without sign changes yields
// nothing.
func FindCriticalLines(m *coordinates.Mapper, magMap [][]float64) iter.Seq[Polyline] {
	inv := make([][]float64, len(magMap))
	for i, row := range magMap {
		inv[i] = make([]float64, len(row))
		for j, v := range row {
			// a zero magnification gives ±Inf, which the contour finder accepts
			inv[i][j] = 1 / v
		}
	}

	return func(yield func(Polyline) bool) {
		for _, line := range contour.Find(inv, 0) {
			cols := make([]float64, len(line))
			rows := make([]float64, len(line))
			for k, p := range line {
				cols[k] = p.Col
				rows[k] = p.Row
			}
			x, y := m.PixelsToSky(cols, rows)
			if !yield(Polyline{X: x, Y: y}) {
				return
			}
		}
	}
}

// FindCaustics ray shoots every critical line to the source plane.
func FindCaustics(lines iter.Seq[Polyline], rs RayShooter) iter.Seq[Polyline] {
	return func(yield func(Polyline) bool) {
		for line := range lines {
			bx, by := rs.RayShoot(line.X, line.Y)
			if !yield(Polyline{X: bx, Y: by}) {
				return
			}
		}
	}
}

// FindAllLensLines evaluates the magnification of lens over every pixel of m
// and returns the critical lines and their caustics.
func FindAllLensLines(m *coordinates.Mapper, lens Lens) (crit, caustics iter.Seq[Polyline]) {
	x, y := m.PixelCoordinates()
	crit = FindCriticalLines(m, lens.Magnification(x, y))
	return crit, FindCaustics(crit, lens)
}

// Collect drains seq into a slice.
func Collect(seq iter.Seq[Polyline]) []Polyline {
	return slices.Collect(seq)
}
