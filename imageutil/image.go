// Package imageutil provides helpers for 2D images stored as [][]float64
// (row-major, image[row][col]): reshaping to and from flat arrays, block
// downsampling, flux rescaling to a target magnitude, PSF convolution, the
// lensing information statistic, and PNG/FITS input and output.
package imageutil

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrNonSquareLength  = errors.New("array length is not a perfect square")
	ErrShapeMismatch    = errors.New("array length does not match shape")
	ErrInvalidFactor    = errors.New("downsampling factor must be >= 1")
	ErrIndivisibleShape = errors.New("image shape is not divisible by factor")
	ErrMissingZeroPoint = errors.New("a magnitude zero-point or a source providing one is required")
	ErrZeroFlux         = errors.New("image has zero total flux")
	ErrRaggedImage      = errors.New("ragged image")
	ErrEmptyImage       = errors.New("empty image")
)

// ArrayToImage reshapes a flat array into nx rows of ny values. When nx or ny
// is zero the shape is inferred as square.
func ArrayToImage(flat []float64, nx, ny int) ([][]float64, error) {
	if nx == 0 || ny == 0 {
		n := int(math.Sqrt(float64(len(flat))))
		// guard against sqrt rounding down for large perfect squares
		for (n+1)*(n+1) <= len(flat) {
			n++
		}
		if n*n != len(flat) {
			return nil, fmt.Errorf("%w: input array size %d", ErrNonSquareLength, len(flat))
		}
		nx, ny = n, n
	}
	if nx < 0 || ny < 0 || nx*ny != len(flat) {
		return nil, fmt.Errorf("%w: have %d, want %d x %d", ErrShapeMismatch, len(flat), nx, ny)
	}

	m := make([][]float64, nx)
	k := 0
	for i := 0; i < nx; i++ {
		m[i] = make([]float64, ny)
		copy(m[i], flat[k:k+ny])
		k += ny
	}
	return m, nil
}

// ImageToArray flattens an image in row-major order.
func ImageToArray(image [][]float64) []float64 {
	n := 0
	for _, row := range image {
		n += len(row)
	}
	out := make([]float64, 0, n)
	for _, row := range image {
		out = append(out, row...)
	}
	return out
}

// Shape returns the number of rows and columns of a rectangular image.
func Shape(image [][]float64) (rows, cols int, err error) {
	rows = len(image)
	if rows == 0 {
		return 0, 0, nil
	}
	cols = len(image[0])
	for i := 1; i < rows; i++ {
		if len(image[i]) != cols {
			return 0, 0, ErrRaggedImage
		}
	}
	return rows, cols, nil
}

// Downsample averages factor x factor blocks. A factor of 1 returns the input unchanged.
func Downsample(image [][]float64, factor int) ([][]float64, error) {
	if factor < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFactor, factor)
	}
	if factor == 1 {
		return image, nil
	}

	rows, cols, err := Shape(image)
	if err != nil {
		return nil, err
	}
	if rows%factor != 0 || cols%factor != 0 {
		return nil, fmt.Errorf("%w: factor %d with shape (%d, %d)", ErrIndivisibleShape, factor, rows, cols)
	}

	outRows := rows / factor
	outCols := cols / factor
	norm := float64(factor * factor)

	down := make([][]float64, outRows)
	for i := range down {
		down[i] = make([]float64, outCols)
		for j := range down[i] {
			sum := 0.0
			for r := i * factor; r < (i+1)*factor; r++ {
				sum += floats.Sum(image[r][j*factor : (j+1)*factor])
			}
			down[i][j] = sum / norm
		}
	}
	return down, nil
}

// ZeroPointSource supplies the magnitude zero-point of an observation.
// *coolest.Document satisfies it.
type ZeroPointSource interface {
	MagZeroPoint() (float64, bool)
}

// ZeroPoint is a fixed magnitude zero-point.
type ZeroPoint float64

func (z ZeroPoint) MagZeroPoint() (float64, bool) {
	return float64(z), true
}

// RescaleToMagnitude rescales image so that its total flux corresponds to
// targetMag, where the zero-point is the magnitude of a unit flux:
//
//	-2.5*log10(sum(rescaled)) + zeroPoint == targetMag
//
// The input image is not modified.
func RescaleToMagnitude(image [][]float64, targetMag float64, zp ZeroPointSource) ([][]float64, error) {
	if zp == nil {
		return nil, ErrMissingZeroPoint
	}
	zeroPoint, ok := zp.MagZeroPoint()
	if !ok {
		return nil, ErrMissingZeroPoint
	}

	fluxTot := 0.0
	for _, row := range image {
		fluxTot += floats.Sum(row)
	}
	if fluxTot == 0 {
		return nil, ErrZeroFlux
	}

	deltaMag := targetMag - zeroPoint
	scale := math.Pow(10, -deltaMag/2.5) / fluxTot

	out := make([][]float64, len(image))
	for i, row := range image {
		out[i] = make([]float64, len(row))
		floats.ScaleTo(out[i], scale, row)
	}
	return out, nil
}

// Magnitude returns the total magnitude of image for the given zero-point.
func Magnitude(image [][]float64, zeroPoint float64) float64 {
	fluxTot := 0.0
	for _, row := range image {
		fluxTot += floats.Sum(row)
	}
	return -2.5*math.Log10(fluxTot) + zeroPoint
}
