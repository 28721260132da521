// Package coordinates maps between pixel-grid indices and angular (sky)
// coordinates with an affine transform.
//
// A Mapper holds a 2x2 matrix taking (col, row) index offsets to angular
// offsets, and the angular position (x0, y0) of pixel (0, 0). Mappers are
// immutable once built.
package coordinates

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/bob-anderson-ok/COOLESTutil/coolest"
)

// ErrInvalidGridSpec is returned for non-positive grid dimensions or pixel
// scales and for singular transforms.
var ErrInvalidGridSpec = errors.New("invalid grid specification")

// Mapper converts pixel indices to sky coordinates and back.
type Mapper struct {
	nx, ny  int
	pix2ang *mat.Dense
	ang2pix *mat.Dense
	x0, y0  float64
}

// New builds a Mapper from an explicit pixel-to-angle matrix. The matrix must
// be 2x2 and invertible.
func New(nx, ny int, pix2ang mat.Matrix, x0, y0 float64) (*Mapper, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("%w: grid shape (%d, %d) must be positive", ErrInvalidGridSpec, nx, ny)
	}
	if r, c := pix2ang.Dims(); r != 2 || c != 2 {
		return nil, fmt.Errorf("%w: transform must be 2x2, got %dx%d", ErrInvalidGridSpec, r, c)
	}

	fwd := mat.DenseCopyOf(pix2ang)
	var inv mat.Dense
	if err := inv.Inverse(fwd); err != nil {
		return nil, fmt.Errorf("%w: transform is not invertible: %v", ErrInvalidGridSpec, err)
	}

	return &Mapper{
		nx:      nx,
		ny:      ny,
		pix2ang: fwd,
		ang2pix: &inv,
		x0:      x0,
		y0:      y0,
	}, nil
}

// FromPixelGrid builds a Mapper with a uniform pixel scale that puts the grid
// center at (0, 0) before the offset is applied.
func FromPixelGrid(nx, ny int, pixelScale, offsetX, offsetY float64) (*Mapper, error) {
	if !(pixelScale > 0) || math.IsInf(pixelScale, 0) {
		return nil, fmt.Errorf("%w: pixel scale %g must be positive", ErrInvalidGridSpec, pixelScale)
	}
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("%w: grid shape (%d, %d) must be positive", ErrInvalidGridSpec, nx, ny)
	}

	halfSizeX := float64(nx) * pixelScale / 2
	halfSizeY := float64(ny) * pixelScale / 2
	x0 := -halfSizeX + pixelScale/2 + offsetX
	y0 := -halfSizeY + pixelScale/2 + offsetY

	return New(nx, ny, mat.NewDiagDense(2, []float64{pixelScale, pixelScale}), x0, y0)
}

// FromFieldOfView builds a Mapper covering the given field of view with
// numPixX by numPixY pixels. The x and y scales may differ.
func FromFieldOfView(fovX, fovY [2]float64, numPixX, numPixY int) (*Mapper, error) {
	if numPixX <= 0 || numPixY <= 0 {
		return nil, fmt.Errorf("%w: grid shape (%d, %d) must be positive", ErrInvalidGridSpec, numPixX, numPixY)
	}
	scaleX := math.Abs(fovX[0]-fovX[1]) / float64(numPixX)
	scaleY := math.Abs(fovY[0]-fovY[1]) / float64(numPixY)
	if scaleX == 0 || scaleY == 0 {
		return nil, fmt.Errorf("%w: field of view has zero width", ErrInvalidGridSpec)
	}

	x0 := fovX[0] + scaleX/2
	y0 := fovY[0] + scaleY/2

	return New(numPixX, numPixY, mat.NewDiagDense(2, []float64{scaleX, scaleY}), x0, y0)
}

// FromDocument builds the Mapper of a document's observation grid from the
// grid shape and the instrument pixel size.
func FromDocument(doc *coolest.Document, offsetX, offsetY float64) (*Mapper, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidGridSpec)
	}
	return FromPixelGrid(doc.Observation.NumPixX, doc.Observation.NumPixY, doc.Instrument.PixelSize, offsetX, offsetY)
}

// SetFromDocuments returns one Mapper per document, in order.
// Every grid is centered on the origin with zero offset; documents carry no
// sky position to offset them against each other.
func SetFromDocuments(docs []*coolest.Document) ([]*Mapper, error) {
	mappers := make([]*Mapper, 0, len(docs))
	for i, doc := range docs {
		m, err := FromDocument(doc, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		mappers = append(mappers, m)
	}
	return mappers, nil
}

// Shape returns the number of pixels along x (columns) and y (rows).
func (m *Mapper) Shape() (nx, ny int) {
	return m.nx, m.ny
}

// Origin returns the sky coordinate of pixel (0, 0).
func (m *Mapper) Origin() (x0, y0 float64) {
	return m.x0, m.y0
}

// PixelScales returns the angular size of a pixel step along columns and rows.
func (m *Mapper) PixelScales() (sx, sy float64) {
	sx = math.Hypot(m.pix2ang.At(0, 0), m.pix2ang.At(1, 0))
	sy = math.Hypot(m.pix2ang.At(0, 1), m.pix2ang.At(1, 1))
	return sx, sy
}

// Transform returns a copy of the pixel-to-angle matrix.
func (m *Mapper) Transform() *mat.Dense {
	return mat.DenseCopyOf(m.pix2ang)
}

// PixelToSky maps a (possibly fractional) pixel index to sky coordinates.
func (m *Mapper) PixelToSky(col, row float64) (x, y float64) {
	x = m.pix2ang.At(0, 0)*col + m.pix2ang.At(0, 1)*row + m.x0
	y = m.pix2ang.At(1, 0)*col + m.pix2ang.At(1, 1)*row + m.y0
	return x, y
}

// SkyToPixel is the inverse of PixelToSky.
func (m *Mapper) SkyToPixel(x, y float64) (col, row float64) {
	dx := x - m.x0
	dy := y - m.y0
	col = m.ang2pix.At(0, 0)*dx + m.ang2pix.At(0, 1)*dy
	row = m.ang2pix.At(1, 0)*dx + m.ang2pix.At(1, 1)*dy
	return col, row
}

// PixelsToSky maps many pixel indices at once. cols and rows must have the same length.
func (m *Mapper) PixelsToSky(cols, rows []float64) (xs, ys []float64) {
	return apply(m.pix2ang, cols, rows, m.x0, m.y0, 0, 0)
}

// SkyToPixels maps many sky positions to pixel indices at once.
func (m *Mapper) SkyToPixels(xs, ys []float64) (cols, rows []float64) {
	return apply(m.ang2pix, xs, ys, 0, 0, m.x0, m.y0)
}

// apply computes t*(u-pre) + post over all points with a single 2xN product.
func apply(t *mat.Dense, u, v []float64, postU, postV, preU, preV float64) ([]float64, []float64) {
	if len(u) != len(v) {
		panic("coordinates: mismatched coordinate lengths")
	}
	n := len(u)
	if n == 0 {
		return []float64{}, []float64{}
	}

	in := mat.NewDense(2, n, nil)
	for i := 0; i < n; i++ {
		in.Set(0, i, u[i]-preU)
		in.Set(1, i, v[i]-preV)
	}

	var out mat.Dense
	out.Mul(t, in)

	ou := make([]float64, n)
	ov := make([]float64, n)
	mat.Row(ou, 0, &out)
	mat.Row(ov, 1, &out)
	for i := 0; i < n; i++ {
		ou[i] += postU
		ov[i] += postV
	}
	return ou, ov
}

// PixelCoordinates returns the sky coordinates of every pixel center as two
// [row][col] grids.
func (m *Mapper) PixelCoordinates() (x, y [][]float64) {
	x = make([][]float64, m.ny)
	y = make([][]float64, m.ny)
	for row := 0; row < m.ny; row++ {
		x[row] = make([]float64, m.nx)
		y[row] = make([]float64, m.nx)
		for col := 0; col < m.nx; col++ {
			x[row][col], y[row][col] = m.PixelToSky(float64(col), float64(row))
		}
	}
	return x, y
}

// Extent returns the sky bounding box of the grid, measured at the outer pixel edges.
func (m *Mapper) Extent() (xMin, xMax, yMin, yMax float64) {
	xMin, yMin = math.Inf(1), math.Inf(1)
	xMax, yMax = math.Inf(-1), math.Inf(-1)
	for _, c := range [][2]float64{
		{-0.5, -0.5},
		{float64(m.nx) - 0.5, -0.5},
		{-0.5, float64(m.ny) - 0.5},
		{float64(m.nx) - 0.5, float64(m.ny) - 0.5},
	} {
		x, y := m.PixelToSky(c[0], c[1])
		xMin = math.Min(xMin, x)
		xMax = math.Max(xMax, x)
		yMin = math.Min(yMin, y)
		yMax = math.Max(yMax, y)
	}
	return xMin, xMax, yMin, yMax
}
