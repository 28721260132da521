package imageutil

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// LensingInfoOptions configures LensingInformation. A and B are the exponents
// of the pixel weights; zero values select the defaults A=16, B=0.
type LensingInfoOptions struct {
	ThetaE  float64 // Einstein radius, arcsec
	CenterX float64
	CenterY float64
	A       float64
	B       float64
	// ArcMask marks pixels with lensed arcs with 1. Nil selects every pixel.
	ArcMask [][]float64
}

// LensingInfo is the result of LensingInformation.
type LensingInfo struct {
	Value  float64
	ThetaE float64
	PhiRef float64
	// Mask is the arc mask combined with the 3-sigma SNR mask.
	Mask [][]float64
}

// The background noise is estimated from this top-left corner of the noise map.
const noiseCornerSize = 10

var ErrInvalidEinsteinRadius = errors.New("einstein radius must be > 0")

// LensingInformation computes the lensing information of a lens-light
// subtracted image following Yi Tan et al. 2023, Eqs. (8) and (9).
// x and y are the sky coordinates of every pixel and noise the 1-sigma noise map.
func LensingInformation(data, x, y, noise [][]float64, opts LensingInfoOptions) (LensingInfo, error) {
	h, w, err := Shape(data)
	if err != nil {
		return LensingInfo{}, err
	}
	if h == 0 || w == 0 {
		return LensingInfo{}, ErrEmptyImage
	}
	for name, m := range map[string][][]float64{"x": x, "y": y, "noise": noise} {
		mh, mw, err := Shape(m)
		if err != nil || mh != h || mw != w {
			return LensingInfo{}, fmt.Errorf("%w: %s does not match data shape (%d, %d)", ErrShapeMismatch, name, h, w)
		}
	}
	if opts.ArcMask != nil {
		mh, mw, err := Shape(opts.ArcMask)
		if err != nil || mh != h || mw != w {
			return LensingInfo{}, fmt.Errorf("%w: arc mask does not match data shape (%d, %d)", ErrShapeMismatch, h, w)
		}
	}
	if !(opts.ThetaE > 0) {
		return LensingInfo{}, ErrInvalidEinsteinRadius
	}
	a, b := opts.A, opts.B
	if a == 0 {
		a = 16
	}

	corner := make([]float64, 0, noiseCornerSize*noiseCornerSize)
	for i := 0; i < min(h, noiseCornerSize); i++ {
		corner = append(corner, noise[i][:min(w, noiseCornerSize)]...)
	}
	sigmaBkg := stat.Mean(corner, nil)

	mask := make([][]float64, h)
	brightest := math.Inf(-1)
	bi, bj := 0, 0
	for i := range mask {
		mask[i] = make([]float64, w)
		for j := range mask[i] {
			if data[i][j] > 3*sigmaBkg {
				mask[i][j] = 1
			}
			if opts.ArcMask != nil {
				mask[i][j] *= opts.ArcMask[i][j]
			}
			if v := data[i][j] * mask[i][j]; v > brightest {
				brightest = v
				bi, bj = i, j
			}
		}
	}

	phiRef := math.Atan2(y[bi][bj]-opts.CenterY, x[bi][bj]-opts.CenterX)

	num, den := 0.0, 0.0
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			if mask[i][j] == 0 {
				continue
			}
			tx := x[i][j] - opts.CenterX
			ty := y[i][j] - opts.CenterY
			r := math.Hypot(tx, ty)
			phi := math.Atan2(ty, tx)

			weight := math.Pow(1+math.Abs(r-opts.ThetaE)/opts.ThetaE*math.Pow(1+math.Abs(phi-phiRef)/phiRef, b), a)
			num += mask[i][j] * weight * data[i][j]
			den += mask[i][j] * noise[i][j] * noise[i][j]
		}
	}

	return LensingInfo{
		Value:  num / math.Sqrt(den),
		ThetaE: opts.ThetaE,
		PhiRef: phiRef,
		Mask:   mask,
	}, nil
}
