package imageutil

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

type ConvMode int

const (
	ConvSame ConvMode = iota
	ConvFull
	ConvValid
)

func (m ConvMode) String() string {
	switch m {
	case ConvSame:
		return "same"
	case ConvFull:
		return "full"
	case ConvValid:
		return "valid"
	}
	return fmt.Sprintf("ConvMode(%d)", int(m))
}

// ParseConvMode is the inverse of ConvMode.String.
func ParseConvMode(s string) (ConvMode, error) {
	for _, m := range []ConvMode{ConvSame, ConvFull, ConvValid} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown convolution mode %q", s)
}

type PaddingMode int

const (
	PadZeros PaddingMode = iota
	PadReflect
	PadReplicate
	PadCircular
)

func (p PaddingMode) String() string {
	switch p {
	case PadZeros:
		return "zeros"
	case PadReflect:
		return "reflect"
	case PadReplicate:
		return "replicate"
	case PadCircular:
		return "circular"
	}
	return fmt.Sprintf("PaddingMode(%d)", int(p))
}

// ParsePaddingMode is the inverse of PaddingMode.String.
func ParsePaddingMode(s string) (PaddingMode, error) {
	for _, p := range []PaddingMode{PadZeros, PadReflect, PadReplicate, PadCircular} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown padding mode %q", s)
}

var ErrZeroPSF = errors.New("psf sums to zero")

// ConvolvePSF convolves image with a PSF using a 2D FFT.
//
// image: HxW
// psf:   PhxPw, centered on (Ph/2, Pw/2). It is normalised to unit sum.
// mode:  Same, Full, Valid
// pad:   boundary policy for pixels outside the image
func ConvolvePSF(image, psf [][]float64, mode ConvMode, pad PaddingMode) ([][]float64, error) {
	H, W, err := Shape(image)
	if err != nil {
		return nil, err
	}
	Ph, Pw, err := Shape(psf)
	if err != nil {
		return nil, err
	}
	if H == 0 || W == 0 || Ph == 0 || Pw == 0 {
		return nil, ErrEmptyImage
	}

	psfSum := 0.0
	for _, row := range psf {
		psfSum += floats.Sum(row)
	}
	if psfSum == 0 {
		return nil, ErrZeroPSF
	}

	var outH, outW int
	switch mode {
	case ConvSame:
		outH, outW = H, W
	case ConvFull:
		outH, outW = H+Ph-1, W+Pw-1
	case ConvValid:
		outH, outW = H-Ph+1, W-Pw+1
		if outH <= 0 || outW <= 0 {
			return nil, errors.New("valid convolution requested but psf larger than image")
		}
	default:
		return nil, fmt.Errorf("unknown %v", mode)
	}

	// Margin of padded pixels on every side. Only the zero policy can skip it.
	my, mx := Ph-1, Pw-1
	if pad == PadZeros {
		my, mx = 0, 0
	}
	Hp, Wp := H+2*my, W+2*mx

	FH := nextPow2(Hp + Ph - 1)
	FW := nextPow2(Wp + Pw - 1)

	A := makeComplex2D(FH, FW)
	B := makeComplex2D(FH, FW)

	for y := 0; y < Hp; y++ {
		for x := 0; x < Wp; x++ {
			A[y][x] = complex(sample2D(image, y-my, x-mx, pad), 0)
		}
	}
	for y := 0; y < Ph; y++ {
		for x := 0; x < Pw; x++ {
			B[y][x] = complex(psf[y][x]/psfSum, 0)
		}
	}

	fft2InPlace(A, true)
	fft2InPlace(B, true)

	for y := 0; y < FH; y++ {
		for x := 0; x < FW; x++ {
			A[y][x] *= B[y][x]
		}
	}

	fft2InPlace(A, false)

	// Gonum transforms are unnormalized: forward then inverse multiplies by FH*FW.
	scale := float64(FH * FW)

	var offY, offX int
	switch mode {
	case ConvSame:
		offY, offX = Ph/2, Pw/2
	case ConvValid:
		offY, offX = Ph-1, Pw-1
	}
	offY += my
	offX += mx

	out := make([][]float64, outH)
	for y := 0; y < outH; y++ {
		out[y] = make([]float64, outW)
		for x := 0; x < outW; x++ {
			out[y][x] = real(A[y+offY][x+offX]) / scale
		}
	}
	return out, nil
}

func fft2InPlace(a [][]complex128, forward bool) {
	h := len(a)
	w := len(a[0])

	rowFFT := fourier.NewCmplxFFT(w)
	colFFT := fourier.NewCmplxFFT(h)

	tmp := make([]complex128, w)
	for y := 0; y < h; y++ {
		copy(tmp, a[y])
		if forward {
			rowFFT.Coefficients(tmp, tmp)
		} else {
			rowFFT.Sequence(tmp, tmp)
		}
		copy(a[y], tmp)
	}

	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = a[y][x]
		}
		if forward {
			colFFT.Coefficients(col, col)
		} else {
			colFFT.Sequence(col, col)
		}
		for y := 0; y < h; y++ {
			a[y][x] = col[y]
		}
	}
}

func sample2D(img [][]float64, y, x int, mode PaddingMode) float64 {
	H := len(img)
	W := len(img[0])

	if 0 <= y && y < H && 0 <= x && x < W {
		return img[y][x]
	}

	switch mode {
	case PadReplicate:
		return img[clamp(y, 0, H-1)][clamp(x, 0, W-1)]
	case PadReflect:
		return img[reflectIndex(y, H)][reflectIndex(x, W)]
	case PadCircular:
		return img[mod(y, H)][mod(x, W)]
	}
	return 0
}

func makeComplex2D(h, w int) [][]complex128 {
	m := make([][]complex128, h)
	for i := range m {
		m[i] = make([]complex128, w)
	}
	return m
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mod(i, n int) int {
	r := i % n
	if r < 0 {
		r += n
	}
	return r
}

// reflectIndex reflects without repeating edge pixels.
// For n=5: ... 2 1 0 1 2 3 4 3 2 1 0 1 ...
func reflectIndex(i, n int) int {
	if n <= 1 {
		return 0
	}
	period := 2*n - 2
	i = mod(i, period)
	if i >= n {
		i = period - i
	}
	return i
}
