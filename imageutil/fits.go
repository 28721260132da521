package imageutil

import (
	"errors"
	"fmt"
	"os"

	"github.com/astrogo/fitsio"
)

// ErrUnsupportedFITS is returned for FITS files whose primary HDU is not a 2D image.
var ErrUnsupportedFITS = errors.New("unsupported FITS image")

// LoadFITS reads the primary HDU of a FITS file as a [row][col] matrix.
// NAXIS1 is the column count. BSCALE/BZERO are not applied.
func LoadFITS(filename string) (matrix [][]float64, err error) {
	r, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%w: %s: primary HDU is not an image", ErrUnsupportedFITS, filename)
	}

	axes := img.Header().Axes()
	if len(axes) != 2 {
		return nil, fmt.Errorf("%w: %s: expected 2 axes, got %d", ErrUnsupportedFITS, filename, len(axes))
	}
	w, h := axes[0], axes[1]
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %s: empty %dx%d image", ErrUnsupportedFITS, filename, w, h)
	}

	flat, err := readFITSData(img, w*h)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if len(flat) != w*h {
		return nil, fmt.Errorf("%w: %s: have %d values for %dx%d", ErrUnsupportedFITS, filename, len(flat), w, h)
	}

	return ArrayToImage(flat, h, w)
}

// readFITSData reads the n pixel values of img, converted to float64.
func readFITSData(img fitsio.Image, n int) ([]float64, error) {
	switch bitpix := img.Header().Bitpix(); bitpix {
	case 8:
		return readAs[uint8](img, n)
	case 16:
		return readAs[int16](img, n)
	case 32:
		return readAs[int32](img, n)
	case 64:
		return readAs[int64](img, n)
	case -32:
		return readAs[float32](img, n)
	case -64:
		data := make([]float64, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: BITPIX %d", ErrUnsupportedFITS, bitpix)
	}
}

// readAs reads img into a slice of T; fitsio fills the slice in place, so it
// must already hold n elements.
func readAs[T uint8 | int16 | int32 | int64 | float32](img fitsio.Image, n int) ([]float64, error) {
	data := make([]T, n)
	if err := img.Read(&data); err != nil {
		return nil, err
	}
	return toFloat64(data), nil
}

func toFloat64[T uint8 | int16 | int32 | int64 | float32](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// SaveFITS writes image as a 64-bit float primary HDU.
func SaveFITS(filename string, image [][]float64) (err error) {
	h, w, err := Shape(image)
	if err != nil {
		return err
	}
	if h == 0 || w == 0 {
		return ErrEmptyImage
	}

	out, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	f, err := fitsio.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create FITS stream %s: %w", filename, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	img := fitsio.NewImage(-64, []int{w, h})
	defer func() {
		if cerr := img.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	data := ImageToArray(image)
	if err = img.Write(&data); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return f.Write(img)
}
