package imageutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(h, w int) [][]float64 {
	img := make([][]float64, h)
	for y := range img {
		img[y] = make([]float64, w)
		for x := range img[y] {
			img[y][x] = float64(1 + (y*w+x)%7)
		}
	}
	return img
}

func constImage(h, w int, v float64) [][]float64 {
	img := make([][]float64, h)
	for y := range img {
		img[y] = make([]float64, w)
		for x := range img[y] {
			img[y][x] = v
		}
	}
	return img
}

func assertImageInDelta(t *testing.T, want, got [][]float64, delta float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for y := range want {
		require.Len(t, got[y], len(want[y]))
		for x := range want[y] {
			assert.InDelta(t, want[y][x], got[y][x], delta, "pixel (%d, %d)", y, x)
		}
	}
}

func TestConvolvePSFDeltaIsIdentity(t *testing.T) {
	img := testImage(9, 12)
	delta := [][]float64{{0, 0, 0}, {0, 5, 0}, {0, 0, 0}}

	for _, pad := range []PaddingMode{PadZeros, PadReflect, PadReplicate, PadCircular} {
		t.Run(pad.String(), func(t *testing.T) {
			out, err := ConvolvePSF(img, delta, ConvSame, pad)
			require.NoError(t, err)
			assertImageInDelta(t, img, out, 1e-9)
		})
	}
}

func TestConvolvePSFShift(t *testing.T) {
	img := testImage(6, 8)
	right := [][]float64{{0, 0, 0}, {0, 0, 1}, {0, 0, 0}}

	out, err := ConvolvePSF(img, right, ConvSame, PadZeros)
	require.NoError(t, err)
	for y := range img {
		assert.InDelta(t, 0, out[y][0], 1e-9)
		for x := 1; x < len(img[y]); x++ {
			assert.InDelta(t, img[y][x-1], out[y][x], 1e-9)
		}
	}
}

func TestConvolvePSFFullConservesFlux(t *testing.T) {
	img := testImage(10, 7)
	box := constImage(3, 3, 1)

	out, err := ConvolvePSF(img, box, ConvFull, PadZeros)
	require.NoError(t, err)
	h, w, err := Shape(out)
	require.NoError(t, err)
	assert.Equal(t, 12, h)
	assert.Equal(t, 9, w)

	total := func(m [][]float64) float64 {
		s := 0.0
		for _, v := range ImageToArray(m) {
			s += v
		}
		return s
	}
	assert.InDelta(t, total(img), total(out), 1e-8)
}

func TestConvolvePSFBoundaries(t *testing.T) {
	img := constImage(8, 8, 3)
	box := constImage(3, 3, 1)

	for _, pad := range []PaddingMode{PadReflect, PadReplicate, PadCircular} {
		t.Run(pad.String(), func(t *testing.T) {
			out, err := ConvolvePSF(img, box, ConvSame, pad)
			require.NoError(t, err)
			assertImageInDelta(t, img, out, 1e-9)
		})
	}

	out, err := ConvolvePSF(img, box, ConvSame, PadZeros)
	require.NoError(t, err)
	assert.InDelta(t, 3, out[4][4], 1e-9)
	assert.InDelta(t, 3*4.0/9.0, out[0][0], 1e-9)
	assert.InDelta(t, 3*6.0/9.0, out[0][4], 1e-9)
}

func TestConvolvePSFValid(t *testing.T) {
	img := constImage(8, 6, 2)
	box := constImage(3, 5, 1)

	out, err := ConvolvePSF(img, box, ConvValid, PadZeros)
	require.NoError(t, err)
	assertImageInDelta(t, constImage(6, 2, 2), out, 1e-9)
}

func TestConvolvePSFErrors(t *testing.T) {
	img := constImage(4, 4, 1)

	_, err := ConvolvePSF(img, constImage(3, 3, 0), ConvSame, PadZeros)
	assert.ErrorIs(t, err, ErrZeroPSF)

	_, err = ConvolvePSF(img, constImage(5, 5, 1), ConvValid, PadZeros)
	assert.Error(t, err)

	_, err = ConvolvePSF(nil, constImage(3, 3, 1), ConvSame, PadZeros)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = ConvolvePSF([][]float64{{1, 2}, {3}}, constImage(3, 3, 1), ConvSame, PadZeros)
	assert.ErrorIs(t, err, ErrRaggedImage)

	_, err = ConvolvePSF(img, constImage(3, 3, 1), ConvMode(7), PadZeros)
	assert.Error(t, err)
}

func TestParseModes(t *testing.T) {
	for _, m := range []ConvMode{ConvSame, ConvFull, ConvValid} {
		got, err := ParseConvMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	for _, p := range []PaddingMode{PadZeros, PadReflect, PadReplicate, PadCircular} {
		got, err := ParsePaddingMode(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParseConvMode("wrap")
	assert.Error(t, err)
	_, err = ParsePaddingMode("mirror")
	assert.Error(t, err)
}

func TestReflectIndex(t *testing.T) {
	var got []int
	for i := -4; i <= 8; i++ {
		got = append(got, reflectIndex(i, 5))
	}
	assert.Equal(t, []int{4, 3, 2, 1, 0, 1, 2, 3, 4, 3, 2, 1, 0}, got)
}
