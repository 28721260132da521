package lenslines

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"iter"
	"math"

	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/bob-anderson-ok/COOLESTutil/coordinates"
	"github.com/bob-anderson-ok/COOLESTutil/plotting"
)

// DrawOnImage overlays lines on a copy of img, which is assumed to show the
// pixel grid of m with row 0 at the top. radius widens the stroke: 0 draws
// single pixels, 1 a 3 pixel wide line.
func DrawOnImage(img image.Image, m *coordinates.Mapper, lines iter.Seq[Polyline], col color.Color, radius int) *image.RGBA {
	bounds := img.Bounds()

	// Create a new RGBA image to draw on
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	for line := range lines {
		cols, rows := m.SkyToPixels(line.X, line.Y)
		for i := 1; i < len(cols); i++ {
			drawLine(result,
				int(math.Round(cols[i-1])), int(math.Round(rows[i-1])),
				int(math.Round(cols[i])), int(math.Round(rows[i])),
				radius, col)
		}
		if len(cols) == 1 {
			c, r := int(math.Round(cols[0])), int(math.Round(rows[0]))
			drawLine(result, c, r, c, r, radius, col)
		}
	}
	return result
}

// drawLine draws a line on the image using Bresenham's algorithm.
func drawLine(img *image.RGBA, x1, y1, x2, y2, radius int, col color.Color) {
	b := img.Bounds()
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx := -1
	if x1 < x2 {
		sx = 1
	}
	sy := -1
	if y1 < y2 {
		sy = 1
	}
	err := dx - dy

	for {
		for oy := -radius; oy <= radius; oy++ {
			for ox := -radius; ox <= radius; ox++ {
				px := b.Min.X + x1 + ox
				py := b.Min.Y + y1 + oy
				if image.Pt(px, py).In(b) {
					img.Set(px, py, col)
				}
			}
		}

		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

var ErrNoLines = errors.New("no lines to plot")

// PlotLines saves a figure of the critical lines (red) and caustics (blue).
func PlotLines(crit, caustics iter.Seq[Polyline], filename string, wPx, hPx float64) error {
	p := plotting.New("Critical lines and caustics", "x (arcsec)", "y (arcsec)")

	n := 0
	for _, set := range []struct {
		lines iter.Seq[Polyline]
		name  string
		color color.RGBA
	}{
		{crit, "critical lines", color.RGBA{R: 255, A: 255}},
		{caustics, "caustics", color.RGBA{B: 255, A: 255}},
	} {
		first := true
		for line := range set.lines {
			if line.Len() == 0 {
				continue
			}
			pts := make(plotter.XYs, line.Len())
			for i := range pts {
				pts[i].X = line.X[i]
				pts[i].Y = line.Y[i]
			}
			l, err := plotter.NewLine(pts)
			if err != nil {
				return err
			}
			l.Color = set.color
			l.Width = vg.Points(1)
			p.Add(l)
			if first {
				p.Legend.Add(set.name, l)
				first = false
			}
			n++
		}
	}
	if n == 0 {
		return ErrNoLines
	}
	p.X.Tick.Marker = plotting.StepTicks{Step: 0.5, Format: "%.1f"}
	p.Y.Tick.Marker = plotting.StepTicks{Step: 0.5, Format: "%.1f"}

	return plotting.Save(p, wPx, hPx, filename)
}
