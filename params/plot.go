package params

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/bob-anderson-ok/COOLESTutil/plotting"
)

var ErrNothingToPlot = errors.New("no document has the requested parameters")

type errorPoints struct {
	plotter.XYs
	plotter.YErrors
}

// Lookup returns the record stored under key for the named document,
// searching the lens set first and then the source set.
func (r Result) Lookup(name, key string) (Record, bool) {
	if rec, ok := r.Lens[name].Get(key); ok {
		return rec, true
	}
	return r.Source[name].Get(key)
}

// PlotComparison draws, for every key, the point estimate of each document
// with error bars spanning the 16th to 84th percentiles, and saves the figure
// to filename.
func PlotComparison(r Result, keys []string, filename string, wPx, hPx float64) error {
	p := plotting.New("Model comparison", "model", "value")

	found := false
	for k, key := range keys {
		// Spread series around the integer document positions.
		shift := 0.0
		if len(keys) > 1 {
			shift = 0.3 * (float64(k)/float64(len(keys)-1) - 0.5)
		}

		var pts errorPoints
		for i, name := range r.Names {
			rec, ok := r.Lookup(name, key)
			if !ok || math.IsNaN(rec.PointEstimate) {
				continue
			}
			low := rec.PointEstimate - rec.Percentile16
			high := rec.Percentile84 - rec.PointEstimate
			if math.IsNaN(low) || low < 0 {
				low = 0
			}
			if math.IsNaN(high) || high < 0 {
				high = 0
			}
			pts.XYs = append(pts.XYs, plotter.XY{X: float64(i) + shift, Y: rec.PointEstimate})
			pts.YErrors = append(pts.YErrors, struct{ Low, High float64 }{low, high})
		}
		if len(pts.XYs) == 0 {
			continue
		}
		found = true

		scatter, err := plotter.NewScatter(pts.XYs)
		if err != nil {
			return err
		}
		scatter.Color = plotutil.Color(k)
		scatter.Shape = plotutil.Shape(k)
		scatter.Radius = vg.Points(3)

		bars, err := plotter.NewYErrorBars(pts)
		if err != nil {
			return err
		}
		bars.Color = plotutil.Color(k)

		p.Add(scatter, bars)
		p.Legend.Add(key, scatter)
	}
	if !found {
		return fmt.Errorf("%w: %v", ErrNothingToPlot, keys)
	}

	ticks := make([]plot.Tick, len(r.Names))
	for i, name := range r.Names {
		ticks[i] = plot.Tick{Value: float64(i), Label: name}
	}
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	p.X.Min = -0.5
	p.X.Max = float64(len(r.Names)) - 0.5

	return plotting.Save(p, wPx, hPx, filename)
}
