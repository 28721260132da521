package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"iter"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/bob-anderson-ok/COOLESTutil/coolest"
	"github.com/bob-anderson-ok/COOLESTutil/coordinates"
	"github.com/bob-anderson-ok/COOLESTutil/imageutil"
	"github.com/bob-anderson-ok/COOLESTutil/lenslines"
	"github.com/bob-anderson-ok/COOLESTutil/params"
)

// run is the state shared by every subcommand once the run file is loaded.
type run struct {
	cfg  *RunConfig
	docs []*coolest.Document // parallel to cfg.Documents
}

func runCommand(use, short string, fn func(ctx context.Context, r *run) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <run-file>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := loadRun(ctx, args[0], cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return fn(ctx, r)
		},
	}
}

func newCoordsCmd() *cobra.Command {
	return runCommand("coords", "Write the sky coordinates of every pixel as FITS grids", runCoords)
}

func newImageCmd() *cobra.Command {
	return runCommand("image", "Convolve, downsample and rescale the observed images", runImage)
}

func newParamsCmd() *cobra.Command {
	return runCommand("params", "Extract lens and source parameters from the documents", runParams)
}

func newLinesCmd() *cobra.Command {
	return runCommand("lines", "Find critical lines and caustics from magnification and deflection maps", runLines)
}

func loadRun(ctx context.Context, path string, stdout io.Writer) (*run, error) {
	logger := loggerFromContext(ctx)

	cfg, data, err := loadRunFile(path)
	if err != nil {
		return nil, err
	}

	// Check for user wanting printout of complete run file
	if cfg.ShowInput {
		fmt.Fprintf(stdout, "\nPrintout of complete run file contents...\n%s\n", data)
	}

	if err := os.MkdirAll(cfg.OutputFolder, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}

	r := &run{cfg: cfg}
	t := startTimer(logger)
	for _, entry := range cfg.Documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := coolest.Load(entry.Path)
		if err != nil {
			return nil, fmt.Errorf("document %q: %w", entry.Name, err)
		}
		logger.Debug("loaded document", "name", entry.Name, "mode", doc.Mode, "entities", len(doc.Entities))
		r.docs = append(r.docs, doc)
	}
	t.done(fmt.Sprintf("Loading %d documents", len(r.docs)))
	return r, nil
}

func (r *run) output(name string) string {
	return filepath.Join(r.cfg.OutputFolder, name)
}

func runCoords(ctx context.Context, r *run) error {
	logger := loggerFromContext(ctx)

	for i, entry := range r.cfg.Documents {
		m, err := coordinates.FromDocument(r.docs[i], r.cfg.OffsetX, r.cfg.OffsetY)
		if err != nil {
			return fmt.Errorf("document %q: %w", entry.Name, err)
		}

		nx, ny := m.Shape()
		sx, sy := m.PixelScales()
		xMin, xMax, yMin, yMax := m.Extent()
		logger.Info("coordinate grid",
			"document", entry.Name,
			"shape", fmt.Sprintf("%dx%d", nx, ny),
			"pixel_scale", fmt.Sprintf("%g,%g", sx, sy),
			"extent", fmt.Sprintf("[%g, %g] x [%g, %g]", xMin, xMax, yMin, yMax))

		x, y := m.PixelCoordinates()
		if err := imageutil.SaveFITS(r.output(entry.Name+"_x.fits"), x); err != nil {
			return err
		}
		if err := imageutil.SaveFITS(r.output(entry.Name+"_y.fits"), y); err != nil {
			return err
		}
	}
	return nil
}

// imagePath returns the FITS file to process for document i. A path given in
// the document is relative to the document.
func (r *run) imagePath(i int) string {
	if r.cfg.Image.Path != "" {
		return r.cfg.Image.Path
	}
	p := r.docs[i].Observation.FitsPath
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(r.cfg.Documents[i].Path), p)
}

func runImage(ctx context.Context, r *run) error {
	logger := loggerFromContext(ctx)
	opts := r.cfg.Image

	var psf [][]float64
	if opts.PSFPath != "" {
		var err error
		if psf, err = imageutil.LoadFITS(opts.PSFPath); err != nil {
			return err
		}
	}

	for i, entry := range r.cfg.Documents {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := r.imagePath(i)
		if path == "" {
			logger.Warn("no image to process", "document", entry.Name)
			continue
		}

		img, err := imageutil.LoadFITS(path)
		if err != nil {
			return err
		}
		rows, cols, _ := imageutil.Shape(img)
		logger.Debug("loaded image", "document", entry.Name, "path", path, "rows", rows, "cols", cols)

		if opts.LensingInfo != nil {
			if err := lensingInformation(ctx, r, i, img); err != nil {
				return err
			}
		}

		if psf != nil {
			t := startTimer(logger)
			if img, err = imageutil.ConvolvePSF(img, psf, opts.ConvMode, opts.Padding); err != nil {
				return fmt.Errorf("document %q: %w", entry.Name, err)
			}
			t.done("Convolution of " + entry.Name + " with the PSF")
		}

		if img, err = imageutil.Downsample(img, opts.DownsampleFactor); err != nil {
			return fmt.Errorf("document %q: %w", entry.Name, err)
		}

		if opts.HasTargetMagnitude {
			var zp imageutil.ZeroPointSource = r.docs[i]
			if opts.HasZeroPoint {
				zp = imageutil.ZeroPoint(opts.ZeroPoint)
			}
			if img, err = imageutil.RescaleToMagnitude(img, opts.TargetMagnitude, zp); err != nil {
				return fmt.Errorf("document %q: %w", entry.Name, err)
			}
			logger.Info("rescaled image", "document", entry.Name, "magnitude", opts.TargetMagnitude)
		}

		if err := imageutil.SaveFITS(r.output(entry.Name+"_image.fits"), img); err != nil {
			return err
		}
		data, err := imageutil.MatrixToGray16(img, opts.PNGScale)
		if err != nil {
			return err
		}
		if err := imageutil.SavePNG(r.output(entry.Name+"_image.png"), data); err != nil {
			return err
		}
		view, err := imageutil.MatrixToGrayViewPercentile(img, opts.ViewLowPercentile, opts.ViewHighPercentile)
		if err != nil {
			return err
		}
		if err := imageutil.SavePNG(r.output(entry.Name+"_view.png"), view); err != nil {
			return err
		}
	}
	return nil
}

func lensingInformation(ctx context.Context, r *run, i int, img [][]float64) error {
	logger := loggerFromContext(ctx)
	li := r.cfg.Image.LensingInfo
	name := r.cfg.Documents[i].Name

	m, err := coordinates.FromDocument(r.docs[i], r.cfg.OffsetX, r.cfg.OffsetY)
	if err != nil {
		return fmt.Errorf("document %q: %w", name, err)
	}
	x, y := m.PixelCoordinates()

	noise, err := imageutil.LoadFITS(li.NoisePath)
	if err != nil {
		return err
	}
	var arcMask [][]float64
	if li.ArcMaskPath != "" {
		if arcMask, err = imageutil.LoadFITS(li.ArcMaskPath); err != nil {
			return err
		}
	}

	info, err := imageutil.LensingInformation(img, x, y, noise, imageutil.LensingInfoOptions{
		ThetaE:  li.ThetaE,
		CenterX: li.CenterX,
		CenterY: li.CenterY,
		A:       li.A,
		B:       li.B,
		ArcMask: arcMask,
	})
	if err != nil {
		return fmt.Errorf("document %q: %w", name, err)
	}
	logger.Info("lensing information", "document", name, "I", info.Value, "theta_E", info.ThetaE, "phi_ref", info.PhiRef)
	return imageutil.SaveFITS(r.output(name+"_lensing_info_mask.fits"), info.Mask)
}

func runParams(ctx context.Context, r *run) error {
	logger := loggerFromContext(ctx)
	opts := r.cfg.Params

	named := make([]params.NamedDocument, len(r.docs))
	for i, doc := range r.docs {
		named[i] = params.NamedDocument{Name: r.cfg.Documents[i].Name, Doc: doc}
	}

	t := startTimer(logger)
	res := (&params.Extractor{Logger: logger}).Split(named)
	t.done("Parameter extraction")

	if err := writeJSON(r.output("lens_params.json"), res.Lens); err != nil {
		return err
	}
	if err := writeJSON(r.output("source_params.json"), res.Source); err != nil {
		return err
	}
	if opts.WriteDiagnostic {
		diags := make(map[string][]string, len(res.Diagnostics))
		for name, ds := range res.Diagnostics {
			diags[name] = make([]string, 0, len(ds))
			for _, d := range ds {
				diags[name] = append(diags[name], d.String())
			}
		}
		if err := writeJSON(r.output("diagnostics.json"), diags); err != nil {
			return err
		}
	}

	if len(opts.PlotKeys) > 0 {
		path := r.output("params_comparison.png")
		if err := params.PlotComparison(res, opts.PlotKeys, path, float64(r.cfg.PlotWidthPixels), float64(r.cfg.PlotHeightPixels)); err != nil {
			return err
		}
		logger.Info("wrote comparison plot", "path", path)
	}

	if opts.SamplesPath != "" {
		rows, err := imageutil.LoadFITS(opts.SamplesPath)
		if err != nil {
			return err
		}
		n, p, err := imageutil.Shape(rows)
		if err != nil {
			return err
		}
		samples := mat.NewDense(n, p, imageutil.ImageToArray(rows))
		out, err := params.ResampleMultivariateNormal(samples, opts.ResampleCount, rand.NewPCG(opts.ResampleSeed, opts.ResampleSeed))
		if err != nil {
			return fmt.Errorf("resampling %s: %w", opts.SamplesPath, err)
		}
		nr, nc := out.Dims()
		resampled := make([][]float64, nr)
		for i := range resampled {
			resampled[i] = mat.Row(nil, i, out)
		}
		if err := imageutil.SaveFITS(r.output("resampled_samples.fits"), resampled); err != nil {
			return err
		}
		logger.Info("resampled posterior", "samples", n, "params", nc, "draws", nr)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

func runLines(ctx context.Context, r *run) error {
	logger := loggerFromContext(ctx)
	opts := r.cfg.Lines

	if opts.MagnificationPath == "" {
		return fmt.Errorf("lines: magnification_path is required")
	}

	// The maps are sampled on the grid of the first document.
	entry := r.cfg.Documents[0]
	m, err := coordinates.FromDocument(r.docs[0], r.cfg.OffsetX, r.cfg.OffsetY)
	if err != nil {
		return fmt.Errorf("document %q: %w", entry.Name, err)
	}

	mag, err := imageutil.LoadFITS(opts.MagnificationPath)
	if err != nil {
		return err
	}

	t := startTimer(logger)
	var crit, caustics iter.Seq[lenslines.Polyline]
	if opts.AlphaXPath != "" {
		alphaX, err := imageutil.LoadFITS(opts.AlphaXPath)
		if err != nil {
			return err
		}
		alphaY, err := imageutil.LoadFITS(opts.AlphaYPath)
		if err != nil {
			return err
		}
		lens, err := lenslines.NewGridLens(m, mag, alphaX, alphaY)
		if err != nil {
			return err
		}
		crit, caustics = lenslines.FindAllLensLines(m, lens)
	} else {
		crit = lenslines.FindCriticalLines(m, mag)
		caustics = func(yield func(lenslines.Polyline) bool) {}
	}

	critLines := lenslines.Collect(crit)
	causticLines := lenslines.Collect(caustics)
	t.done("Critical line search")
	logger.Info("lens lines", "document", entry.Name, "critical_lines", len(critLines), "caustics", len(causticLines))

	if err := writeJSON(r.output("lens_lines.json"), map[string][]lenslines.Polyline{
		"critical_lines": critLines,
		"caustics":       causticLines,
	}); err != nil {
		return err
	}

	if len(critLines) == 0 {
		logger.Warn("no critical lines found, skipping figures")
		return nil
	}

	if err := lenslines.PlotLines(slices.Values(critLines), slices.Values(causticLines), r.output("lens_lines.png"),
		float64(r.cfg.PlotWidthPixels), float64(r.cfg.PlotHeightPixels)); err != nil {
		return err
	}

	if opts.Overlay {
		path := r.imagePath(0)
		if path == "" {
			logger.Warn("no image for the overlay", "document", entry.Name)
			return nil
		}
		img, err := imageutil.LoadFITS(path)
		if err != nil {
			return err
		}
		view, err := imageutil.MatrixToGrayViewPercentile(img, r.cfg.Image.ViewLowPercentile, r.cfg.Image.ViewHighPercentile)
		if err != nil {
			return err
		}
		overlay := lenslines.DrawOnImage(view, m, slices.Values(critLines), color.RGBA{R: 255, A: 255}, 0)
		if err := imageutil.SavePNG(r.output("lens_lines_overlay.png"), overlay); err != nil {
			return err
		}
	}
	return nil
}
