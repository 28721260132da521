package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bob-anderson-ok/COOLESTutil/coolest"
	"github.com/bob-anderson-ok/COOLESTutil/coordinates"
	"github.com/bob-anderson-ok/COOLESTutil/imageutil"
	"github.com/bob-anderson-ok/COOLESTutil/lenslines"
)

// setupRun copies the two-plane document into a temp dir next to a 100x100
// observation of ones, writes the run file and returns the directory.
func setupRun(t *testing.T, runFile string) string {
	t.Helper()
	dir := t.TempDir()

	data, err := os.ReadFile(filepath.Join("coolest", "testdata", "two_plane.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.json"), data, 0o644))

	obs := make([][]float64, 100)
	for i := range obs {
		obs[i] = make([]float64, 100)
		for j := range obs[i] {
			obs[i][j] = 1
		}
	}
	require.NoError(t, imageutil.SaveFITS(filepath.Join(dir, "obs.fits"), obs))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.json5"), []byte(runFile), 0o644))
	return dir
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestCoordsCommand(t *testing.T) {
	dir := setupRun(t, `{
		show_input_bool: true,
		documents: ["doc.json"],
		output_folder: "out",
	}`)

	stdout, stderr, err := execute(t, "coords", filepath.Join(dir, "run.json5"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Printout of complete run file contents")
	assert.Contains(t, stderr, "coordinate grid")

	x, err := imageutil.LoadFITS(filepath.Join(dir, "out", "doc_x.fits"))
	require.NoError(t, err)
	y, err := imageutil.LoadFITS(filepath.Join(dir, "out", "doc_y.fits"))
	require.NoError(t, err)

	rows, cols, err := imageutil.Shape(x)
	require.NoError(t, err)
	assert.Equal(t, 100, rows)
	assert.Equal(t, 100, cols)
	assert.InDelta(t, -3.96, x[0][0], 1e-9)
	assert.InDelta(t, 3.96, x[0][99], 1e-9)
	assert.InDelta(t, -3.96, y[0][0], 1e-9)
	assert.InDelta(t, 3.96, y[99][0], 1e-9)
}

func TestImageCommand(t *testing.T) {
	dir := setupRun(t, `{
		documents: ["doc.json"],
		output_folder: "out",
		image: {
			psf_path: "psf.fits",
			downsample_factor: 2,
			target_magnitude: 20,
			lensing_information: {noise_path: "noise.fits", theta_E: 1.2},
		},
	}`)

	psf := [][]float64{{0, 0, 0}, {0, 4, 0}, {0, 0, 0}}
	require.NoError(t, imageutil.SaveFITS(filepath.Join(dir, "psf.fits"), psf))
	noise := make([][]float64, 100)
	for i := range noise {
		noise[i] = make([]float64, 100)
		for j := range noise[i] {
			noise[i][j] = 0.1
		}
	}
	require.NoError(t, imageutil.SaveFITS(filepath.Join(dir, "noise.fits"), noise))

	_, stderr, err := execute(t, "image", filepath.Join(dir, "run.json5"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "lensing information")

	img, err := imageutil.LoadFITS(filepath.Join(dir, "out", "doc_image.fits"))
	require.NoError(t, err)
	rows, cols, err := imageutil.Shape(img)
	require.NoError(t, err)
	assert.Equal(t, 50, rows)
	assert.Equal(t, 50, cols)
	// zero-point 25 from the document
	assert.InDelta(t, 20, imageutil.Magnitude(img, 25), 1e-9)
	assert.InDelta(t, 100.0/2500, img[25][25], 1e-9)

	for _, name := range []string{"doc_image.png", "doc_view.png", "doc_lensing_info_mask.fits"} {
		assert.FileExists(t, filepath.Join(dir, "out", name))
	}

	mask, err := imageutil.LoadFITS(filepath.Join(dir, "out", "doc_lensing_info_mask.fits"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, mask[50][50])
}

func TestParamsCommand(t *testing.T) {
	dir := setupRun(t, `{
		documents: [{name: "a", path: "doc.json"}, {name: "b", path: "doc.json"}],
		output_folder: "out",
		params: {
			plot_keys: ["PEMD_0_theta_E", "SHEAR_1_gamma_ext"],
			write_diagnostics_bool: true,
			samples_path: "samples.fits",
			resample_count: 200,
		},
	}`)

	rng := rand.New(rand.NewPCG(3, 4))
	samples := make([][]float64, 50)
	for i := range samples {
		samples[i] = []float64{rng.NormFloat64(), 2 + rng.NormFloat64(), -1 + 0.5*rng.NormFloat64()}
	}
	require.NoError(t, imageutil.SaveFITS(filepath.Join(dir, "samples.fits"), samples))

	_, stderr, err := execute(t, "params", filepath.Join(dir, "run.json5"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "Parameter extraction took")

	data, err := os.ReadFile(filepath.Join(dir, "out", "lens_params.json"))
	require.NoError(t, err)
	var lens map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &lens))
	require.Contains(t, lens, "a")
	require.Contains(t, lens, "b")
	assert.Equal(t, 1.2, lens["a"]["PEMD_0_theta_E"]["point_estimate"])
	assert.Equal(t, 0.03, lens["b"]["SHEAR_1_gamma_ext"]["point_estimate"])
	assert.Nil(t, lens["a"]["PEMD_0_q"]["mean"])

	data, err = os.ReadFile(filepath.Join(dir, "out", "source_params.json"))
	require.NoError(t, err)
	var source map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &source))
	assert.Equal(t, 1.5, source["a"]["Sersic_0_n_sersic"]["point_estimate"])

	data, err = os.ReadFile(filepath.Join(dir, "out", "diagnostics.json"))
	require.NoError(t, err)
	var diags map[string][]string
	require.NoError(t, json.Unmarshal(data, &diags))
	assert.NotEmpty(t, diags["a"])

	assert.FileExists(t, filepath.Join(dir, "out", "params_comparison.png"))

	resampled, err := imageutil.LoadFITS(filepath.Join(dir, "out", "resampled_samples.fits"))
	require.NoError(t, err)
	rows, cols, err := imageutil.Shape(resampled)
	require.NoError(t, err)
	assert.Equal(t, 198, rows)
	assert.Equal(t, 3, cols)
}

func TestLinesCommand(t *testing.T) {
	dir := setupRun(t, `{
		documents: ["doc.json"],
		output_folder: "out",
		image: {path: "obs.fits"},
		lines: {magnification_path: "mag.fits", alpha_x_path: "ax.fits", alpha_y_path: "ay.fits"},
	}`)

	doc, err := coolest.Load(filepath.Join(dir, "doc.json"))
	require.NoError(t, err)
	m, err := coordinates.FromDocument(doc, 0, 0)
	require.NoError(t, err)

	const thetaE = 1.2
	x, y := m.PixelCoordinates()
	mag := make([][]float64, len(x))
	ax := make([][]float64, len(x))
	ay := make([][]float64, len(x))
	for i := range x {
		mag[i] = make([]float64, len(x[i]))
		ax[i] = make([]float64, len(x[i]))
		ay[i] = make([]float64, len(x[i]))
		for j := range x[i] {
			r := math.Hypot(x[i][j], y[i][j])
			mag[i][j] = 1 / (1 - thetaE/r)
			ax[i][j] = thetaE * x[i][j] / r
			ay[i][j] = thetaE * y[i][j] / r
		}
	}
	require.NoError(t, imageutil.SaveFITS(filepath.Join(dir, "mag.fits"), mag))
	require.NoError(t, imageutil.SaveFITS(filepath.Join(dir, "ax.fits"), ax))
	require.NoError(t, imageutil.SaveFITS(filepath.Join(dir, "ay.fits"), ay))

	_, _, err = execute(t, "lines", filepath.Join(dir, "run.json5"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "out", "lens_lines.json"))
	require.NoError(t, err)
	var lines struct {
		CriticalLines []lenslines.Polyline `json:"critical_lines"`
		Caustics      []lenslines.Polyline `json:"caustics"`
	}
	require.NoError(t, json.Unmarshal(data, &lines))
	require.Len(t, lines.CriticalLines, 1)
	require.Len(t, lines.Caustics, 1)

	crit := lines.CriticalLines[0]
	require.Greater(t, crit.Len(), 20)
	for k := range crit.X {
		assert.InDelta(t, thetaE, math.Hypot(crit.X[k], crit.Y[k]), 0.05)
	}
	caustic := lines.Caustics[0]
	for k := range caustic.X {
		assert.InDelta(t, 0, math.Hypot(caustic.X[k], caustic.Y[k]), 0.1)
	}

	assert.FileExists(t, filepath.Join(dir, "out", "lens_lines.png"))
	assert.FileExists(t, filepath.Join(dir, "out", "lens_lines_overlay.png"))
}

func TestCommandErrors(t *testing.T) {
	dir := setupRun(t, `{documents: ["doc.json"], output_folder: "out"}`)
	run := filepath.Join(dir, "run.json5")

	_, _, err := execute(t, "lines", run)
	assert.ErrorContains(t, err, "magnification_path is required")

	_, _, err = execute(t, "coords")
	assert.Error(t, err)

	missing := filepath.Join(dir, "missing.json5")
	require.NoError(t, os.WriteFile(missing, []byte(`{documents: ["nope.json"]}`), 0o644))
	_, _, err = execute(t, "params", missing)
	assert.ErrorContains(t, err, `document "nope"`)
}
