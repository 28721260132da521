package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/KevinWang15/go-json5"

	"github.com/bob-anderson-ok/COOLESTutil/imageutil"
)

// DocumentEntry names one COOLEST document of a run.
type DocumentEntry struct {
	Name string
	Path string
}

// RunConfig is the content of a run-parameter file.
type RunConfig struct {
	ShowInput        bool
	Documents        []DocumentEntry
	OutputFolder     string
	OffsetX          float64 // arcsec
	OffsetY          float64
	PlotWidthPixels  int
	PlotHeightPixels int
	Image            ImageOptions
	Params           ParamsOptions
	Lines            LinesOptions
}

type ImageOptions struct {
	Path               string // overrides the FITS file named by the document
	DownsampleFactor   int
	TargetMagnitude    float64
	HasTargetMagnitude bool
	ZeroPoint          float64
	HasZeroPoint       bool
	PSFPath            string
	ConvMode           imageutil.ConvMode
	Padding            imageutil.PaddingMode
	PNGScale           float64
	ViewLowPercentile  float64
	ViewHighPercentile float64
	LensingInfo        *LensingInfoConfig
}

type LensingInfoConfig struct {
	NoisePath   string
	ArcMaskPath string
	ThetaE      float64
	CenterX     float64
	CenterY     float64
	A           float64
	B           float64
}

type ParamsOptions struct {
	PlotKeys        []string
	SamplesPath     string // FITS table of posterior samples, one row per sample
	ResampleCount   int
	ResampleSeed    uint64
	WriteDiagnostic bool
}

type LinesOptions struct {
	MagnificationPath string
	AlphaXPath        string
	AlphaYPath        string
	Overlay           bool
}

// loadRunFile reads a json5 run file. Relative paths inside it are taken
// relative to the directory of the run file.
func loadRunFile(path string) (*RunConfig, []byte, error) {
	// Read the Json5 (or Json) parameter file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("attempt to read input file %q failed: %w", path, err)
	}

	// Parse json(5) data into a generic container
	var jsonTable map[string]interface{}
	if err := json.Unmarshal(data, &jsonTable); err != nil {
		return nil, nil, fmt.Errorf("format error in file %q: %w", path, err)
	}

	var cfg RunConfig
	if msg, ok := validateJsonFileAndFillConfig(jsonTable, &cfg); !ok {
		return nil, nil, fmt.Errorf("%s: %s", path, msg)
	}

	base := filepath.Dir(path)
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	for i := range cfg.Documents {
		resolve(&cfg.Documents[i].Path)
	}
	resolve(&cfg.OutputFolder)
	resolve(&cfg.Image.Path)
	resolve(&cfg.Image.PSFPath)
	if li := cfg.Image.LensingInfo; li != nil {
		resolve(&li.NoisePath)
		resolve(&li.ArcMaskPath)
	}
	resolve(&cfg.Params.SamplesPath)
	resolve(&cfg.Lines.MagnificationPath)
	resolve(&cfg.Lines.AlphaXPath)
	resolve(&cfg.Lines.AlphaYPath)

	return &cfg, data, nil
}

func getLeafValue(jsonTable map[string]interface{}, path ...string) (interface{}, bool) {
	var cur interface{} = jsonTable
	for _, p := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// optionalFloat stores the number at path in dst. found is false when the
// field is missing; msg is set when it has the wrong type.
func optionalFloat(jsonTable map[string]interface{}, dst *float64, path ...string) (found bool, msg string) {
	v, ok := getLeafValue(jsonTable, path...)
	if !ok {
		return false, ""
	}
	f, ok := v.(float64)
	if !ok {
		return true, strings.Join(path, ".") + ": is not a float64"
	}
	*dst = f
	return true, ""
}

func optionalString(jsonTable map[string]interface{}, dst *string, path ...string) (found bool, msg string) {
	v, ok := getLeafValue(jsonTable, path...)
	if !ok {
		return false, ""
	}
	s, ok := v.(string)
	if !ok {
		return true, strings.Join(path, ".") + ": is not a string"
	}
	*dst = s
	return true, ""
}

func optionalBool(jsonTable map[string]interface{}, dst *bool, path ...string) (found bool, msg string) {
	v, ok := getLeafValue(jsonTable, path...)
	if !ok {
		return false, ""
	}
	b, ok := v.(bool)
	if !ok {
		return true, strings.Join(path, ".") + ": is not a bool"
	}
	*dst = b
	return true, ""
}

func validateJsonFileAndFillConfig(jsonTable map[string]interface{}, cfg *RunConfig) (string, bool) {
	msg := "No problem found in json file" // Initialize msg to presumed success.

	if _, m := optionalBool(jsonTable, &cfg.ShowInput, "show_input_bool"); m != "" {
		return m, false
	}

	docs, ok := getLeafValue(jsonTable, "documents")
	if !ok {
		msg = "documents: not found"
		return msg, false
	}
	docList, ok := docs.([]interface{})
	if !ok || len(docList) == 0 {
		msg = "documents: is not a non-empty array"
		return msg, false
	}
	seen := make(map[string]bool)
	for i, item := range docList {
		var entry DocumentEntry
		switch d := item.(type) {
		case string:
			entry.Path = d
		case map[string]interface{}:
			if found, m := optionalString(d, &entry.Path, "path"); !found || m != "" {
				msg = fmt.Sprintf("documents[%d].path: not found or not a string", i)
				return msg, false
			}
			if _, m := optionalString(d, &entry.Name, "name"); m != "" {
				msg = fmt.Sprintf("documents[%d].name: is not a string", i)
				return msg, false
			}
		default:
			msg = fmt.Sprintf("documents[%d]: is neither a path nor an object", i)
			return msg, false
		}
		if entry.Name == "" {
			entry.Name = strings.TrimSuffix(filepath.Base(entry.Path), filepath.Ext(entry.Path))
		}
		if seen[entry.Name] {
			msg = fmt.Sprintf("documents[%d]: duplicate name %q", i, entry.Name)
			return msg, false
		}
		seen[entry.Name] = true
		cfg.Documents = append(cfg.Documents, entry)
	}

	cfg.OutputFolder = "." // Default: next to the run file
	if _, m := optionalString(jsonTable, &cfg.OutputFolder, "output_folder"); m != "" {
		return m, false
	}

	if _, m := optionalFloat(jsonTable, &cfg.OffsetX, "offset_x_arcsec"); m != "" {
		return m, false
	}
	if _, m := optionalFloat(jsonTable, &cfg.OffsetY, "offset_y_arcsec"); m != "" {
		return m, false
	}

	width, height := 800.0, 600.0
	if _, m := optionalFloat(jsonTable, &width, "plot_width_pixels"); m != "" {
		return m, false
	}
	if _, m := optionalFloat(jsonTable, &height, "plot_height_pixels"); m != "" {
		return m, false
	}
	if width < 100 || height < 100 {
		msg = "plot_width_pixels and plot_height_pixels: must be at least 100"
		return msg, false
	}
	cfg.PlotWidthPixels = int(width)
	cfg.PlotHeightPixels = int(height)

	if msg, ok := fillImageOptions(jsonTable, &cfg.Image); !ok {
		return msg, false
	}
	if msg, ok := fillParamsOptions(jsonTable, &cfg.Params); !ok {
		return msg, false
	}
	if msg, ok := fillLinesOptions(jsonTable, &cfg.Lines); !ok {
		return msg, false
	}

	return msg, true
}

func fillImageOptions(jsonTable map[string]interface{}, img *ImageOptions) (string, bool) {
	if _, m := optionalString(jsonTable, &img.Path, "image", "path"); m != "" {
		return m, false
	}

	factor := 1.0
	if _, m := optionalFloat(jsonTable, &factor, "image", "downsample_factor"); m != "" {
		return m, false
	}
	if factor < 1 || factor != float64(int(factor)) {
		return "image.downsample_factor: must be a positive integer", false
	}
	img.DownsampleFactor = int(factor)

	found, m := optionalFloat(jsonTable, &img.TargetMagnitude, "image", "target_magnitude")
	if m != "" {
		return m, false
	}
	img.HasTargetMagnitude = found

	found, m = optionalFloat(jsonTable, &img.ZeroPoint, "image", "mag_zero_point")
	if m != "" {
		return m, false
	}
	img.HasZeroPoint = found

	if _, m := optionalString(jsonTable, &img.PSFPath, "image", "psf_path"); m != "" {
		return m, false
	}

	mode := imageutil.ConvSame.String()
	if _, m := optionalString(jsonTable, &mode, "image", "convolution_mode"); m != "" {
		return m, false
	}
	var err error
	if img.ConvMode, err = imageutil.ParseConvMode(mode); err != nil {
		return "image.convolution_mode: " + err.Error(), false
	}

	pad := imageutil.PadZeros.String()
	if _, m := optionalString(jsonTable, &pad, "image", "padding"); m != "" {
		return m, false
	}
	if img.Padding, err = imageutil.ParsePaddingMode(pad); err != nil {
		return "image.padding: " + err.Error(), false
	}

	img.PNGScale = 1000 // Default: milli-units in the 16 bit data png
	if _, m := optionalFloat(jsonTable, &img.PNGScale, "image", "png_scale"); m != "" {
		return m, false
	}
	if img.PNGScale <= 0 {
		return "image.png_scale: must be > 0", false
	}

	img.ViewLowPercentile, img.ViewHighPercentile = 1, 99.5
	if _, m := optionalFloat(jsonTable, &img.ViewLowPercentile, "image", "view_low_percentile"); m != "" {
		return m, false
	}
	if _, m := optionalFloat(jsonTable, &img.ViewHighPercentile, "image", "view_high_percentile"); m != "" {
		return m, false
	}

	if _, ok := getLeafValue(jsonTable, "image", "lensing_information"); ok {
		li := &LensingInfoConfig{}
		if found, m := optionalString(jsonTable, &li.NoisePath, "image", "lensing_information", "noise_path"); !found || m != "" {
			return "image.lensing_information.noise_path: not found or not a string", false
		}
		if found, m := optionalFloat(jsonTable, &li.ThetaE, "image", "lensing_information", "theta_E"); !found || m != "" {
			return "image.lensing_information.theta_E: not found or not a float64", false
		}
		for _, f := range []struct {
			dst  *float64
			name string
		}{
			{&li.CenterX, "center_x"},
			{&li.CenterY, "center_y"},
			{&li.A, "a"},
			{&li.B, "b"},
		} {
			if _, m := optionalFloat(jsonTable, f.dst, "image", "lensing_information", f.name); m != "" {
				return m, false
			}
		}
		if _, m := optionalString(jsonTable, &li.ArcMaskPath, "image", "lensing_information", "arc_mask_path"); m != "" {
			return m, false
		}
		img.LensingInfo = li
	}

	return "", true
}

func fillParamsOptions(jsonTable map[string]interface{}, p *ParamsOptions) (string, bool) {
	if keys, ok := getLeafValue(jsonTable, "params", "plot_keys"); ok {
		list, ok := keys.([]interface{})
		if !ok {
			return "params.plot_keys: is not an array", false
		}
		for i, k := range list {
			s, ok := k.(string)
			if !ok {
				return fmt.Sprintf("params.plot_keys[%d]: is not a string", i), false
			}
			p.PlotKeys = append(p.PlotKeys, s)
		}
	}

	if _, m := optionalString(jsonTable, &p.SamplesPath, "params", "samples_path"); m != "" {
		return m, false
	}
	count := 5000.0
	if _, m := optionalFloat(jsonTable, &count, "params", "resample_count"); m != "" {
		return m, false
	}
	if count < 1 {
		return "params.resample_count: must be >= 1", false
	}
	p.ResampleCount = int(count)

	seed := 1.0
	if _, m := optionalFloat(jsonTable, &seed, "params", "resample_seed"); m != "" {
		return m, false
	}
	if seed < 0 {
		return "params.resample_seed: must be >= 0", false
	}
	p.ResampleSeed = uint64(seed)

	if _, m := optionalBool(jsonTable, &p.WriteDiagnostic, "params", "write_diagnostics_bool"); m != "" {
		return m, false
	}
	return "", true
}

func fillLinesOptions(jsonTable map[string]interface{}, l *LinesOptions) (string, bool) {
	if _, m := optionalString(jsonTable, &l.MagnificationPath, "lines", "magnification_path"); m != "" {
		return m, false
	}
	if _, m := optionalString(jsonTable, &l.AlphaXPath, "lines", "alpha_x_path"); m != "" {
		return m, false
	}
	if _, m := optionalString(jsonTable, &l.AlphaYPath, "lines", "alpha_y_path"); m != "" {
		return m, false
	}
	if (l.AlphaXPath == "") != (l.AlphaYPath == "") {
		return "lines: alpha_x_path and alpha_y_path must be given together", false
	}
	l.Overlay = true
	if _, m := optionalBool(jsonTable, &l.Overlay, "lines", "overlay_bool"); m != "" {
		return m, false
	}
	return "", true
}
