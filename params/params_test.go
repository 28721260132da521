package params

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/bob-anderson-ok/COOLESTutil/coolest"
)

func param(name string, value float64) coolest.Parameter {
	return coolest.Parameter{
		Name:          name,
		Latex:         "$" + name + "$",
		PointEstimate: value,
		Posterior: coolest.PosteriorStats{
			Mean:         value,
			Median:       value,
			Percentile16: value - 0.1,
			Percentile84: value + 0.1,
		},
	}
}

func galaxy(name string, z float64, mass []coolest.MassProfile, light []coolest.LightProfile) coolest.LensingEntity {
	return coolest.LensingEntity{Kind: coolest.EntityGalaxy, Type: "Galaxy", Name: name, Redshift: z, Mass: mass, Light: light}
}

func pemd(ps ...coolest.Parameter) coolest.MassProfile {
	return coolest.MassProfile{Kind: coolest.MassPEMD, Type: "PEMD", Parameters: ps}
}

func sersic(ps ...coolest.Parameter) coolest.LightProfile {
	return coolest.LightProfile{Kind: coolest.LightSersic, Type: "Sersic", Parameters: ps}
}

func TestSplitPEMDThetaE(t *testing.T) {
	doc := &coolest.Document{
		Mode: coolest.ModeMAP,
		Entities: []coolest.LensingEntity{
			galaxy("foreground", 0.2, nil, nil),
			galaxy("lens", 0.5, []coolest.MassProfile{pemd(param("theta_E", 1.2), param("q", 0.8))}, nil),
			galaxy("source", 0.8, nil, nil),
		},
	}

	res := SplitLensSource([]NamedDocument{{Name: "model", Doc: doc}})

	lens := res.Lens["model"]
	rec, ok := lens.Get("PEMD_0_theta_E")
	require.True(t, ok)
	assert.Equal(t, 1.2, rec.PointEstimate)
	assert.Equal(t, "$theta_E$", rec.Latex)

	rec, ok = lens.Get("PEMD_0_q")
	require.True(t, ok)
	assert.Equal(t, 0.8, rec.PointEstimate)

	// table order, not document order
	assert.Equal(t, []string{"PEMD_0_theta_E", "PEMD_0_q"}, lens.Keys())
	assert.Zero(t, res.Source["model"].Len())
	assert.Equal(t, []string{"model"}, res.Names)
}

func TestSplitTwoPlaneDocument(t *testing.T) {
	doc, err := coolest.Load(filepath.Join("..", "coolest", "testdata", "two_plane.json"))
	require.NoError(t, err)

	res := SplitLensSource([]NamedDocument{{Name: "two-plane", Doc: doc}})

	assert.Equal(t, []string{
		"PEMD_0_theta_E",
		"PEMD_0_q",
		"SHEAR_1_gamma_ext",
		"SHEAR_1_phi_ext",
	}, res.Lens["two-plane"].Keys())
	assert.Equal(t, []string{"Sersic_0_A", "Sersic_0_n_sersic"}, res.Source["two-plane"].Keys())

	rec, _ := res.Lens["two-plane"].Get("PEMD_0_theta_E")
	assert.Equal(t, 1.15, rec.Percentile16)
	assert.Equal(t, 1.25, rec.Percentile84)

	rec, _ = res.Lens["two-plane"].Get("PEMD_0_q")
	assert.True(t, math.IsNaN(rec.Mean))

	var messages []string
	for _, d := range res.Diagnostics["two-plane"] {
		messages = append(messages, d.Message)
	}
	joined := strings.Join(messages, "\n")
	assert.Contains(t, joined, `light type "PixelatedRegularGrid" not yet implemented`)
	assert.Contains(t, joined, "multi-plane lensing")
}

func TestSplitCountersPerRole(t *testing.T) {
	sie := coolest.MassProfile{Kind: coolest.MassSIE, Type: "SIE", Parameters: []coolest.Parameter{param("theta_E", 0.7)}}
	shear := coolest.MassProfile{Kind: coolest.MassExternalShear, Type: "ExternalShear", Parameters: []coolest.Parameter{param("gamma_ext", 0.05)}}

	doc := &coolest.Document{
		Mode: coolest.ModeMAP,
		Entities: []coolest.LensingEntity{
			galaxy("main", 0.3, []coolest.MassProfile{pemd(param("gamma", 2.1)), sie}, nil),
			{Kind: coolest.EntityMassField, Type: "MassField", Name: "env", Redshift: 0.3, Mass: []coolest.MassProfile{shear}},
			galaxy("src", 1.5, nil, []coolest.LightProfile{sersic(param("n", 4)), sersic(param("theta_eff", 0.2))}),
		},
	}

	other := &coolest.Document{
		Mode: coolest.ModeMAP,
		Entities: []coolest.LensingEntity{
			galaxy("lens", 0.4, []coolest.MassProfile{pemd(param("theta_E", 1.0))}, nil),
			galaxy("src", 1.0, nil, nil),
		},
	}

	res := SplitLensSource([]NamedDocument{{Name: "a", Doc: doc}, {Name: "b", Doc: other}})

	assert.Equal(t, []string{"PEMD_0_gamma", "SIE_1_theta_E", "SHEAR_2_gamma_ext"}, res.Lens["a"].Keys())
	assert.Equal(t, []string{"Sersic_0_n_sersic", "Sersic_1_R_sersic"}, res.Source["a"].Keys())

	// counters restart for every document
	assert.Equal(t, []string{"PEMD_0_theta_E"}, res.Lens["b"].Keys())
	assert.Equal(t, []string{"a", "b"}, res.Names)
}

func TestSplitDiagnostics(t *testing.T) {
	nfw := coolest.MassProfile{Kind: coolest.MassUnknown, Type: "NFW"}
	shearOnGalaxy := coolest.MassProfile{Kind: coolest.MassExternalShear, Type: "ExternalShear"}
	convergence := coolest.MassProfile{Kind: coolest.MassUnknown, Type: "ConvergenceSheet"}

	doc := &coolest.Document{
		Mode: coolest.ModeMock,
		Entities: []coolest.LensingEntity{
			galaxy("lens", 0.5, []coolest.MassProfile{nfw, shearOnGalaxy, pemd(param("theta_E", 1), param("s_core", 0.01))}, nil),
			{Kind: coolest.EntityMassField, Type: "MassField", Name: "env", Redshift: 0.5, Mass: []coolest.MassProfile{convergence}},
			{Kind: coolest.EntityUnknown, Type: "Star", Name: "star", Redshift: 0.5},
			galaxy("source", 1.0, nil, nil),
		},
	}

	res := SplitLensSource([]NamedDocument{{Name: "mock", Doc: doc}})

	// one bad profile never stops the others
	assert.Equal(t, []string{"PEMD_0_theta_E"}, res.Lens["mock"].Keys())

	var warns, infos []string
	for _, d := range res.Diagnostics["mock"] {
		if d.Level == LevelWarn {
			warns = append(warns, d.Message)
		} else {
			infos = append(infos, d.Message)
		}
	}
	assert.Contains(t, infos, `document mode is "MOCK", not "MAP"`)
	assert.Contains(t, warns, `galaxy "lens": mass type "NFW" not yet implemented`)
	assert.Contains(t, warns, `galaxy "lens": mass type "ExternalShear" not yet implemented`)
	assert.Contains(t, warns, `PEMD parameter "s_core" not known`)
	assert.Contains(t, warns, `mass field "env": type of shear "ConvergenceSheet" not implemented`)
	assert.Contains(t, warns, `lensing entity of type "Star" is unknown`)
}

func TestSplitSinglePlane(t *testing.T) {
	doc := &coolest.Document{
		Mode: coolest.ModeMAP,
		Entities: []coolest.LensingEntity{
			galaxy("only", 0.5, []coolest.MassProfile{pemd(param("theta_E", 1))}, []coolest.LightProfile{sersic(param("n", 1))}),
		},
	}

	res := SplitLensSource([]NamedDocument{{Name: "single", Doc: doc}})

	// with min == max neither branch applies
	assert.Zero(t, res.Lens["single"].Len())
	assert.Zero(t, res.Source["single"].Len())
	require.Len(t, res.Diagnostics["single"], 1)
	assert.Equal(t, `galaxy "only": redshift 0.5 is not in the range ]0.5, 0.5[`, res.Diagnostics["single"][0].Message)
}

func TestSplitEmptyAndMissing(t *testing.T) {
	res := SplitLensSource([]NamedDocument{
		{Name: "empty", Doc: &coolest.Document{Mode: coolest.ModeMAP}},
		{Name: "nil"},
	})

	assert.Zero(t, res.Lens["empty"].Len())
	assert.Zero(t, res.Source["empty"].Len())
	assert.Empty(t, res.Diagnostics["empty"])

	assert.Zero(t, res.Lens["nil"].Len())
	require.Len(t, res.Diagnostics["nil"], 1)
	assert.Equal(t, LevelWarn, res.Diagnostics["nil"][0].Level)
}

func TestExtractorLogsDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	e := &Extractor{Logger: log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})}

	doc := &coolest.Document{
		Mode:     coolest.ModeMAP,
		Entities: []coolest.LensingEntity{{Kind: coolest.EntityUnknown, Type: "Blob", Redshift: 1}},
	}
	e.Split([]NamedDocument{{Name: "logged", Doc: doc}})

	out := buf.String()
	assert.Contains(t, out, "Blob")
	assert.Contains(t, out, "is unknown")
	assert.Contains(t, out, "document=logged")
}

func TestExtractUnsupported(t *testing.T) {
	_, _, err := ExtractMass(coolest.MassProfile{Kind: coolest.MassUnknown, Type: "NFW"}, 0)
	assert.ErrorIs(t, err, ErrUnsupportedProfile)

	_, _, err = ExtractLight(coolest.LightProfile{Kind: coolest.LightUnknown, Type: "Shapelets"}, 0)
	assert.ErrorIs(t, err, ErrUnsupportedProfile)
}

func TestExtractLightRenames(t *testing.T) {
	set, diags, err := ExtractLight(sersic(
		param("center_y", 0.2),
		param("center_x", -0.1),
		param("I_eff", 3),
		param("theta_eff", 0.4),
		param("phi", 10),
		param("q", 0.6),
		param("n", 2),
	), 3)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, []string{
		"Sersic_3_A",
		"Sersic_3_n_sersic",
		"Sersic_3_R_sersic",
		"Sersic_3_q",
		"Sersic_3_phi",
		"Sersic_3_cx",
		"Sersic_3_cy",
	}, set.Keys())
}

func TestTables(t *testing.T) {
	for k := range massTables {
		assert.NoError(t, massTables[k].validate())
	}
	for k := range lightTables {
		assert.NoError(t, lightTables[k].validate())
	}

	assert.Error(t, table{prefix: "X", fields: []rename{{"a", "b"}, {"a", "c"}}}.validate())
	assert.Error(t, table{prefix: "X", fields: []rename{{"a", "b"}, {"c", "b"}}}.validate())
	assert.Error(t, table{fields: []rename{{"a", "b"}}}.validate())

	assert.Equal(t, [][2]string{{"gamma_ext", "gamma_ext"}, {"phi_ext", "phi_ext"}}, MassFields(coolest.MassExternalShear))
	assert.Nil(t, MassFields(coolest.MassUnknown))
	assert.Len(t, LightFields(coolest.LightSersic), 7)
}

func TestSetMarshalJSON(t *testing.T) {
	var s Set
	s.put("SIE_0_q", Record{PointEstimate: 0.5, Percentile16: 0.4, Percentile84: 0.6, Median: 0.5, Mean: math.NaN(), Latex: "$q$"})
	s.put("SIE_0_phi", Record{PointEstimate: 30, Latex: `$\phi$`})

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t,
		`{"SIE_0_q":{"point_estimate":0.5,"percentile_16th":0.4,"percentile_84th":0.6,"median":0.5,"mean":null,"latex_str":"$q$"},`+
			`"SIE_0_phi":{"point_estimate":30,"percentile_16th":0,"percentile_84th":0,"median":0,"mean":0,"latex_str":"$\\phi$"}}`,
		string(data))

	data, err = json.Marshal(Set{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestResampleMultivariateNormal(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	const rows = 4000
	samples := mat.NewDense(rows, 2, nil)
	for i := 0; i < rows; i++ {
		a := rng.NormFloat64()
		b := rng.NormFloat64()
		samples.Set(i, 0, 1+0.5*a)
		samples.Set(i, 1, -2+0.3*a+0.2*b)
	}

	out, err := ResampleMultivariateNormal(samples, 5001, rand.NewPCG(3, 4))
	require.NoError(t, err)

	r, c := out.Dims()
	assert.Equal(t, 5000, r)
	assert.Equal(t, 2, c)

	x := mat.Col(nil, 0, out)
	y := mat.Col(nil, 1, out)
	assert.InDelta(t, 1, stat.Mean(x, nil), 0.05)
	assert.InDelta(t, -2, stat.Mean(y, nil), 0.05)
	assert.InDelta(t, 0.5, stat.StdDev(x, nil), 0.05)
	assert.InDelta(t, 0.15, stat.Covariance(x, y, nil), 0.03)
}

func TestResampleErrors(t *testing.T) {
	_, err := ResampleMultivariateNormal(mat.NewDense(1, 2, []float64{1, 2}), 10, rand.NewPCG(1, 1))
	assert.Error(t, err)

	_, err = ResampleMultivariateNormal(mat.NewDense(3, 4, nil), 3, rand.NewPCG(1, 1))
	assert.Error(t, err)

	// identical rows have a singular covariance
	_, err = ResampleMultivariateNormal(mat.NewDense(3, 2, []float64{1, 2, 1, 2, 1, 2}), 10, rand.NewPCG(1, 1))
	assert.ErrorIs(t, err, ErrSingularCovariance)
}

func TestPlotComparison(t *testing.T) {
	mk := func(theta float64) *coolest.Document {
		return &coolest.Document{
			Mode: coolest.ModeMAP,
			Entities: []coolest.LensingEntity{
				galaxy("lens", 0.5, []coolest.MassProfile{pemd(param("theta_E", theta), param("q", 0.8))}, nil),
				galaxy("src", 2, nil, []coolest.LightProfile{sersic(param("n", 3))}),
			},
		}
	}
	res := SplitLensSource([]NamedDocument{{Name: "a", Doc: mk(1.1)}, {Name: "b", Doc: mk(1.3)}})

	dir := t.TempDir()
	path := filepath.Join(dir, "compare.png")
	require.NoError(t, PlotComparison(res, []string{"PEMD_0_theta_E", "Sersic_0_n_sersic"}, path, 400, 300))
	assert.FileExists(t, path)

	err := PlotComparison(res, []string{"SIE_0_q"}, filepath.Join(dir, "none.png"), 400, 300)
	assert.ErrorIs(t, err, ErrNothingToPlot)
}
