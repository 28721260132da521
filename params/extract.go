package params

import (
	"errors"
	"fmt"

	"github.com/bob-anderson-ok/COOLESTutil/coolest"
)

var ErrUnsupportedProfile = errors.New("unsupported profile")

// ExtractMass flattens the parameters of a mass profile into a Set keyed with
// the given profile index. Document parameters missing from the rename table
// are reported as diagnostics.
func ExtractMass(p coolest.MassProfile, idx int) (Set, []Diagnostic, error) {
	t, ok := massTables[p.Kind]
	if !ok {
		return Set{}, nil, fmt.Errorf("%w: mass type %q", ErrUnsupportedProfile, p.Type)
	}
	set, diags := extract(t, idx, p.Type, p.Parameters)
	return set, diags, nil
}

// ExtractLight is ExtractMass for light profiles.
func ExtractLight(p coolest.LightProfile, idx int) (Set, []Diagnostic, error) {
	t, ok := lightTables[p.Kind]
	if !ok {
		return Set{}, nil, fmt.Errorf("%w: light type %q", ErrUnsupportedProfile, p.Type)
	}
	set, diags := extract(t, idx, p.Type, p.Parameters)
	return set, diags, nil
}

func extract(t table, idx int, profileType string, parameters []coolest.Parameter) (Set, []Diagnostic) {
	byName := make(map[string]coolest.Parameter, len(parameters))
	for _, p := range parameters {
		byName[p.Name] = p
	}

	var set Set
	known := make(map[string]bool, len(t.fields))
	for _, f := range t.fields {
		known[f.field] = true
		p, ok := byName[f.field]
		if !ok {
			continue
		}
		set.put(t.key(idx, f.suffix), Record{
			PointEstimate: p.PointEstimate,
			Percentile16:  p.Posterior.Percentile16,
			Percentile84:  p.Posterior.Percentile84,
			Median:        p.Posterior.Median,
			Mean:          p.Posterior.Mean,
			Latex:         p.Latex,
		})
	}

	var diags []Diagnostic
	for _, p := range parameters {
		if !known[p.Name] {
			diags = append(diags, warnf("%s parameter %q not known", profileType, p.Name))
		}
	}
	return set, diags
}
