package params

import (
	"fmt"

	"github.com/bob-anderson-ok/COOLESTutil/coolest"
)

type rename struct {
	field  string // parameter name in the document
	suffix string // key suffix in the output set
}

type table struct {
	prefix string
	fields []rename
}

var massTables = map[coolest.MassKind]table{
	coolest.MassPEMD: {
		prefix: "PEMD",
		fields: []rename{
			{"theta_E", "theta_E"},
			{"q", "q"},
			{"phi", "phi"},
			{"center_x", "cx"},
			{"center_y", "cy"},
			{"gamma", "gamma"},
		},
	},
	coolest.MassSIE: {
		prefix: "SIE",
		fields: []rename{
			{"theta_E", "theta_E"},
			{"q", "q"},
			{"phi", "phi"},
			{"center_x", "cx"},
			{"center_y", "cy"},
		},
	},
	coolest.MassExternalShear: {
		prefix: "SHEAR",
		fields: []rename{
			{"gamma_ext", "gamma_ext"},
			{"phi_ext", "phi_ext"},
		},
	},
}

var lightTables = map[coolest.LightKind]table{
	coolest.LightSersic: {
		prefix: "Sersic",
		fields: []rename{
			{"I_eff", "A"},
			{"n", "n_sersic"},
			{"theta_eff", "R_sersic"},
			{"q", "q"},
			{"phi", "phi"},
			{"center_x", "cx"},
			{"center_y", "cy"},
		},
	},
}

func init() {
	for k, t := range massTables {
		if err := t.validate(); err != nil {
			panic(fmt.Sprintf("params: mass table %s: %v", k, err))
		}
	}
	for k, t := range lightTables {
		if err := t.validate(); err != nil {
			panic(fmt.Sprintf("params: light table %s: %v", k, err))
		}
	}
}

func (t table) validate() error {
	if t.prefix == "" {
		return fmt.Errorf("empty prefix")
	}
	if len(t.fields) == 0 {
		return fmt.Errorf("no fields")
	}
	fields := make(map[string]bool, len(t.fields))
	suffixes := make(map[string]bool, len(t.fields))
	for _, f := range t.fields {
		if f.field == "" || f.suffix == "" {
			return fmt.Errorf("empty rename %q -> %q", f.field, f.suffix)
		}
		if fields[f.field] {
			return fmt.Errorf("duplicate field %q", f.field)
		}
		if suffixes[f.suffix] {
			return fmt.Errorf("duplicate suffix %q", f.suffix)
		}
		fields[f.field] = true
		suffixes[f.suffix] = true
	}
	return nil
}

// key builds the output key of a parameter.
func (t table) key(idx int, suffix string) string {
	return fmt.Sprintf("%s_%d_%s", t.prefix, idx, suffix)
}

// MassFields returns the ordered (document field, key suffix) pairs extracted for
// a mass profile kind, or nil when the kind is not supported.
func MassFields(k coolest.MassKind) [][2]string {
	t, ok := massTables[k]
	if !ok {
		return nil
	}
	return t.pairs()
}

// LightFields is MassFields for light profiles.
func LightFields(k coolest.LightKind) [][2]string {
	t, ok := lightTables[k]
	if !ok {
		return nil
	}
	return t.pairs()
}

func (t table) pairs() [][2]string {
	out := make([][2]string, len(t.fields))
	for i, f := range t.fields {
		out[i] = [2]string{f.field, f.suffix}
	}
	return out
}
