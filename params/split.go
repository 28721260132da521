package params

import (
	"io"
	"math"

	"github.com/charmbracelet/log"

	"github.com/bob-anderson-ok/COOLESTutil/coolest"
)

// NamedDocument pairs a document with the short name it is reported under.
type NamedDocument struct {
	Name string
	Doc  *coolest.Document
}

// Result holds the lens and source parameter sets of every document, keyed by
// document name. Names keeps the input order.
type Result struct {
	Names       []string
	Lens        map[string]Set
	Source      map[string]Set
	Diagnostics map[string][]Diagnostic
}

// Extractor splits documents into lens and source parameter sets.
// A nil Logger keeps it silent.
type Extractor struct {
	Logger *log.Logger
}

// SplitLensSource runs a silent Extractor over docs.
func SplitLensSource(docs []NamedDocument) Result {
	return (&Extractor{}).Split(docs)
}

// Split extracts the parameters of every document.
//
// A Galaxy above the lowest redshift contributes its Sersic light profiles to
// the source set. A Galaxy below the highest redshift contributes its PEMD and
// SIE mass profiles to the lens set. A MassField contributes its external
// shear to the lens set. Everything else becomes a diagnostic.
func (e *Extractor) Split(docs []NamedDocument) Result {
	logger := e.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	res := Result{
		Lens:        make(map[string]Set, len(docs)),
		Source:      make(map[string]Set, len(docs)),
		Diagnostics: make(map[string][]Diagnostic, len(docs)),
	}
	for _, nd := range docs {
		dl := logger.With("document", nd.Name)
		lens, source, diags := splitDocument(nd.Doc)
		for _, d := range diags {
			if d.Level == LevelWarn {
				dl.Warn(d.Message)
			} else {
				dl.Debug(d.Message)
			}
		}
		dl.Debug("parameters extracted", "lens", lens.Len(), "source", source.Len())

		if _, seen := res.Lens[nd.Name]; !seen {
			res.Names = append(res.Names, nd.Name)
		}
		res.Lens[nd.Name] = lens
		res.Source[nd.Name] = source
		res.Diagnostics[nd.Name] = diags
	}
	return res
}

func splitDocument(doc *coolest.Document) (lens, source Set, diags []Diagnostic) {
	if doc == nil {
		return lens, source, []Diagnostic{warnf("no document")}
	}
	if doc.Mode != coolest.ModeMAP {
		diags = append(diags, infof("document mode is %q, not %q", doc.Mode, coolest.ModeMAP))
	}
	if len(doc.Entities) == 0 {
		return lens, source, diags
	}

	zMin, zMax := redshiftRange(doc.Entities)
	for _, ent := range doc.Entities {
		if ent.Kind == coolest.EntityGalaxy && ent.Redshift > zMin {
			diags = append(diags, infof("multi-plane lensing to consider: galaxy %q at z=%g", ent.Name, ent.Redshift))
			break
		}
	}

	idxLens, idxSource := 0, 0
	for _, ent := range doc.Entities {
		switch ent.Kind {
		case coolest.EntityGalaxy:
			z := ent.Redshift
			if math.IsNaN(z) {
				diags = append(diags, warnf("galaxy %q has no redshift", ent.Name))
				continue
			}

			if z > zMin {
				for _, l := range ent.Light {
					set, d, err := ExtractLight(l, idxSource)
					if err != nil {
						diags = append(diags, warnf("galaxy %q: light type %q not yet implemented", ent.Name, l.Type))
						continue
					}
					source.merge(set)
					diags = append(diags, d...)
					idxSource++
				}
			}

			if z < zMax {
				for _, m := range ent.Mass {
					if m.Kind != coolest.MassPEMD && m.Kind != coolest.MassSIE {
						diags = append(diags, warnf("galaxy %q: mass type %q not yet implemented", ent.Name, m.Type))
						continue
					}
					set, d, err := ExtractMass(m, idxLens)
					if err != nil {
						diags = append(diags, warnf("galaxy %q: %v", ent.Name, err))
						continue
					}
					lens.merge(set)
					diags = append(diags, d...)
					idxLens++
				}
			}

			// Only reachable when every entity sits at the same redshift.
			if z <= zMin && z >= zMax {
				diags = append(diags, warnf("galaxy %q: redshift %g is not in the range ]%g, %g[", ent.Name, z, zMin, zMax))
			}

		case coolest.EntityMassField:
			for _, m := range ent.Mass {
				if m.Kind != coolest.MassExternalShear {
					diags = append(diags, warnf("mass field %q: type of shear %q not implemented", ent.Name, m.Type))
					continue
				}
				set, d, err := ExtractMass(m, idxLens)
				if err != nil {
					diags = append(diags, warnf("mass field %q: %v", ent.Name, err))
					continue
				}
				lens.merge(set)
				diags = append(diags, d...)
				idxLens++
			}

		default:
			diags = append(diags, warnf("lensing entity of type %q is unknown", ent.Type))
		}
	}
	return lens, source, diags
}

// redshiftRange returns the lowest and highest known redshift. Both are NaN
// when no entity has one.
func redshiftRange(entities []coolest.LensingEntity) (zMin, zMax float64) {
	zMin, zMax = math.NaN(), math.NaN()
	for _, ent := range entities {
		z := ent.Redshift
		if math.IsNaN(z) {
			continue
		}
		if math.IsNaN(zMin) || z < zMin {
			zMin = z
		}
		if math.IsNaN(zMax) || z > zMax {
			zMax = z
		}
	}
	return zMin, zMax
}
