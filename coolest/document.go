// Package coolest holds a read-only view of a COOLEST lens-model document: the
// observation grid, the instrument, and the list of lensing entities with their
// mass and light profiles and the posterior statistics of every parameter.
//
// Profile and entity "type" fields are parsed into closed kinds. Unrecognized
// tags are kept (Kind == ...Unknown, raw tag in Type) so that callers can report
// and skip them instead of failing the whole document.
package coolest

import "math"

// Mode values found in the "mode" field of a document.
const (
	ModeMAP      = "MAP"
	ModeMock     = "MOCK"
	ModeDoc      = "DOC"
	ModeTemplate = "TEMPLATE"
)

// Document is a parsed COOLEST file. It is never modified after Load returns.
type Document struct {
	Mode        string
	Entities    []LensingEntity
	Observation Observation
	Instrument  Instrument
}

// Observation describes the pixel grid of the observed image.
type Observation struct {
	NumPixX      int
	NumPixY      int
	FieldOfViewX [2]float64
	FieldOfViewY [2]float64
	FitsPath     string  // path of the FITS file holding the pixels, may be empty
	MagZeroPoint float64 // NaN when the document does not give one
}

// Instrument carries the instrument metadata needed by the utilities.
type Instrument struct {
	Name      string
	Band      string
	PixelSize float64 // arcsec per pixel
}

// MagZeroPoint returns the observation's magnitude zero-point, if any.
func (d *Document) MagZeroPoint() (float64, bool) {
	if d == nil || math.IsNaN(d.Observation.MagZeroPoint) {
		return 0, false
	}
	return d.Observation.MagZeroPoint, true
}

// EntityKind is the closed set of lensing entity variants.
type EntityKind int

const (
	EntityUnknown EntityKind = iota
	EntityGalaxy
	EntityMassField
)

func (k EntityKind) String() string {
	switch k {
	case EntityGalaxy:
		return "Galaxy"
	case EntityMassField:
		return "MassField"
	default:
		return "Unknown"
	}
}

// ParseEntityKind maps a document "type" tag onto an EntityKind.
func ParseEntityKind(tag string) EntityKind {
	switch tag {
	case "Galaxy":
		return EntityGalaxy
	case "MassField":
		return EntityMassField
	default:
		return EntityUnknown
	}
}

// MassKind is the closed set of mass profiles the utilities know about.
type MassKind int

const (
	MassUnknown MassKind = iota
	MassPEMD
	MassSIE
	MassExternalShear
)

func (k MassKind) String() string {
	switch k {
	case MassPEMD:
		return "PEMD"
	case MassSIE:
		return "SIE"
	case MassExternalShear:
		return "ExternalShear"
	default:
		return "Unknown"
	}
}

// ParseMassKind maps a mass profile "type" tag onto a MassKind.
func ParseMassKind(tag string) MassKind {
	switch tag {
	case "PEMD":
		return MassPEMD
	case "SIE":
		return MassSIE
	case "ExternalShear":
		return MassExternalShear
	default:
		return MassUnknown
	}
}

// LightKind is the closed set of light profiles the utilities know about.
type LightKind int

const (
	LightUnknown LightKind = iota
	LightSersic
)

func (k LightKind) String() string {
	if k == LightSersic {
		return "Sersic"
	}
	return "Unknown"
}

// ParseLightKind maps a light profile "type" tag onto a LightKind.
func ParseLightKind(tag string) LightKind {
	if tag == "Sersic" {
		return LightSersic
	}
	return LightUnknown
}

// LensingEntity is either a Galaxy (mass and light) or a MassField (mass only).
type LensingEntity struct {
	Kind     EntityKind
	Type     string // raw "type" tag
	Name     string
	Redshift float64 // NaN when missing
	Mass     []MassProfile
	Light    []LightProfile // always empty for a MassField
}

// MassProfile is one entry of an entity's mass model.
type MassProfile struct {
	Kind       MassKind
	Type       string
	Parameters []Parameter
}

// LightProfile is one entry of an entity's light model.
type LightProfile struct {
	Kind       LightKind
	Type       string
	Parameters []Parameter
}

// Parameter is a named profile parameter with its point estimate and posterior
// summary. Values absent from the document are NaN.
type Parameter struct {
	Name          string
	Latex         string
	PointEstimate float64
	Posterior     PosteriorStats
}

// PosteriorStats summarizes the posterior distribution of a parameter.
type PosteriorStats struct {
	Mean         float64
	Median       float64
	Percentile16 float64
	Percentile84 float64
}
