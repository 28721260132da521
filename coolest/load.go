package coolest

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	json "github.com/KevinWang15/go-json5"
)

// ErrInvalidDocument is returned when the document structure cannot be read.
var ErrInvalidDocument = errors.New("invalid COOLEST document")

// Load reads a COOLEST document (JSON or JSON5) from path.
func Load(path string) (*Document, error) {
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		path = abs
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a COOLEST document from JSON or JSON5 bytes.
func Parse(data []byte) (*Document, error) {
	var jsonTable map[string]interface{}
	if err := json.Unmarshal(data, &jsonTable); err != nil {
		return nil, err
	}

	doc := &Document{}

	if mode, ok := getLeafValue(jsonTable, "mode"); ok {
		doc.Mode, ok = mode.(string)
		if !ok {
			return nil, fmt.Errorf("%w: mode: is not a string", ErrInvalidDocument)
		}
	}

	if err := fillObservation(jsonTable, &doc.Observation); err != nil {
		return nil, err
	}
	if err := fillInstrument(jsonTable, &doc.Instrument); err != nil {
		return nil, err
	}

	entities, ok := getLeafValue(jsonTable, "lensing_entities")
	if !ok || entities == nil {
		return doc, nil
	}
	list, ok := entities.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: lensing_entities: is not a list", ErrInvalidDocument)
	}
	for i, item := range list {
		entity, err := parseEntity(item)
		if err != nil {
			return nil, fmt.Errorf("%w: lensing_entities[%d]: %v", ErrInvalidDocument, i, err)
		}
		doc.Entities = append(doc.Entities, entity)
	}

	return doc, nil
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

// getFloat returns NaN for missing or null values and an error for values of
// the wrong type.
func getFloat(jsonTable map[string]interface{}, path ...string) (float64, error) {
	v, ok := getLeafValue(jsonTable, path...)
	if !ok || v == nil {
		return math.NaN(), nil
	}
	f, ok := v.(float64)
	if !ok {
		return math.NaN(), fmt.Errorf("%v: is not a float64", path)
	}
	return f, nil
}

func getString(jsonTable map[string]interface{}, path ...string) (string, error) {
	v, ok := getLeafValue(jsonTable, path...)
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%v: is not a string", path)
	}
	return s, nil
}

func getPair(jsonTable map[string]interface{}, path ...string) ([2]float64, error) {
	var pair [2]float64
	v, ok := getLeafValue(jsonTable, path...)
	if !ok || v == nil {
		return pair, nil
	}
	list, ok := v.([]interface{})
	if !ok || len(list) != 2 {
		return pair, fmt.Errorf("%v: is not a pair of numbers", path)
	}
	for i := range list {
		f, ok := list[i].(float64)
		if !ok {
			return pair, fmt.Errorf("%v: is not a pair of numbers", path)
		}
		pair[i] = f
	}
	return pair, nil
}

func fillObservation(jsonTable map[string]interface{}, obs *Observation) error {
	var err error
	wrap := func(err error) error {
		return fmt.Errorf("%w: observation.%v", ErrInvalidDocument, err)
	}

	nx, err := getFloat(jsonTable, "observation", "pixels", "num_pix_x")
	if err != nil {
		return wrap(err)
	}
	ny, err := getFloat(jsonTable, "observation", "pixels", "num_pix_y")
	if err != nil {
		return wrap(err)
	}
	if !math.IsNaN(nx) {
		obs.NumPixX = int(nx)
	}
	if !math.IsNaN(ny) {
		obs.NumPixY = int(ny)
	}

	if obs.FieldOfViewX, err = getPair(jsonTable, "observation", "pixels", "field_of_view_x"); err != nil {
		return wrap(err)
	}
	if obs.FieldOfViewY, err = getPair(jsonTable, "observation", "pixels", "field_of_view_y"); err != nil {
		return wrap(err)
	}
	if obs.FitsPath, err = getString(jsonTable, "observation", "pixels", "fits_file", "path"); err != nil {
		return wrap(err)
	}
	if obs.MagZeroPoint, err = getFloat(jsonTable, "observation", "mag_zero_point"); err != nil {
		return wrap(err)
	}
	return nil
}

func fillInstrument(jsonTable map[string]interface{}, inst *Instrument) error {
	var err error
	wrap := func(err error) error {
		return fmt.Errorf("%w: instrument.%v", ErrInvalidDocument, err)
	}
	if inst.Name, err = getString(jsonTable, "instrument", "name"); err != nil {
		return wrap(err)
	}
	if inst.Band, err = getString(jsonTable, "instrument", "band"); err != nil {
		return wrap(err)
	}
	if inst.PixelSize, err = getFloat(jsonTable, "instrument", "pixel_size"); err != nil {
		return wrap(err)
	}
	return nil
}

func parseEntity(item interface{}) (LensingEntity, error) {
	var entity LensingEntity
	m, ok := item.(map[string]interface{})
	if !ok {
		return entity, errors.New("is not an object")
	}

	var err error
	if entity.Type, err = getString(m, "type"); err != nil {
		return entity, err
	}
	entity.Kind = ParseEntityKind(entity.Type)
	if entity.Name, err = getString(m, "name"); err != nil {
		return entity, err
	}
	if entity.Redshift, err = getFloat(m, "redshift"); err != nil {
		return entity, err
	}

	massModel, err := parseProfiles(m, "mass_model")
	if err != nil {
		return entity, err
	}
	for _, p := range massModel {
		entity.Mass = append(entity.Mass, MassProfile{
			Kind:       ParseMassKind(p.tag),
			Type:       p.tag,
			Parameters: p.params,
		})
	}

	if entity.Kind == EntityMassField {
		return entity, nil
	}

	lightModel, err := parseProfiles(m, "light_model")
	if err != nil {
		return entity, err
	}
	for _, p := range lightModel {
		entity.Light = append(entity.Light, LightProfile{
			Kind:       ParseLightKind(p.tag),
			Type:       p.tag,
			Parameters: p.params,
		})
	}
	return entity, nil
}

type rawProfile struct {
	tag    string
	params []Parameter
}

func parseProfiles(entity map[string]interface{}, key string) ([]rawProfile, error) {
	v, ok := entity[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: is not a list", key)
	}

	profiles := make([]rawProfile, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s[%d]: is not an object", key, i)
		}
		tag, err := getString(m, "type")
		if err != nil {
			return nil, fmt.Errorf("%s[%d].%v", key, i, err)
		}
		params, err := parseParameters(m)
		if err != nil {
			return nil, fmt.Errorf("%s[%d].%v", key, i, err)
		}
		profiles = append(profiles, rawProfile{tag: tag, params: params})
	}
	return profiles, nil
}

// parseParameters returns the parameters sorted by name; JSON objects carry no
// order that survives decoding.
func parseParameters(profile map[string]interface{}) ([]Parameter, error) {
	v, ok := profile["parameters"]
	if !ok || v == nil {
		return nil, nil
	}
	table, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.New("parameters: is not an object")
	}

	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]Parameter, 0, len(names))
	for _, name := range names {
		pm, ok := table[name].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("parameters.%s: is not an object", name)
		}
		p := Parameter{Name: name}
		var err error
		if p.Latex, err = getString(pm, "latex_str"); err != nil {
			return nil, fmt.Errorf("parameters.%s.%v", name, err)
		}
		if p.PointEstimate, err = getFloat(pm, "point_estimate", "value"); err != nil {
			return nil, fmt.Errorf("parameters.%s.%v", name, err)
		}
		if p.Posterior.Mean, err = getFloat(pm, "posterior_stats", "mean"); err != nil {
			return nil, fmt.Errorf("parameters.%s.%v", name, err)
		}
		if p.Posterior.Median, err = getFloat(pm, "posterior_stats", "median"); err != nil {
			return nil, fmt.Errorf("parameters.%s.%v", name, err)
		}
		if p.Posterior.Percentile16, err = getFloat(pm, "posterior_stats", "percentile_16th"); err != nil {
			return nil, fmt.Errorf("parameters.%s.%v", name, err)
		}
		if p.Posterior.Percentile84, err = getFloat(pm, "posterior_stats", "percentile_84th"); err != nil {
			return nil, fmt.Errorf("parameters.%s.%v", name, err)
		}
		params = append(params, p)
	}
	return params, nil
}
