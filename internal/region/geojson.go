package region

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
)

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string            `json:"type"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

func newFeature(g geom.Geom, props map[string]any) (Feature, error) {
	enc, err := geojson.Encode(g)
	if err != nil {
		return Feature{}, fmt.Errorf("encode geojson: %w", err)
	}
	return Feature{Type: "Feature", Geometry: enc, Properties: props}, nil
}

// Features returns the features named name, or every named feature when name
// is empty. Each carries its name under "region".
func (s *Store) Features(name string) (*FeatureCollection, error) {
	if name != "" && !s.Has(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegion, name)
	}
	fc := &FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
	for _, r := range s.regions {
		if r.Name == "" || (name != "" && r.Name != name) {
			continue
		}
		f, err := newFeature(r.Shape, map[string]any{"region": r.Name})
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", r.Name, err)
		}
		fc.Features = append(fc.Features, f)
	}
	return fc, nil
}

// MaskFeature returns Mask(name) as a single-feature collection.
func (s *Store) MaskFeature(name string) (*FeatureCollection, error) {
	f, err := newFeature(s.Mask(name), map[string]any{"mask": true})
	if err != nil {
		return nil, err
	}
	return &FeatureCollection{Type: "FeatureCollection", Features: []Feature{f}}, nil
}
