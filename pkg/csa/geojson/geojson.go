package geojson

// FeatureCollection is the envelope for a list of features.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
}

// Feature is a GeoJSON feature with a free-form properties bag. The
// geometry is passed through verbatim.
type Feature struct {
	ID         string         `json:"id,omitempty"`
	Type       string         `json:"type"`
	Geometry   any            `json:"geometry"`
	Properties map[string]any `json:"properties"`
	Links      []any          `json:"links,omitempty"`
}

func NewFeature(id string) *Feature {
	return &Feature{
		ID:         id,
		Type:       "Feature",
		Properties: map[string]any{},
	}
}

// AsMap renders the feature as a generic document payload.
func (f *Feature) AsMap() map[string]any {
	m := map[string]any{
		"type":       f.Type,
		"geometry":   f.Geometry,
		"properties": f.Properties,
	}
	if f.ID != "" {
		m["id"] = f.ID
	}
	if len(f.Links) > 0 {
		m["links"] = f.Links
	}
	return m
}
