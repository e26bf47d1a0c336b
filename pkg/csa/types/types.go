package types

import (
	"time"
)

// TimeInterval is a half-open time interval. A nil bound means the
// interval is unbounded on that side.
type TimeInterval struct {
	Start *time.Time
	End   *time.Time
}

func NewTimeInterval(start, end *time.Time) *TimeInterval {
	return &TimeInterval{Start: start, End: end}
}

func (ti TimeInterval) IsOpenStart() bool {
	return ti.Start == nil
}

func (ti TimeInterval) IsOpenEnd() bool {
	return ti.End == nil
}

// BoundingBox is a 2D or 3D spatial bounding box in coordinate axis
// order (lower left corner first).
type BoundingBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64

	MinAlt *float64
	MaxAlt *float64
}

func (b BoundingBox) Is3D() bool {
	return b.MinAlt != nil && b.MaxAlt != nil
}

// DateRange is the normalized validity range representation stored in
// the document store (maps to a date_range field).
type DateRange struct {
	GTE *time.Time `json:"gte,omitempty"`
	LTE *time.Time `json:"lte,omitempty"`
}

// Document is the normalized record shared by all transcoded entities.
// Only the indexed filter fields are pulled out of the payloads; the
// payloads themselves are stored verbatim per encoding.
type Document struct {
	ID          string     `json:"id"`
	UID         string     `json:"uid,omitempty"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	ValidTime   *DateRange `json:"validTime,omitempty"`
	Geometry    any        `json:"geometry,omitempty"`

	// Parent holds the owning system id of a subsystem.
	Parent string `json:"parent,omitempty"`
	// LinkedSystemIDs holds the resolved system ids a deployment refers to.
	LinkedSystemIDs []string `json:"linked_system_ids,omitempty"`
	// SystemID holds the owning system of a datastream.
	SystemID string `json:"system,omitempty"`

	SML     map[string]any `json:"sml,omitempty"`
	GeoJSON map[string]any `json:"geojson,omitempty"`

	// Schema and Payload are only used by datastream documents.
	Schema  map[string]any `json:"schema,omitempty"`
	Payload map[string]any `json:"json,omitempty"`
}

type Link struct {
	Title string `json:"title"`
	Rel   string `json:"rel"`
	Href  string `json:"href"`
}

// CollectionResult is the paged result of a collection query. Links
// contains a "next" relation when more results exist.
type CollectionResult struct {
	Items []map[string]any
	Links []Link
}
