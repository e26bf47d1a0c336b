package docstore

import (
	"github.com/52north/connected-systems-go/internal/pkg/application/params"
	"github.com/52north/connected-systems-go/pkg/csa/types"
)

// M is shorthand for a raw query fragment.
type M map[string]any

// Query accumulates bool-query fragments and renders them into a
// search body. Fragments added via Terms/Range/BBox/GeoShape land in
// the filter context, full-text search in the must context.
type Query struct {
	filter  []M
	must    []M
	mustNot []M
}

func NewQuery() *Query {
	return &Query{}
}

// Terms restricts field to the given set of exact values.
func (q *Query) Terms(field string, values []string) *Query {
	if len(values) == 0 {
		return q
	}
	q.filter = append(q.filter, M{"terms": M{field: values}})
	return q
}

// Text adds a full-text match over the given fields.
func (q *Query) Text(text string, fields ...string) *Query {
	if text == "" {
		return q
	}
	q.must = append(q.must, M{
		"multi_match": M{
			"query":  text,
			"fields": fields,
		},
	})
	return q
}

// Range restricts a date or date_range field to the interval. Open
// bounds are simply left out of the fragment.
func (q *Query) Range(field string, interval *types.TimeInterval) *Query {
	if interval == nil {
		return q
	}

	bounds := M{}
	if !interval.IsOpenStart() {
		bounds["gte"] = interval.Start
	}
	if !interval.IsOpenEnd() {
		bounds["lte"] = interval.End
	}
	if len(bounds) == 0 {
		return q
	}

	q.filter = append(q.filter, M{"range": M{field: bounds}})
	return q
}

// BBox restricts a geo field to a bounding box.
func (q *Query) BBox(field string, box *types.BoundingBox) *Query {
	if box == nil {
		return q
	}
	q.filter = append(q.filter, M{
		"geo_bounding_box": M{
			field: M{
				"top_left": M{
					"lat": box.MaxY,
					"lon": box.MinX,
				},
				"bottom_right": M{
					"lat": box.MinY,
					"lon": box.MaxX,
				},
			},
		},
	})
	return q
}

// GeoShape restricts a geo field to geometries intersecting the given
// shape (WKT or GeoJSON geometry, passed through verbatim).
func (q *Query) GeoShape(field string, shape any) *Query {
	if shape == nil {
		return q
	}
	q.filter = append(q.filter, M{
		"geo_shape": M{
			field: M{
				"shape":    shape,
				"relation": "intersects",
			},
		},
	})
	return q
}

// ExcludeExists filters out documents that carry the given field.
func (q *Query) ExcludeExists(field string) *Query {
	q.mustNot = append(q.mustNot, M{"exists": M{"field": field}})
	return q
}

// HasIDFilter reports whether an explicit id restriction was added,
// which turns an empty result into a not-found condition.
func (q *Query) HasIDFilter() bool {
	for _, f := range q.filter {
		if terms, ok := f["terms"].(M); ok {
			if _, ok := terms["_id"]; ok {
				return true
			}
		}
	}
	return false
}

// Body renders the accumulated fragments into a search body with
// paging applied.
func (q *Query) Body(offset, limit int) M {
	boolQuery := M{}

	if len(q.filter) > 0 {
		boolQuery["filter"] = q.filter
	}
	if len(q.must) > 0 {
		boolQuery["must"] = q.must
	}
	if len(q.mustNot) > 0 {
		boolQuery["must_not"] = q.mustNot
	}

	body := M{
		"from": offset,
		"size": limit,
	}

	if len(boolQuery) > 0 {
		body["query"] = M{"bool": boolQuery}
	} else {
		body["query"] = M{"match_all": M{}}
	}

	return body
}

// ApplyCommon adds the filters every collection supports: explicit ids
// and full-text search over name and description.
func ApplyCommon(q *Query, p *params.Parameters) *Query {
	q.Terms("_id", p.IDs)
	q.Text(p.Query, "name", "description")
	return q
}

// ApplyTemporal restricts the validity range of matched documents.
func ApplyTemporal(q *Query, field string, interval *types.TimeInterval) *Query {
	return q.Range(field, interval)
}

// ApplySpatial adds the bbox and geometry intersection filters on the
// shared geometry field.
func ApplySpatial(q *Query, p *params.Parameters) *Query {
	q.BBox("geometry", p.BBox)
	if p.Geometry != "" {
		q.GeoShape("geometry", p.Geometry)
	}
	return q
}
