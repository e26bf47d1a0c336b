// Package sml transcodes SensorML-JSON entity payloads into their
// GeoJSON representation and extracts the normalized record the
// document store indexes on.
package sml

import (
	"context"
	"fmt"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"

	cserrors "github.com/52north/connected-systems-go/pkg/csa/errors"
	"github.com/52north/connected-systems-go/pkg/csa/geojson"
	"github.com/52north/connected-systems-go/pkg/csa/types"
)

const (
	EncodingSensorML = "application/sml+json"
	EncodingGeoJSON  = "application/geo+json"
)

type Kind string

const (
	KindSystem     Kind = "system"
	KindDeployment Kind = "deployment"
	KindProcedure  Kind = "procedure"
)

// mapping enumerates, per entity kind, which SensorML keys feed which
// GeoJSON properties. Absent source keys are omitted from the result.
type mapping struct {
	featureTypeKey string
	geometryKey    string
	links          map[string]string
	passthrough    []string
}

var mappings = map[Kind]mapping{
	KindSystem: {
		featureTypeKey: "definition",
		geometryKey:    "position",
		links:          map[string]string{"typeOf": "systemKind@link"},
		passthrough:    []string{"identifiers", "classifiers", "contacts", "characteristics", "capabilities"},
	},
	KindDeployment: {
		featureTypeKey: "definition",
		geometryKey:    "location",
		links:          map[string]string{"platform": "platform@link"},
		passthrough:    []string{"members", "contacts"},
	},
	KindProcedure: {
		featureTypeKey: "procedureType",
		links:          map[string]string{"typeOf": "systemKind@link"},
		passthrough:    []string{"identifiers", "classifiers", "documentation"},
	},
}

// Normalize extracts the canonical record from an incoming payload in
// either supported encoding. SensorML payloads get a GeoJSON rendering
// alongside; GeoJSON payloads store an empty SensorML side because
// that direction of the transcoding is not implemented.
func Normalize(ctx context.Context, kind Kind, encoding string, item map[string]any) (*types.Document, error) {
	switch encoding {
	case EncodingSensorML, "":
		return normalizeSensorML(kind, item)
	case EncodingGeoJSON:
		return normalizeGeoJSON(ctx, item)
	}

	return nil, cserrors.NewInvalidQueryError(fmt.Sprintf("unsupported encoding %s", encoding))
}

func normalizeSensorML(kind Kind, item map[string]any) (*types.Document, error) {
	uid, ok := item["uniqueId"].(string)
	if !ok || uid == "" {
		return nil, cserrors.NewValidationError("uniqueId is required")
	}

	doc := &types.Document{
		UID: uid,
		SML: item,
	}

	if id, ok := item["id"].(string); ok {
		doc.ID = id
	}

	if name, ok := item["label"].(string); ok {
		doc.Name = name
	}

	if description, ok := item["description"].(string); ok {
		doc.Description = description
	}

	if parent, ok := item["parent"].(string); ok {
		doc.Parent = parent
	}

	validTime, err := parseValidTime(item["validTime"])
	if err != nil {
		return nil, err
	}
	doc.ValidTime = validTime

	m := mappings[kind]
	if m.geometryKey != "" {
		doc.Geometry = item[m.geometryKey]
	}

	doc.GeoJSON = ToGeoJSON(kind, item)
	return doc, nil
}

func normalizeGeoJSON(ctx context.Context, item map[string]any) (*types.Document, error) {
	log := logging.GetFromContext(ctx)

	doc := &types.Document{
		Geometry: item["geometry"],
		GeoJSON:  item,
	}

	if id, ok := item["id"].(string); ok {
		doc.ID = id
	}

	if properties, ok := item["properties"].(map[string]any); ok {
		if uid, ok := properties["uid"].(string); ok {
			doc.UID = uid
		}
		if name, ok := properties["name"].(string); ok {
			doc.Name = name
		}
		if description, ok := properties["description"].(string); ok {
			doc.Description = description
		}
		if parent, ok := properties["parent"].(string); ok {
			doc.Parent = parent
		}

		validTime, err := parseValidTime(properties["validTime"])
		if err != nil {
			return nil, err
		}
		doc.ValidTime = validTime
	}

	if doc.UID == "" {
		return nil, cserrors.NewValidationError("properties.uid is required")
	}

	// The reverse transcoding to SensorML is not available, so the
	// record keeps an empty sml side and such entities are only
	// retrievable in the geospatial encoding.
	log.Debug("storing geojson entity without a sensorml rendering", "uid", doc.UID)

	return doc, nil
}

// ToGeoJSON renders a SensorML payload as a GeoJSON feature according
// to the mapping table of its kind. Only present source keys
// contribute; nothing is invented.
func ToGeoJSON(kind Kind, item map[string]any) map[string]any {
	m := mappings[kind]

	id, _ := item["id"].(string)
	feature := geojson.NewFeature(id)

	if uid, ok := item["uniqueId"]; ok {
		feature.Properties["uid"] = uid
	}
	if label, ok := item["label"]; ok {
		feature.Properties["name"] = label
	}
	if description, ok := item["description"]; ok {
		feature.Properties["description"] = description
	}
	if featureType, ok := item[m.featureTypeKey]; ok {
		feature.Properties["featureType"] = featureType
	}
	if validTime, ok := item["validTime"]; ok {
		feature.Properties["validTime"] = validTime
	}

	for source, target := range m.links {
		if link, ok := item[source]; ok {
			feature.Properties[target] = link
		}
	}

	for _, key := range m.passthrough {
		if value, ok := item[key]; ok {
			feature.Properties[key] = value
		}
	}

	if m.geometryKey != "" {
		feature.Geometry = item[m.geometryKey]
	}

	return feature.AsMap()
}

// parseValidTime turns a two-element [begin, end] array into a date
// range. The literal "now" in either bound resolves to the wall clock
// at write time.
func parseValidTime(value any) (*types.DateRange, error) {
	if value == nil {
		return nil, nil
	}

	pair, ok := value.([]any)
	if !ok || len(pair) != 2 {
		return nil, cserrors.NewValidationError("validTime must be a [begin, end] pair")
	}

	begin, err := parseValidTimeBound(pair[0])
	if err != nil {
		return nil, err
	}

	end, err := parseValidTimeBound(pair[1])
	if err != nil {
		return nil, err
	}

	return &types.DateRange{GTE: begin, LTE: end}, nil
}

func parseValidTimeBound(value any) (*time.Time, error) {
	token, ok := value.(string)
	if !ok {
		return nil, cserrors.NewValidationError("validTime bounds must be strings")
	}

	if token == "now" {
		now := time.Now().UTC()
		return &now, nil
	}

	ts, err := time.Parse(time.RFC3339, token)
	if err != nil {
		return nil, cserrors.NewValidationError(fmt.Sprintf("unparsable validTime bound %q", token))
	}

	return &ts, nil
}
