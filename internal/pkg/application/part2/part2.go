// Package part2 implements the time-series provider: datastream
// metadata in the document store, observations in the TimescaleDB
// hypertable.
package part2

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/52north/connected-systems-go/internal/pkg/application/csa"
	"github.com/52north/connected-systems-go/internal/pkg/application/params"
	"github.com/52north/connected-systems-go/internal/pkg/application/part2/formats"
	"github.com/52north/connected-systems-go/internal/pkg/infrastructure/metrics"
	"github.com/52north/connected-systems-go/internal/pkg/infrastructure/storage/docstore"
	"github.com/52north/connected-systems-go/internal/pkg/infrastructure/storage/timescale"
	cserrors "github.com/52north/connected-systems-go/pkg/csa/errors"
	"github.com/52north/connected-systems-go/pkg/csa/types"
)

const indexDatastreams = "datastreams"

// Mappings returns the index bootstrap mapping for the datastream
// collection.
func Mappings() map[string]docstore.M {
	return map[string]docstore.M{
		indexDatastreams: {
			"name":   docstore.M{"type": "text"},
			"system": docstore.M{"type": "keyword"},
		},
	}
}

type timeseriesProvider struct {
	store   docstore.Store
	db      timescale.Store
	cache   *existenceCache
	codecs  *formats.Registry
	baseURL string

	// schemaFormats caches the observation format per datastream for
	// the ingest path. Invalidated on schema replace and delete.
	schemaFormats sync.Map
}

// New creates the time-series provider.
func New(store docstore.Store, db timescale.Store, baseURL string) csa.Part2Provider {
	p := &timeseriesProvider{
		store:   store,
		db:      db,
		codecs:  formats.NewRegistry(),
		baseURL: baseURL,
	}

	p.cache = newExistenceCache(func(ctx context.Context, id string) (bool, error) {
		return store.Exists(ctx, indexDatastreams, docstore.NewQuery().Terms("_id", []string{id}))
	})

	return p
}

func (p *timeseriesProvider) QueryDatastreams(ctx context.Context, qp *params.Parameters) (*types.CollectionResult, error) {
	if qp.PhenomenonTime != nil || qp.ResultTime != nil {
		return nil, cserrors.NewInvalidQueryError("filtering datastreams by phenomenonTime or resultTime is not supported")
	}
	if len(qp.FOI) > 0 || len(qp.ObservedProperty) > 0 {
		return nil, cserrors.NewInvalidQueryError("filtering datastreams by foi or observedProperty is not supported")
	}

	q := docstore.NewQuery()
	docstore.ApplyCommon(q, qp)
	q.Terms("system", qp.System)

	metrics.ProviderQueries.WithLabelValues(indexDatastreams).Inc()

	result, err := p.store.Search(ctx, indexDatastreams, q, qp.Offset, qp.Limit, qp.NextLink)
	if err != nil {
		return nil, err
	}

	if qp.Schema {
		return projectSchemas(result), nil
	}

	// Clients see the datastream payload itself, not the indexed
	// envelope around it.
	for i, item := range result.Items {
		payload, _ := item["json"].(map[string]any)
		if payload == nil {
			payload = map[string]any{}
		}
		payload["id"] = item["id"]
		result.Items[i] = payload
	}

	if err := p.mergeRollups(ctx, result); err != nil {
		return nil, err
	}

	return result, nil
}

// projectSchemas reduces each datastream to its id and schema.
func projectSchemas(result *types.CollectionResult) *types.CollectionResult {
	projected := &types.CollectionResult{
		Items: make([]map[string]any, 0, len(result.Items)),
		Links: result.Links,
	}

	for _, item := range result.Items {
		projected.Items = append(projected.Items, map[string]any{
			"id":     item["id"],
			"schema": item["schema"],
		})
	}

	return projected
}

// mergeRollups folds the trigger-maintained aggregate timestamps into
// the datastream metadata.
func (p *timeseriesProvider) mergeRollups(ctx context.Context, result *types.CollectionResult) error {
	if len(result.Items) == 0 {
		return nil
	}

	ids := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		if id, ok := item["id"].(string); ok {
			ids = append(ids, id)
		}
	}

	rollups, err := p.db.Rollups(ctx, ids)
	if err != nil {
		return err
	}

	for _, item := range result.Items {
		id, _ := item["id"].(string)

		rollup, ok := rollups[id]
		if !ok {
			continue
		}

		if rollup.ResultTimeStart != nil && rollup.ResultTimeEnd != nil {
			item["resultTime"] = []string{
				rollup.ResultTimeStart.Format(time.RFC3339),
				rollup.ResultTimeEnd.Format(time.RFC3339),
			}
		}

		if rollup.PhenomenonTimeStart != nil && rollup.PhenomenonTimeEnd != nil {
			item["phenomenonTime"] = []string{
				rollup.PhenomenonTimeStart.Format(time.RFC3339),
				rollup.PhenomenonTimeEnd.Format(time.RFC3339),
			}
		}
	}

	return nil
}

func (p *timeseriesProvider) CreateDatastream(ctx context.Context, item map[string]any) (string, error) {
	id, _ := item["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}

	exists, err := p.store.Exists(ctx, indexDatastreams, docstore.NewQuery().Terms("_id", []string{id}))
	if err != nil {
		return "", err
	}
	if exists {
		return "", cserrors.NewAlreadyExistsError(fmt.Sprintf("a datastream with id %s already exists", id))
	}

	systemID, err := p.resolveSystemLink(ctx, item)
	if err != nil {
		return "", err
	}

	if err := p.resolveDeploymentLink(ctx, item); err != nil {
		return "", err
	}

	schema, _ := item["schema"].(map[string]any)

	doc := &types.Document{
		ID:       id,
		SystemID: systemID,
		Schema:   schema,
		Payload:  item,
	}

	if name, ok := item["name"].(string); ok {
		doc.Name = name
	}
	if description, ok := item["description"].(string); ok {
		doc.Description = description
	}

	if err := p.store.Index(ctx, indexDatastreams, id, doc); err != nil {
		return "", err
	}

	if err := p.db.InsertDatastream(ctx, id); err != nil {
		return "", err
	}

	return id, nil
}

// resolveSystemLink requires the datastream to reference an existing
// system and rewrites the reference to its canonical location.
func (p *timeseriesProvider) resolveSystemLink(ctx context.Context, item map[string]any) (string, error) {
	var systemID string

	if link, ok := item["system@link"].(map[string]any); ok {
		if href, ok := link["href"].(string); ok && href != "" {
			systemID = path.Base(href)
		}
	}

	if systemID == "" {
		systemID, _ = item["system"].(string)
	}

	if systemID == "" {
		return "", cserrors.NewInvalidQueryError("a datastream must reference a system")
	}

	exists, err := p.store.Exists(ctx, "systems", docstore.NewQuery().Terms("_id", []string{systemID}))
	if err != nil {
		return "", err
	}
	if !exists {
		return "", cserrors.NewNotFoundError(fmt.Sprintf("system %s does not exist", systemID))
	}

	item["system@link"] = map[string]any{
		"href": fmt.Sprintf("%s/systems/%s", p.baseURL, systemID),
	}
	delete(item, "system")

	return systemID, nil
}

// resolveDeploymentLink resolves an optional urn reference to a
// deployment by uid.
func (p *timeseriesProvider) resolveDeploymentLink(ctx context.Context, item map[string]any) error {
	link, ok := item["deployment@link"].(map[string]any)
	if !ok {
		return nil
	}

	href, ok := link["href"].(string)
	if !ok || href == "" || strings.HasPrefix(href, "http") {
		return nil
	}

	ids, err := p.store.IDs(ctx, "deployments", docstore.NewQuery().Terms("uid", []string{href}), 1)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return cserrors.NewInvalidQueryError(fmt.Sprintf("deployment reference %s cannot be resolved", href))
	}

	link["uid"] = href
	link["href"] = fmt.Sprintf("%s/deployments/%s", p.baseURL, ids[0])

	return nil
}

// ReplaceSchema swaps the schema of a datastream. The schema is locked
// once observations exist, since stored payloads are only decodable
// under the schema they were written with.
func (p *timeseriesProvider) ReplaceSchema(ctx context.Context, datastreamID string, schema map[string]any) error {
	count, err := p.db.CountObservations(ctx, datastreamID)
	if err != nil {
		return err
	}
	if count > 0 {
		return cserrors.NewConflictError("cannot update or replace the schema of a datastream with associated observations")
	}

	doc, err := p.store.Get(ctx, indexDatastreams, datastreamID)
	if err != nil {
		return err
	}

	doc["schema"] = schema

	// the id key only exists on read results, not in stored documents
	delete(doc, "id")

	if err := p.store.Index(ctx, indexDatastreams, datastreamID, doc); err != nil {
		return err
	}

	p.schemaFormats.Delete(datastreamID)

	return nil
}

func (p *timeseriesProvider) DeleteDatastream(ctx context.Context, id string, cascade bool) error {
	if cascade {
		return cserrors.NewInvalidQueryError("cascading delete of datastreams is not supported")
	}

	if _, err := p.store.Get(ctx, indexDatastreams, id); err != nil {
		return err
	}

	count, err := p.db.CountObservations(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return cserrors.NewConflictError(fmt.Sprintf("datastream %s still has observations", id))
	}

	if err := p.store.Delete(ctx, indexDatastreams, id); err != nil {
		return err
	}

	if err := p.db.DeleteDatastream(ctx, id); err != nil {
		return err
	}

	p.cache.Remove(id)
	p.schemaFormats.Delete(id)

	return nil
}

func (p *timeseriesProvider) CreateObservation(ctx context.Context, item map[string]any) (string, error) {
	datastreamID, _ := item["datastream@id"].(string)
	if datastreamID == "" {
		datastreamID, _ = item["datastream"].(string)
	}
	if datastreamID == "" {
		return "", cserrors.NewInvalidQueryError("an observation must reference a datastream")
	}

	exists, err := p.cache.Exists(ctx, datastreamID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", cserrors.NewNotFoundError(fmt.Sprintf("datastream %s does not exist", datastreamID))
	}

	format, err := p.schemaFormat(ctx, datastreamID)
	if err != nil {
		return "", err
	}

	codec, err := p.codecs.Lookup(format)
	if err != nil {
		return "", cserrors.NewInternalError(err.Error())
	}

	result, ok := item["result"]
	if !ok {
		return "", cserrors.NewValidationError("result is required")
	}

	stored, err := codec.Decode(result)
	if err != nil {
		return "", cserrors.NewValidationError(err.Error())
	}

	resultTimeRaw, _ := item["resultTime"].(string)
	if resultTimeRaw == "" {
		return "", cserrors.NewValidationError("resultTime is required")
	}

	resultTime, err := time.Parse(time.RFC3339, resultTimeRaw)
	if err != nil {
		return "", cserrors.NewValidationError(fmt.Sprintf("unparsable resultTime %q", resultTimeRaw))
	}

	obs := timescale.Observation{
		ID:           uuid.NewString(),
		DatastreamID: datastreamID,
		ResultTime:   resultTime,
		Result:       stored,
	}

	if raw, ok := item["phenomenonTime"].(string); ok && raw != "" {
		phenomenonTime, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", cserrors.NewValidationError(fmt.Sprintf("unparsable phenomenonTime %q", raw))
		}
		obs.PhenomenonTime = &phenomenonTime
	}

	if foi, ok := item["samplingFeature@id"].(string); ok && foi != "" {
		obs.SamplingFeatureID = &foi
	}

	if procedure, ok := item["procedure@link"].(string); ok && procedure != "" {
		obs.ProcedureLink = &procedure
	}

	if parameters, ok := item["parameters"].(map[string]any); ok {
		encoded, err := json.Marshal(parameters)
		if err != nil {
			return "", cserrors.NewValidationError(err.Error())
		}
		s := string(encoded)
		obs.Parameters = &s
	}

	if err := p.db.InsertObservation(ctx, obs); err != nil {
		return "", err
	}

	metrics.ObservationsInserted.Inc()

	return obs.ID, nil
}

// schemaFormat returns the observation format of a datastream, served
// from the per-provider cache when possible.
func (p *timeseriesProvider) schemaFormat(ctx context.Context, datastreamID string) (string, error) {
	if format, ok := p.schemaFormats.Load(datastreamID); ok {
		return format.(string), nil
	}

	doc, err := p.store.Get(ctx, indexDatastreams, datastreamID)
	if err != nil {
		return "", err
	}

	format := formats.FormatJSON
	if schema, ok := doc["schema"].(map[string]any); ok {
		if obsFormat, ok := schema["obsFormat"].(string); ok && obsFormat != "" {
			format = obsFormat
		}
	}

	p.schemaFormats.Store(datastreamID, format)

	return format, nil
}

func (p *timeseriesProvider) QueryObservations(ctx context.Context, qp *params.Parameters) (*types.CollectionResult, error) {
	oq := timescale.NewObservationQuery().
		WithIDs(qp.IDs).
		WithDatastream(qp.Datastream).
		WithTime("phenomenontime", qp.PhenomenonTime).
		WithTime("resulttime", qp.ResultTime).
		WithLimit(qp.Limit).
		WithOffset(qp.Offset)

	metrics.ProviderQueries.WithLabelValues("observations").Inc()

	rows, err := p.db.QueryObservations(ctx, oq)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 && len(qp.IDs) > 0 {
		return nil, cserrors.NewNotFoundError("no such observation")
	}

	result := &types.CollectionResult{
		Items: make([]map[string]any, 0, len(rows)),
		Links: []types.Link{},
	}

	for _, row := range rows {
		format, err := p.schemaFormat(ctx, row.DatastreamID)
		if err != nil {
			return nil, err
		}

		codec, err := p.codecs.Lookup(format)
		if err != nil {
			return nil, cserrors.NewInternalError(err.Error())
		}

		decoded, err := codec.Encode(row.Result)
		if err != nil {
			return nil, cserrors.NewInternalError(err.Error())
		}

		item := map[string]any{
			"id":            row.ID,
			"datastream@id": row.DatastreamID,
			"resultTime":    row.ResultTime.Format(time.RFC3339),
			"result":        decoded,
		}

		if row.PhenomenonTime != nil {
			item["phenomenonTime"] = row.PhenomenonTime.Format(time.RFC3339)
		}

		result.Items = append(result.Items, item)
	}

	// A full page implies more results may exist.
	if len(rows) == oq.Limit() {
		result.Links = append(result.Links, types.Link{
			Title: "next page",
			Rel:   "next",
			Href:  qp.NextLink(),
		})
	}

	return result, nil
}

func (p *timeseriesProvider) DeleteObservation(ctx context.Context, id string) error {
	return p.db.DeleteObservation(ctx, id)
}
