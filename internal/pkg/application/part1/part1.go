// Package part1 implements the metadata provider: Systems,
// Deployments, Procedures, SamplingFeatures and Properties on top of
// the document store.
package part1

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/52north/connected-systems-go/internal/pkg/application/csa"
	"github.com/52north/connected-systems-go/internal/pkg/application/params"
	"github.com/52north/connected-systems-go/internal/pkg/infrastructure/metrics"
	"github.com/52north/connected-systems-go/internal/pkg/infrastructure/storage/docstore"
	cserrors "github.com/52north/connected-systems-go/pkg/csa/errors"
	"github.com/52north/connected-systems-go/pkg/csa/sml"
	"github.com/52north/connected-systems-go/pkg/csa/types"
)

const (
	indexSystems          = "systems"
	indexDeployments      = "deployments"
	indexProcedures       = "procedures"
	indexSamplingFeatures = "sampling_features"
	indexProperties       = "properties"
)

// cascadeFetchLimit bounds how many dependents a single cascade can
// collect per relation.
const cascadeFetchLimit = 10000

// Mappings returns the index bootstrap mappings for the metadata
// collections.
func Mappings() map[string]docstore.M {
	entity := docstore.M{
		"uid":       docstore.M{"type": "keyword"},
		"name":      docstore.M{"type": "text"},
		"validTime": docstore.M{"type": "date_range"},
		"geometry":  docstore.M{"type": "geo_shape"},
		"parent":    docstore.M{"type": "keyword"},
	}

	return map[string]docstore.M{
		indexSystems:     entity,
		indexDeployments: entity,
		indexProcedures: {
			"uid":                docstore.M{"type": "keyword"},
			"name":               docstore.M{"type": "text"},
			"validTime":          docstore.M{"type": "date_range"},
			"controlledProperty": docstore.M{"type": "keyword"},
		},
		indexSamplingFeatures: {
			"uid":                docstore.M{"type": "keyword"},
			"name":               docstore.M{"type": "text"},
			"geometry":           docstore.M{"type": "geo_shape"},
			"system":             docstore.M{"type": "keyword"},
			"controlledProperty": docstore.M{"type": "keyword"},
		},
		indexProperties: {
			"uid":  docstore.M{"type": "keyword"},
			"name": docstore.M{"type": "text"},
		},
	}
}

type metadataProvider struct {
	store   docstore.Store
	baseURL string
}

// New creates the metadata provider.
func New(store docstore.Store, baseURL string) csa.Part1Provider {
	return &metadataProvider{store: store, baseURL: baseURL}
}

func (p *metadataProvider) QuerySystems(ctx context.Context, qp *params.Parameters) (*types.CollectionResult, error) {
	if err := rejectUnsupported("systems",
		filter{"procedure", qp.Procedure},
		filter{"foi", qp.FOI},
		filter{"observedProperty", qp.ObservedProperty},
		filter{"controlledProperty", qp.ControlledProperty},
	); err != nil {
		return nil, err
	}

	q := docstore.NewQuery()
	docstore.ApplyCommon(q, qp)
	docstore.ApplyTemporal(q, "validTime", qp.DateTime)
	docstore.ApplySpatial(q, qp)

	if len(qp.Parent) > 0 {
		q.Terms("parent", qp.Parent)
	} else if len(qp.IDs) == 0 {
		// Top-level listing leaves out subsystems.
		q.ExcludeExists("parent")
	}

	metrics.ProviderQueries.WithLabelValues(indexSystems).Inc()

	return p.store.Search(ctx, indexSystems, q, qp.Offset, qp.Limit, qp.NextLink)
}

func (p *metadataProvider) QueryDeployments(ctx context.Context, qp *params.Parameters) (*types.CollectionResult, error) {
	if err := rejectUnsupported("deployments",
		filter{"foi", qp.FOI},
		filter{"observedProperty", qp.ObservedProperty},
	); err != nil {
		return nil, err
	}

	q := docstore.NewQuery()
	docstore.ApplyCommon(q, qp)
	docstore.ApplyTemporal(q, "validTime", qp.DateTime)
	docstore.ApplySpatial(q, qp)
	q.Terms("linked_system_ids", qp.System)

	metrics.ProviderQueries.WithLabelValues(indexDeployments).Inc()

	return p.store.Search(ctx, indexDeployments, q, qp.Offset, qp.Limit, qp.NextLink)
}

func (p *metadataProvider) QueryProcedures(ctx context.Context, qp *params.Parameters) (*types.CollectionResult, error) {
	if err := rejectUnsupported("procedures",
		filter{"foi", qp.FOI},
		filter{"observedProperty", qp.ObservedProperty},
	); err != nil {
		return nil, err
	}

	q := docstore.NewQuery()
	docstore.ApplyCommon(q, qp)
	docstore.ApplyTemporal(q, "validTime", qp.DateTime)
	q.Terms("controlledProperty", qp.ControlledProperty)

	metrics.ProviderQueries.WithLabelValues(indexProcedures).Inc()

	return p.store.Search(ctx, indexProcedures, q, qp.Offset, qp.Limit, qp.NextLink)
}

func (p *metadataProvider) QuerySamplingFeatures(ctx context.Context, qp *params.Parameters) (*types.CollectionResult, error) {
	if err := rejectUnsupported("sampling features",
		filter{"foi", qp.FOI},
		filter{"observedProperty", qp.ObservedProperty},
	); err != nil {
		return nil, err
	}

	q := docstore.NewQuery()
	docstore.ApplyCommon(q, qp)
	docstore.ApplySpatial(q, qp)
	q.Terms("system", qp.System)
	q.Terms("controlledProperty", qp.ControlledProperty)

	metrics.ProviderQueries.WithLabelValues(indexSamplingFeatures).Inc()

	return p.store.Search(ctx, indexSamplingFeatures, q, qp.Offset, qp.Limit, qp.NextLink)
}

func (p *metadataProvider) QueryProperties(ctx context.Context, qp *params.Parameters) (*types.CollectionResult, error) {
	q := docstore.NewQuery()
	docstore.ApplyCommon(q, qp)

	metrics.ProviderQueries.WithLabelValues(indexProperties).Inc()

	return p.store.Search(ctx, indexProperties, q, qp.Offset, qp.Limit, qp.NextLink)
}

func (p *metadataProvider) Create(ctx context.Context, entityType csa.EntityType, encoding string, item map[string]any) (string, error) {
	index, err := indexOf(entityType)
	if err != nil {
		return "", err
	}

	doc, err := p.normalize(ctx, entityType, encoding, item)
	if err != nil {
		return "", err
	}

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	for _, hook := range p.hooksFor(entityType) {
		if err := hook(ctx, index, doc); err != nil {
			return "", err
		}
	}

	if err := p.store.Index(ctx, index, doc.ID, doc); err != nil {
		return "", err
	}

	return doc.ID, nil
}

// Replace overwrites an existing entity in full. Partial updates are
// not supported for transcoded entities, since patching one encoding
// would desync the other.
func (p *metadataProvider) Replace(ctx context.Context, entityType csa.EntityType, encoding, id string, item map[string]any) error {
	index, err := indexOf(entityType)
	if err != nil {
		return err
	}

	if _, err := p.store.Get(ctx, index, id); err != nil {
		return err
	}

	doc, err := p.normalize(ctx, entityType, encoding, item)
	if err != nil {
		return err
	}

	doc.ID = id

	return p.store.Index(ctx, index, doc.ID, doc)
}

func (p *metadataProvider) Delete(ctx context.Context, entityType csa.EntityType, id string, cascade bool) error {
	index, err := indexOf(entityType)
	if err != nil {
		return err
	}

	if _, err := p.store.Get(ctx, index, id); err != nil {
		return err
	}

	if entityType == csa.Systems {
		if !cascade {
			return p.guardedSystemDelete(ctx, id)
		}
		return p.cascadingSystemDelete(ctx, id)
	}

	return p.store.Delete(ctx, index, id)
}

// guardedSystemDelete rejects the delete while any dependent entity
// still references the system. All guards are existence checks, so no
// partial deletion can have happened on rejection.
func (p *metadataProvider) guardedSystemDelete(ctx context.Context, id string) error {
	guards := []struct {
		index string
		field string
		msg   string
	}{
		{indexSystems, "parent", "system %s still has subsystems"},
		{indexDeployments, "linked_system_ids", "system %s is still referenced by deployments"},
		{indexSamplingFeatures, "system", "system %s still has sampling features"},
	}

	for _, g := range guards {
		exists, err := p.store.Exists(ctx, g.index, docstore.NewQuery().Terms(g.field, []string{id}))
		if err != nil {
			return err
		}
		if exists {
			return cserrors.NewConflictError(fmt.Sprintf(g.msg, id))
		}
	}

	return p.store.Delete(ctx, indexSystems, id)
}

// cascadingSystemDelete removes the system together with its
// subsystems (recursively) and sampling features, and severs the
// deployment links pointing at it. Any failure fails the whole
// cascade.
func (p *metadataProvider) cascadingSystemDelete(ctx context.Context, id string) error {
	subsystems, err := p.store.IDs(ctx, indexSystems,
		docstore.NewQuery().Terms("parent", []string{id}), cascadeFetchLimit)
	if err != nil {
		return err
	}

	features, err := p.store.IDs(ctx, indexSamplingFeatures,
		docstore.NewQuery().Terms("system", []string{id}), cascadeFetchLimit)
	if err != nil {
		return err
	}

	deployments, err := p.store.IDs(ctx, indexDeployments,
		docstore.NewQuery().Terms("linked_system_ids", []string{id}), cascadeFetchLimit)
	if err != nil {
		return err
	}

	g, groupCtx := errgroup.WithContext(ctx)

	for _, subsystem := range subsystems {
		g.Go(func() error {
			return p.Delete(groupCtx, csa.Systems, subsystem, true)
		})
	}

	for _, feature := range features {
		g.Go(func() error {
			return p.store.Delete(groupCtx, indexSamplingFeatures, feature)
		})
	}

	for _, deployment := range deployments {
		g.Go(func() error {
			return p.severDeploymentLink(groupCtx, deployment, id)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return p.store.Delete(ctx, indexSystems, id)
}

func (p *metadataProvider) severDeploymentLink(ctx context.Context, deploymentID, systemID string) error {
	doc, err := p.store.Get(ctx, indexDeployments, deploymentID)
	if err != nil {
		return err
	}

	linked, _ := doc["linked_system_ids"].([]any)
	remaining := make([]any, 0, len(linked))

	for _, l := range linked {
		if l != systemID {
			remaining = append(remaining, l)
		}
	}

	doc["linked_system_ids"] = remaining

	// the id key only exists on read results, not in stored documents
	delete(doc, "id")

	return p.store.Index(ctx, indexDeployments, deploymentID, doc)
}

func (p *metadataProvider) normalize(ctx context.Context, entityType csa.EntityType, encoding string, item map[string]any) (*types.Document, error) {
	switch entityType {
	case csa.Systems:
		return sml.Normalize(ctx, sml.KindSystem, encoding, item)
	case csa.Deployments:
		return sml.Normalize(ctx, sml.KindDeployment, encoding, item)
	case csa.Procedures:
		return sml.Normalize(ctx, sml.KindProcedure, encoding, item)
	case csa.SamplingFeatures, csa.Properties:
		return normalizePassthrough(entityType, item)
	}

	return nil, cserrors.NewInvalidQueryError(fmt.Sprintf("cannot create entities of type %s", entityType))
}

// normalizePassthrough extracts the indexed fields from entities that
// are stored as-is (sampling features and property definitions).
func normalizePassthrough(entityType csa.EntityType, item map[string]any) (*types.Document, error) {
	doc := &types.Document{}

	if id, ok := item["id"].(string); ok {
		doc.ID = id
	}

	properties, _ := item["properties"].(map[string]any)

	str := func(key string) string {
		if v, ok := item[key].(string); ok {
			return v
		}
		if v, ok := properties[key].(string); ok {
			return v
		}
		return ""
	}

	doc.UID = str("uid")
	if doc.UID == "" {
		doc.UID = str("definition")
	}

	doc.Name = str("name")
	if doc.Name == "" {
		doc.Name = str("label")
	}

	doc.Description = str("description")
	doc.SystemID = str("system")
	doc.Geometry = item["geometry"]

	if entityType == csa.SamplingFeatures {
		doc.GeoJSON = item
	} else {
		doc.Payload = item
	}

	return doc, nil
}

func (p *metadataProvider) hooksFor(entityType csa.EntityType) []createHook {
	hooks := []createHook{p.duplicateGuard}

	switch entityType {
	case csa.Systems:
		hooks = append(hooks, p.linkProcedure, p.checkParent)
	case csa.Deployments:
		hooks = append(hooks, p.linkSystems)
	}

	return hooks
}

func indexOf(entityType csa.EntityType) (string, error) {
	switch entityType {
	case csa.Systems:
		return indexSystems, nil
	case csa.Deployments:
		return indexDeployments, nil
	case csa.Procedures:
		return indexProcedures, nil
	case csa.SamplingFeatures:
		return indexSamplingFeatures, nil
	case csa.Properties:
		return indexProperties, nil
	}
	return "", cserrors.NewInvalidQueryError(fmt.Sprintf("unknown entity type %s", entityType))
}

type filter struct {
	name   string
	values []string
}

func rejectUnsupported(collection string, filters ...filter) error {
	for _, f := range filters {
		if len(f.values) > 0 {
			return cserrors.NewInvalidQueryError(
				fmt.Sprintf("filtering %s by %s is not supported", collection, f.name),
			)
		}
	}
	return nil
}
