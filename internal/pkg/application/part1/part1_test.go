package part1

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"sync"
	"testing"

	"github.com/matryer/is"

	"github.com/52north/connected-systems-go/internal/pkg/application/csa"
	"github.com/52north/connected-systems-go/internal/pkg/application/params"
	"github.com/52north/connected-systems-go/internal/pkg/infrastructure/storage/docstore"
	cserrors "github.com/52north/connected-systems-go/pkg/csa/errors"
	"github.com/52north/connected-systems-go/pkg/csa/sml"
	"github.com/52north/connected-systems-go/pkg/csa/types"
)

func TestQuerySystemsRejectsUnsupportedFilters(t *testing.T) {
	is := is.New(t)
	p := New(&docstore.StoreMock{}, "http://api.local")

	qp, err := params.Parse("/systems", url.Values{"foi": []string{"sf-1"}}, params.Systems...)
	is.NoErr(err)

	_, err = p.QuerySystems(context.Background(), qp)
	is.True(errors.Is(err, cserrors.ErrInvalidQuery))
}

func TestQuerySystemsExcludesSubsystemsByDefault(t *testing.T) {
	is := is.New(t)

	var captured *docstore.Query
	store := &docstore.StoreMock{
		SearchFunc: func(ctx context.Context, index string, q *docstore.Query, offset, limit int, nextURL func() string) (*types.CollectionResult, error) {
			captured = q
			return &types.CollectionResult{}, nil
		},
	}

	p := New(store, "http://api.local")

	qp, err := params.Parse("/systems", url.Values{}, params.Systems...)
	is.NoErr(err)

	_, err = p.QuerySystems(context.Background(), qp)
	is.NoErr(err)

	boolQuery := captured.Body(0, 10)["query"].(docstore.M)["bool"].(docstore.M)
	mustNot := boolQuery["must_not"].([]docstore.M)
	is.Equal(mustNot[0]["exists"].(docstore.M)["field"], "parent")
}

func TestQuerySystemsWithParentIncludesSubsystems(t *testing.T) {
	is := is.New(t)

	var captured *docstore.Query
	store := &docstore.StoreMock{
		SearchFunc: func(ctx context.Context, index string, q *docstore.Query, offset, limit int, nextURL func() string) (*types.CollectionResult, error) {
			captured = q
			return &types.CollectionResult{}, nil
		},
	}

	p := New(store, "http://api.local")

	qp, err := params.Parse("/systems", url.Values{"parent": []string{"sys-1"}}, params.Systems...)
	is.NoErr(err)

	_, err = p.QuerySystems(context.Background(), qp)
	is.NoErr(err)

	is.Equal(termsOf(captured, "parent"), []string{"sys-1"})

	boolQuery := captured.Body(0, 10)["query"].(docstore.M)["bool"].(docstore.M)
	_, hasMustNot := boolQuery["must_not"]
	is.True(!hasMustNot)
}

func TestQuerySamplingFeaturesFiltersByControlledProperty(t *testing.T) {
	is := is.New(t)

	var captured *docstore.Query
	store := &docstore.StoreMock{
		SearchFunc: func(ctx context.Context, index string, q *docstore.Query, offset, limit int, nextURL func() string) (*types.CollectionResult, error) {
			captured = q
			return &types.CollectionResult{}, nil
		},
	}

	p := New(store, "http://api.local")

	qp, err := params.Parse("/samplingFeatures", url.Values{"controlledProperty": []string{"temperature"}}, params.SamplingFeatures...)
	is.NoErr(err)

	_, err = p.QuerySamplingFeatures(context.Background(), qp)
	is.NoErr(err)

	is.Equal(termsOf(captured, "controlledProperty"), []string{"temperature"})
}

func TestQueryProceduresFiltersByControlledProperty(t *testing.T) {
	is := is.New(t)

	var captured *docstore.Query
	store := &docstore.StoreMock{
		SearchFunc: func(ctx context.Context, index string, q *docstore.Query, offset, limit int, nextURL func() string) (*types.CollectionResult, error) {
			captured = q
			return &types.CollectionResult{}, nil
		},
	}

	p := New(store, "http://api.local")

	qp, err := params.Parse("/procedures", url.Values{"controlledProperty": []string{"humidity"}}, params.Procedures...)
	is.NoErr(err)

	_, err = p.QueryProcedures(context.Background(), qp)
	is.NoErr(err)

	is.Equal(termsOf(captured, "controlledProperty"), []string{"humidity"})
}

func TestCreateGeneratesAnIDWhenMissing(t *testing.T) {
	is := is.New(t)

	indexedID := ""
	store := &docstore.StoreMock{
		ExistsFunc: func(ctx context.Context, index string, q *docstore.Query) (bool, error) {
			return false, nil
		},
		IndexFunc: func(ctx context.Context, index, id string, doc any) error {
			indexedID = id
			return nil
		},
	}

	p := New(store, "http://api.local")

	id, err := p.Create(context.Background(), csa.Systems, sml.EncodingSensorML, map[string]any{
		"type":     "PhysicalSystem",
		"uniqueId": "urn:x-acme:systems:ws42",
		"label":    "Weather Station 42",
	})
	is.NoErr(err)

	is.Equal(len(id), 36) // server assigned uuid
	is.Equal(id, indexedID)
}

func TestCreateRejectsDuplicateUID(t *testing.T) {
	is := is.New(t)

	indexed := false
	store := &docstore.StoreMock{
		ExistsFunc: func(ctx context.Context, index string, q *docstore.Query) (bool, error) {
			// only the uid is taken
			return !q.HasIDFilter(), nil
		},
		IndexFunc: func(ctx context.Context, index, id string, doc any) error {
			indexed = true
			return nil
		},
	}

	p := New(store, "http://api.local")

	_, err := p.Create(context.Background(), csa.Systems, sml.EncodingSensorML, map[string]any{
		"type":     "PhysicalSystem",
		"uniqueId": "urn:x-acme:systems:taken",
		"label":    "Duplicate",
	})

	is.True(errors.Is(err, cserrors.ErrAlreadyExists))
	is.True(!indexed)
}

func TestCreateWithUnknownParentAbortsWithNoWrite(t *testing.T) {
	is := is.New(t)

	indexed := false
	store := &docstore.StoreMock{
		ExistsFunc: func(ctx context.Context, index string, q *docstore.Query) (bool, error) {
			return false, nil
		},
		IndexFunc: func(ctx context.Context, index, id string, doc any) error {
			indexed = true
			return nil
		},
	}

	p := New(store, "http://api.local")

	_, err := p.Create(context.Background(), csa.Systems, sml.EncodingSensorML, map[string]any{
		"type":     "PhysicalSystem",
		"uniqueId": "urn:x-acme:systems:orphan",
		"label":    "Orphan",
		"parent":   "sys-missing",
	})

	is.True(errors.Is(err, cserrors.ErrInvalidQuery))
	is.True(!indexed)
}

func TestReplaceUnknownEntityFails(t *testing.T) {
	is := is.New(t)

	store := &docstore.StoreMock{
		GetFunc: func(ctx context.Context, index, id string) (map[string]any, error) {
			return nil, cserrors.NewNotFoundError("no such entity")
		},
	}

	p := New(store, "http://api.local")

	err := p.Replace(context.Background(), csa.Systems, sml.EncodingSensorML, "sys-missing", map[string]any{
		"type":     "PhysicalSystem",
		"uniqueId": "urn:x-acme:systems:ws42",
	})

	is.True(errors.Is(err, cserrors.ErrNotFound))
}

func TestDeleteWithoutCascadeIsGuarded(t *testing.T) {
	is := is.New(t)

	deleted := false
	store := &docstore.StoreMock{
		GetFunc: func(ctx context.Context, index, id string) (map[string]any, error) {
			return map[string]any{"id": id}, nil
		},
		ExistsFunc: func(ctx context.Context, index string, q *docstore.Query) (bool, error) {
			return index == indexDeployments, nil
		},
		DeleteFunc: func(ctx context.Context, index, id string) error {
			deleted = true
			return nil
		},
	}

	p := New(store, "http://api.local")

	err := p.Delete(context.Background(), csa.Systems, "sys-1", false)
	is.True(errors.Is(err, cserrors.ErrConflict))
	is.True(!deleted)
}

func TestCascadeDeletesDependentsAndSeversLinks(t *testing.T) {
	is := is.New(t)

	var mu sync.Mutex
	deleted := []string{}
	var severedLinks []any
	reindexedWithID := false

	store := &docstore.StoreMock{
		GetFunc: func(ctx context.Context, index, id string) (map[string]any, error) {
			if index == indexDeployments {
				return map[string]any{"id": id, "linked_system_ids": []any{"sys-1", "sys-2"}}, nil
			}
			return map[string]any{"id": id}, nil
		},
		IDsFunc: func(ctx context.Context, index string, q *docstore.Query, limit int) ([]string, error) {
			switch index {
			case indexSystems:
				if hasTerm(q, "parent", "sys-1") {
					return []string{"sub-1"}, nil
				}
			case indexSamplingFeatures:
				if hasTerm(q, "system", "sys-1") {
					return []string{"sf-1"}, nil
				}
			case indexDeployments:
				if hasTerm(q, "linked_system_ids", "sys-1") {
					return []string{"dep-1"}, nil
				}
			}
			return nil, nil
		},
		DeleteFunc: func(ctx context.Context, index, id string) error {
			mu.Lock()
			defer mu.Unlock()
			deleted = append(deleted, index+"/"+id)
			return nil
		},
		IndexFunc: func(ctx context.Context, index, id string, doc any) error {
			mu.Lock()
			defer mu.Unlock()
			m := doc.(map[string]any)
			severedLinks = m["linked_system_ids"].([]any)
			_, reindexedWithID = m["id"]
			return nil
		},
	}

	p := New(store, "http://api.local")

	err := p.Delete(context.Background(), csa.Systems, "sys-1", true)
	is.NoErr(err)

	sort.Strings(deleted)
	is.Equal(deleted, []string{
		"sampling_features/sf-1",
		"systems/sub-1",
		"systems/sys-1",
	})

	is.Equal(severedLinks, []any{"sys-2"})
	is.True(!reindexedWithID) // read results carry an id key, stored documents must not
}

func termsOf(q *docstore.Query, field string) []string {
	boolQuery, ok := q.Body(0, 1)["query"].(docstore.M)["bool"].(docstore.M)
	if !ok {
		return nil
	}

	filters, _ := boolQuery["filter"].([]docstore.M)
	for _, f := range filters {
		if terms, ok := f["terms"].(docstore.M); ok {
			if values, ok := terms[field].([]string); ok {
				return values
			}
		}
	}

	return nil
}

func hasTerm(q *docstore.Query, field, value string) bool {
	for _, v := range termsOf(q, field) {
		if v == value {
			return true
		}
	}
	return false
}
