package docstore

import (
	"context"

	"github.com/52north/connected-systems-go/pkg/csa/types"
)

// StoreMock is a hand-written mock of Store for provider tests.
type StoreMock struct {
	SearchFunc        func(ctx context.Context, index string, q *Query, offset, limit int, nextURL func() string) (*types.CollectionResult, error)
	IndexFunc         func(ctx context.Context, index, id string, doc any) error
	GetFunc           func(ctx context.Context, index, id string) (map[string]any, error)
	DeleteFunc        func(ctx context.Context, index, id string) error
	ExistsFunc        func(ctx context.Context, index string, q *Query) (bool, error)
	IDsFunc           func(ctx context.Context, index string, q *Query, limit int) ([]string, error)
	EnsureIndicesFunc func(ctx context.Context, mappings map[string]M) error
}

func (m *StoreMock) Search(ctx context.Context, index string, q *Query, offset, limit int, nextURL func() string) (*types.CollectionResult, error) {
	return m.SearchFunc(ctx, index, q, offset, limit, nextURL)
}

func (m *StoreMock) Index(ctx context.Context, index, id string, doc any) error {
	return m.IndexFunc(ctx, index, id, doc)
}

func (m *StoreMock) Get(ctx context.Context, index, id string) (map[string]any, error) {
	return m.GetFunc(ctx, index, id)
}

func (m *StoreMock) Delete(ctx context.Context, index, id string) error {
	return m.DeleteFunc(ctx, index, id)
}

func (m *StoreMock) Exists(ctx context.Context, index string, q *Query) (bool, error) {
	return m.ExistsFunc(ctx, index, q)
}

func (m *StoreMock) IDs(ctx context.Context, index string, q *Query, limit int) ([]string, error) {
	return m.IDsFunc(ctx, index, q, limit)
}

func (m *StoreMock) EnsureIndices(ctx context.Context, mappings map[string]M) error {
	return m.EnsureIndicesFunc(ctx, mappings)
}
