package csa

import (
	"context"

	"github.com/52north/connected-systems-go/internal/pkg/application/params"
	"github.com/52north/connected-systems-go/pkg/csa/types"
)

type Part1ProviderMock struct {
	QuerySystemsFunc          func(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)
	QueryDeploymentsFunc      func(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)
	QueryProceduresFunc       func(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)
	QuerySamplingFeaturesFunc func(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)
	QueryPropertiesFunc       func(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)
	CreateFunc                func(ctx context.Context, entityType EntityType, encoding string, item map[string]any) (string, error)
	ReplaceFunc               func(ctx context.Context, entityType EntityType, encoding, id string, item map[string]any) error
	DeleteFunc                func(ctx context.Context, entityType EntityType, id string, cascade bool) error
}

func (m *Part1ProviderMock) QuerySystems(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error) {
	return m.QuerySystemsFunc(ctx, p)
}

func (m *Part1ProviderMock) QueryDeployments(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error) {
	return m.QueryDeploymentsFunc(ctx, p)
}

func (m *Part1ProviderMock) QueryProcedures(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error) {
	return m.QueryProceduresFunc(ctx, p)
}

func (m *Part1ProviderMock) QuerySamplingFeatures(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error) {
	return m.QuerySamplingFeaturesFunc(ctx, p)
}

func (m *Part1ProviderMock) QueryProperties(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error) {
	return m.QueryPropertiesFunc(ctx, p)
}

func (m *Part1ProviderMock) Create(ctx context.Context, entityType EntityType, encoding string, item map[string]any) (string, error) {
	return m.CreateFunc(ctx, entityType, encoding, item)
}

func (m *Part1ProviderMock) Replace(ctx context.Context, entityType EntityType, encoding, id string, item map[string]any) error {
	return m.ReplaceFunc(ctx, entityType, encoding, id, item)
}

func (m *Part1ProviderMock) Delete(ctx context.Context, entityType EntityType, id string, cascade bool) error {
	return m.DeleteFunc(ctx, entityType, id, cascade)
}

type Part2ProviderMock struct {
	QueryDatastreamsFunc  func(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)
	QueryObservationsFunc func(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)
	CreateDatastreamFunc  func(ctx context.Context, item map[string]any) (string, error)
	CreateObservationFunc func(ctx context.Context, item map[string]any) (string, error)
	ReplaceSchemaFunc     func(ctx context.Context, datastreamID string, schema map[string]any) error
	DeleteDatastreamFunc  func(ctx context.Context, id string, cascade bool) error
	DeleteObservationFunc func(ctx context.Context, id string) error
}

func (m *Part2ProviderMock) QueryDatastreams(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error) {
	return m.QueryDatastreamsFunc(ctx, p)
}

func (m *Part2ProviderMock) QueryObservations(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error) {
	return m.QueryObservationsFunc(ctx, p)
}

func (m *Part2ProviderMock) CreateDatastream(ctx context.Context, item map[string]any) (string, error) {
	return m.CreateDatastreamFunc(ctx, item)
}

func (m *Part2ProviderMock) CreateObservation(ctx context.Context, item map[string]any) (string, error) {
	return m.CreateObservationFunc(ctx, item)
}

func (m *Part2ProviderMock) ReplaceSchema(ctx context.Context, datastreamID string, schema map[string]any) error {
	return m.ReplaceSchemaFunc(ctx, datastreamID, schema)
}

func (m *Part2ProviderMock) DeleteDatastream(ctx context.Context, id string, cascade bool) error {
	return m.DeleteDatastreamFunc(ctx, id, cascade)
}

func (m *Part2ProviderMock) DeleteObservation(ctx context.Context, id string) error {
	return m.DeleteObservationFunc(ctx, id)
}
