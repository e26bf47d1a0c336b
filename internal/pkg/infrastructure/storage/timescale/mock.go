package timescale

import (
	"context"
)

// StoreMock is a hand-written mock of Store for provider tests.
type StoreMock struct {
	InsertDatastreamFunc  func(ctx context.Context, id string) error
	DeleteDatastreamFunc  func(ctx context.Context, id string) error
	RollupsFunc           func(ctx context.Context, ids []string) (map[string]Rollup, error)
	InsertObservationFunc func(ctx context.Context, obs Observation) error
	CountObservationsFunc func(ctx context.Context, datastreamID string) (int64, error)
	QueryObservationsFunc func(ctx context.Context, q *ObservationQuery) ([]Observation, error)
	DeleteObservationFunc func(ctx context.Context, id string) error
}

func (m *StoreMock) InsertDatastream(ctx context.Context, id string) error {
	return m.InsertDatastreamFunc(ctx, id)
}

func (m *StoreMock) DeleteDatastream(ctx context.Context, id string) error {
	return m.DeleteDatastreamFunc(ctx, id)
}

func (m *StoreMock) Rollups(ctx context.Context, ids []string) (map[string]Rollup, error) {
	return m.RollupsFunc(ctx, ids)
}

func (m *StoreMock) InsertObservation(ctx context.Context, obs Observation) error {
	return m.InsertObservationFunc(ctx, obs)
}

func (m *StoreMock) CountObservations(ctx context.Context, datastreamID string) (int64, error) {
	return m.CountObservationsFunc(ctx, datastreamID)
}

func (m *StoreMock) QueryObservations(ctx context.Context, q *ObservationQuery) ([]Observation, error) {
	return m.QueryObservationsFunc(ctx, q)
}

func (m *StoreMock) DeleteObservation(ctx context.Context, id string) error {
	return m.DeleteObservationFunc(ctx, id)
}
