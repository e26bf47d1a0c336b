// Package csa defines the provider interfaces the presentation layer
// depends on.
package csa

import (
	"context"

	"github.com/52north/connected-systems-go/internal/pkg/application/params"
	"github.com/52north/connected-systems-go/pkg/csa/types"
)

type EntityType int

const (
	Systems EntityType = iota
	Deployments
	Procedures
	SamplingFeatures
	Properties
	Datastreams
	Observations
)

func (et EntityType) String() string {
	switch et {
	case Systems:
		return "systems"
	case Deployments:
		return "deployments"
	case Procedures:
		return "procedures"
	case SamplingFeatures:
		return "samplingFeatures"
	case Properties:
		return "properties"
	case Datastreams:
		return "datastreams"
	case Observations:
		return "observations"
	}
	return "unknown"
}

// Validator checks an incoming payload against the schema of its
// entity type and encoding before any write happens. A non-nil error
// aborts the write with no store mutation.
type Validator interface {
	Validate(ctx context.Context, entityType EntityType, encoding string, item map[string]any) error
}

// Part1Provider serves the document store backed metadata collections.
type Part1Provider interface {
	QuerySystems(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)
	QueryDeployments(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)
	QueryProcedures(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)
	QuerySamplingFeatures(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)
	QueryProperties(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)

	Create(ctx context.Context, entityType EntityType, encoding string, item map[string]any) (string, error)
	Replace(ctx context.Context, entityType EntityType, encoding, id string, item map[string]any) error
	Delete(ctx context.Context, entityType EntityType, id string, cascade bool) error
}

// Part2Provider serves datastreams and observations on top of the
// document store and the time-series store.
type Part2Provider interface {
	QueryDatastreams(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)
	QueryObservations(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)

	CreateDatastream(ctx context.Context, item map[string]any) (string, error)
	CreateObservation(ctx context.Context, item map[string]any) (string, error)

	ReplaceSchema(ctx context.Context, datastreamID string, schema map[string]any) error

	DeleteDatastream(ctx context.Context, id string, cascade bool) error
	DeleteObservation(ctx context.Context, id string) error
}
