package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ObservationsInserted counts successfully persisted observations.
	ObservationsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csa_observations_inserted_total",
		Help: "Total number of observations inserted into the time-series store",
	})

	// ProviderQueries counts collection queries per collection name.
	ProviderQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csa_provider_queries_total",
		Help: "Total number of collection queries served, by collection",
	}, []string{"collection"})
)
