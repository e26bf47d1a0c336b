package main

import (
	"context"
	"net/http"
	"os"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"

	"github.com/52north/connected-systems-go/internal/pkg/application/csa"
	"github.com/52north/connected-systems-go/internal/pkg/application/part1"
	"github.com/52north/connected-systems-go/internal/pkg/application/part2"
	"github.com/52north/connected-systems-go/internal/pkg/infrastructure/router"
	"github.com/52north/connected-systems-go/internal/pkg/infrastructure/storage/docstore"
	"github.com/52north/connected-systems-go/internal/pkg/infrastructure/storage/timescale"
	api "github.com/52north/connected-systems-go/internal/pkg/presentation/api/csa"
)

const serviceName string = "connected-systems-api"

func main() {
	serviceVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion, "json")
	defer cleanup()

	cfg, err := LoadConfiguration(ctx)
	if err != nil {
		log.Error("failed to load configuration", "err", err.Error())
		os.Exit(1)
	}

	store, err := docstore.Connect(ctx, cfg.DocStore)
	if err != nil {
		log.Error("failed to connect to document store", "err", err.Error())
		os.Exit(1)
	}

	mappings := part1.Mappings()
	for index, mapping := range part2.Mappings() {
		mappings[index] = mapping
	}

	if err := store.EnsureIndices(ctx, mappings); err != nil {
		log.Error("failed to bootstrap indices", "err", err.Error())
		os.Exit(1)
	}

	db, err := timescale.Connect(ctx, cfg.Timescale)
	if err != nil {
		log.Error("failed to connect to time-series store", "err", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Setup(ctx, cfg.Timescale.DropTables); err != nil {
		log.Error("failed to set up time-series schema", "err", err.Error())
		os.Exit(1)
	}

	validator := csa.NewValidator()
	metadata := part1.New(store, cfg.BaseURL)
	timeseries := part2.New(store, db, cfg.BaseURL)

	r := router.New(serviceName)

	if err := api.RegisterHandlers(ctx, r, validator, metadata, timeseries); err != nil {
		log.Error("failed to register handlers", "err", err.Error())
		os.Exit(1)
	}

	log.Info("starting to listen for connections", "port", cfg.ServicePort)

	if err := http.ListenAndServe(":"+cfg.ServicePort, r); err != nil {
		log.Error("failed to listen for connections", "err", err.Error())
		os.Exit(1)
	}
}
