package main

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	yaml "gopkg.in/yaml.v2"

	"github.com/52north/connected-systems-go/internal/pkg/infrastructure/storage/docstore"
	"github.com/52north/connected-systems-go/internal/pkg/infrastructure/storage/timescale"
)

type Config struct {
	ServicePort string `yaml:"servicePort"`
	BaseURL     string `yaml:"baseURL"`

	DocStore  docstore.Config  `yaml:"docstore"`
	Timescale timescale.Config `yaml:"timescale"`
}

// LoadConfiguration assembles the service configuration: defaults,
// overlaid by an optional yaml file, overlaid by environment variables.
func LoadConfiguration(ctx context.Context) (*Config, error) {
	cfg := &Config{
		ServicePort: "8080",
		BaseURL:     "http://localhost:8080",
		DocStore: docstore.Config{
			Host: "localhost",
			Port: "9200",
		},
		Timescale: timescale.Config{
			Host:         "localhost",
			Port:         "5432",
			DBName:       "observations",
			SSLMode:      "disable",
			PoolMinConns: 2,
			PoolMaxConns: 10,
		},
	}

	if path := env.GetVariableOrDefault(ctx, "CONFIG_FILE", ""); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := cfg.overlay(f); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvironment(ctx)

	return cfg, nil
}

func (cfg *Config) overlay(data io.Reader) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(buf, cfg)
}

func (cfg *Config) applyEnvironment(ctx context.Context) {
	cfg.ServicePort = env.GetVariableOrDefault(ctx, "SERVICE_PORT", cfg.ServicePort)
	cfg.BaseURL = env.GetVariableOrDefault(ctx, "BASE_URL", cfg.BaseURL)

	cfg.DocStore.Host = env.GetVariableOrDefault(ctx, "ELASTIC_HOST", cfg.DocStore.Host)
	cfg.DocStore.Port = env.GetVariableOrDefault(ctx, "ELASTIC_PORT", cfg.DocStore.Port)
	cfg.DocStore.User = env.GetVariableOrDefault(ctx, "ELASTIC_USER", cfg.DocStore.User)
	cfg.DocStore.Password = env.GetVariableOrDefault(ctx, "ELASTIC_PASSWORD", cfg.DocStore.Password)
	cfg.DocStore.VerifyCerts = boolEnv(ctx, "ELASTIC_VERIFY_CERTS", cfg.DocStore.VerifyCerts)

	cfg.Timescale.Host = env.GetVariableOrDefault(ctx, "POSTGRES_HOST", cfg.Timescale.Host)
	cfg.Timescale.Port = env.GetVariableOrDefault(ctx, "POSTGRES_PORT", cfg.Timescale.Port)
	cfg.Timescale.User = env.GetVariableOrDefault(ctx, "POSTGRES_USER", cfg.Timescale.User)
	cfg.Timescale.Password = env.GetVariableOrDefault(ctx, "POSTGRES_PASSWORD", cfg.Timescale.Password)
	cfg.Timescale.DBName = env.GetVariableOrDefault(ctx, "POSTGRES_DBNAME", cfg.Timescale.DBName)
	cfg.Timescale.SSLMode = env.GetVariableOrDefault(ctx, "POSTGRES_SSLMODE", cfg.Timescale.SSLMode)
	cfg.Timescale.PoolMinConns = intEnv(ctx, "POSTGRES_POOL_MIN_CONNS", cfg.Timescale.PoolMinConns)
	cfg.Timescale.PoolMaxConns = intEnv(ctx, "POSTGRES_POOL_MAX_CONNS", cfg.Timescale.PoolMaxConns)
	cfg.Timescale.DropTables = boolEnv(ctx, "POSTGRES_DROP_TABLES", cfg.Timescale.DropTables)
}

func intEnv(ctx context.Context, name string, current int) int {
	value := env.GetVariableOrDefault(ctx, name, strconv.Itoa(current))
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return current
}

func boolEnv(ctx context.Context, name string, current bool) bool {
	value := env.GetVariableOrDefault(ctx, name, strconv.FormatBool(current))
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return current
}
