package timescale

import (
	"context"
	"fmt"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/jackc/pgx/v5/pgxpool"

	cserrors "github.com/52north/connected-systems-go/pkg/csa/errors"
)

// Config carries the connection and pool settings for the time-series
// store.
type Config struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	PoolMinConns int  `yaml:"poolMinConns"`
	PoolMaxConns int  `yaml:"poolMaxConns"`
	DropTables   bool `yaml:"dropTables"`
}

func (c Config) ConnStr() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_min_conns=%d&pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
		c.PoolMinConns, c.PoolMaxConns,
	)
}

// Observation is one row of the observations hypertable.
type Observation struct {
	ID             string
	DatastreamID   string
	ResultTime     time.Time
	PhenomenonTime *time.Time
	Result         []byte

	SamplingFeatureID *string
	ProcedureLink     *string
	Parameters        *string
}

// Rollup holds the per-datastream aggregate timestamps maintained by
// the insert trigger.
type Rollup struct {
	ResultTimeStart     *time.Time
	ResultTimeEnd       *time.Time
	PhenomenonTimeStart *time.Time
	PhenomenonTimeEnd   *time.Time
}

// Store is the time-series boundary the Part 2 provider depends on.
type Store interface {
	InsertDatastream(ctx context.Context, id string) error
	DeleteDatastream(ctx context.Context, id string) error
	Rollups(ctx context.Context, ids []string) (map[string]Rollup, error)

	InsertObservation(ctx context.Context, obs Observation) error
	CountObservations(ctx context.Context, datastreamID string) (int64, error)
	QueryObservations(ctx context.Context, q *ObservationQuery) ([]Observation, error)
	DeleteObservation(ctx context.Context, id string) error
}

// TimescaleDB wraps a bounded pgx pool. Every unit of work acquires a
// connection from the pool for its own scope.
type TimescaleDB struct {
	pool *pgxpool.Pool
}

// Connect creates the pool and verifies connectivity with a ping.
func Connect(ctx context.Context, cfg Config) (*TimescaleDB, error) {
	log := logging.GetFromContext(ctx)

	pool, err := pgxpool.New(ctx, cfg.ConnStr())
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	log.Info("connected to time-series store", "host", cfg.Host, "database", cfg.DBName)

	return &TimescaleDB{pool: pool}, nil
}

func (db *TimescaleDB) Close() {
	db.pool.Close()
}

var dropDDL = []string{
	`DROP TABLE IF EXISTS observations CASCADE`,
	`DROP TABLE IF EXISTS datastreams CASCADE`,
}

var setupDDL = []string{
	`CREATE EXTENSION IF NOT EXISTS POSTGIS`,
	`CREATE TABLE IF NOT EXISTS observations (
		uuid UUID NOT NULL,
		resulttime TIMESTAMPTZ NOT NULL,
		phenomenontime TIMESTAMPTZ,
		datastream_id TEXT NOT NULL,
		result BYTEA NOT NULL,
		sampling_feature_id TEXT,
		procedure_link TEXT,
		parameters TEXT,
		PRIMARY KEY (uuid, resulttime)
	)`,
	`SELECT create_hypertable('observations', by_range('resulttime'), if_not_exists => TRUE)`,
	`CREATE UNLOGGED TABLE IF NOT EXISTS datastreams (
		id TEXT PRIMARY KEY,
		resulttime_start TIMESTAMPTZ,
		resulttime_end TIMESTAMPTZ,
		phenomenontime_start TIMESTAMPTZ,
		phenomenontime_end TIMESTAMPTZ
	)`,
	`CREATE OR REPLACE FUNCTION update_ds_timestamps()
	RETURNS TRIGGER LANGUAGE plpgsql AS $$
	BEGIN
		UPDATE datastreams SET
			resulttime_start = LEAST(resulttime_start, NEW.resulttime),
			resulttime_end = GREATEST(resulttime_end, NEW.resulttime),
			phenomenontime_start = LEAST(phenomenontime_start, NEW.phenomenontime),
			phenomenontime_end = GREATEST(phenomenontime_end, NEW.phenomenontime)
		WHERE id = NEW.datastream_id;
		RETURN NEW;
	END;
	$$`,
	`CREATE OR REPLACE TRIGGER observation_inserted
		AFTER INSERT ON observations
		FOR EACH ROW EXECUTE FUNCTION update_ds_timestamps()`,
}

// Setup runs the schema bootstrap inside a single transaction so a
// partial failure leaves nothing behind.
func (db *TimescaleDB) Setup(ctx context.Context, dropTables bool) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin setup transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	statements := setupDDL
	if dropTables {
		statements = append(dropDDL, setupDDL...)
	}

	for _, ddl := range statements {
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("setup statement failed: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (db *TimescaleDB) InsertDatastream(ctx context.Context, id string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO datastreams (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id)
	if err != nil {
		return cserrors.NewInternalError(err.Error())
	}
	return nil
}

func (db *TimescaleDB) DeleteDatastream(ctx context.Context, id string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM datastreams WHERE id = $1`, id)
	if err != nil {
		return cserrors.NewInternalError(err.Error())
	}
	return nil
}

// Rollups returns the aggregate timestamps for the given datastreams.
// Streams without observations are present with all-nil bounds.
func (db *TimescaleDB) Rollups(ctx context.Context, ids []string) (map[string]Rollup, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, resulttime_start, resulttime_end, phenomenontime_start, phenomenontime_end
		 FROM datastreams WHERE id = any($1)`, ids)
	if err != nil {
		return nil, cserrors.NewInternalError(err.Error())
	}
	defer rows.Close()

	rollups := map[string]Rollup{}

	for rows.Next() {
		var id string
		var r Rollup

		err := rows.Scan(&id, &r.ResultTimeStart, &r.ResultTimeEnd, &r.PhenomenonTimeStart, &r.PhenomenonTimeEnd)
		if err != nil {
			return nil, cserrors.NewInternalError(err.Error())
		}

		rollups[id] = r
	}

	if err := rows.Err(); err != nil {
		return nil, cserrors.NewInternalError(err.Error())
	}

	return rollups, nil
}

func (db *TimescaleDB) InsertObservation(ctx context.Context, obs Observation) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO observations
			(uuid, resulttime, phenomenontime, datastream_id, result,
			 sampling_feature_id, procedure_link, parameters)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		obs.ID, obs.ResultTime, obs.PhenomenonTime, obs.DatastreamID, obs.Result,
		obs.SamplingFeatureID, obs.ProcedureLink, obs.Parameters,
	)
	if err != nil {
		return cserrors.NewInternalError(err.Error())
	}
	return nil
}

func (db *TimescaleDB) CountObservations(ctx context.Context, datastreamID string) (int64, error) {
	var count int64

	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM observations WHERE datastream_id = $1`, datastreamID,
	).Scan(&count)
	if err != nil {
		return 0, cserrors.NewInternalError(err.Error())
	}

	return count, nil
}

func (db *TimescaleDB) QueryObservations(ctx context.Context, q *ObservationQuery) ([]Observation, error) {
	rows, err := db.pool.Query(ctx, q.SQL(true), q.Args()...)
	if err != nil {
		return nil, cserrors.NewInternalError(err.Error())
	}
	defer rows.Close()

	observations := []Observation{}

	for rows.Next() {
		var obs Observation

		err := rows.Scan(&obs.ID, &obs.ResultTime, &obs.PhenomenonTime, &obs.DatastreamID,
			&obs.Result, &obs.SamplingFeatureID, &obs.ProcedureLink, &obs.Parameters)
		if err != nil {
			return nil, cserrors.NewInternalError(err.Error())
		}

		observations = append(observations, obs)
	}

	if err := rows.Err(); err != nil {
		return nil, cserrors.NewInternalError(err.Error())
	}

	return observations, nil
}

// DeleteObservation removes a single observation and errors unless
// exactly one row was affected.
func (db *TimescaleDB) DeleteObservation(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM observations WHERE uuid = $1`, id)
	if err != nil {
		return cserrors.NewInternalError(err.Error())
	}

	if tag.RowsAffected() != 1 {
		return cserrors.NewNotFoundError(fmt.Sprintf("observation %s does not exist", id))
	}

	return nil
}
