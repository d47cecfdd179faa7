package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/meridianbi/gatekeeper/internal/db"
	"github.com/meridianbi/gatekeeper/internal/model"
	"github.com/meridianbi/gatekeeper/internal/resilience"
)

// PostgresGateway reads master data from a warehouse over pgx. Queries pass
// through a rate limiter so enhancement batches cannot saturate a shared
// warehouse, and transient failures are retried with backoff.
type PostgresGateway struct {
	pool    db.Pool
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns      int32   `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns      int32   `yaml:"min_conns" mapstructure:"min_conns"`
	QueriesPerSec float64 `yaml:"queries_per_sec" mapstructure:"queries_per_sec"`
	QueryBurst    int     `yaml:"query_burst" mapstructure:"query_burst"`
}

// NewPostgres creates a PostgresGateway with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresGateway, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "gateway: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	qps := 50.0
	burst := 10
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
		if poolCfg.QueriesPerSec > 0 {
			qps = poolCfg.QueriesPerSec
		}
		if poolCfg.QueryBurst > 0 {
			burst = poolCfg.QueryBurst
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "gateway: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "gateway: ping")
	}
	return &PostgresGateway{
		pool:    pool,
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
		retry:   resilience.DefaultRetryConfig(),
		closeFn: pool.Close,
	}, nil
}

// NewPostgresWithPool wraps an existing pool, for tests and shared pools.
func NewPostgresWithPool(pool db.Pool) *PostgresGateway {
	return &PostgresGateway{
		pool:    pool,
		limiter: rate.NewLimiter(rate.Inf, 1),
		retry:   resilience.DefaultRetryConfig(),
	}
}

func (g *PostgresGateway) wait(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "gateway: rate limit wait")
	}
	return nil
}

func (g *PostgresGateway) FetchEntities(ctx context.Context, table, tenant string) ([]model.MasterEntity, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	cfg := g.retry
	cfg.OnRetry = resilience.RetryLogger("gateway", "fetch_entities")
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]model.MasterEntity, error) {
		return g.fetchEntities(ctx, table, tenant)
	})
}

func (g *PostgresGateway) fetchEntities(ctx context.Context, table, tenant string) ([]model.MasterEntity, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT id, name, COALESCE(code, ''), COALESCE(alias, '') FROM %s WHERE tenant_id = $1 ORDER BY id`,
		pgx.Identifier{table}.Sanitize(),
	)
	rows, err := g.pool.Query(ctx, query, tenant)
	if err != nil {
		return nil, eris.Wrapf(err, "gateway: fetch entities from %s", table)
	}
	defer rows.Close()

	var entities []model.MasterEntity
	for rows.Next() {
		var e model.MasterEntity
		if err := rows.Scan(&e.ID, &e.Name, &e.Code, &e.Alias); err != nil {
			return nil, eris.Wrap(err, "gateway: scan entity")
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "gateway: iterate entities from %s", table)
	}
	return entities, nil
}

func (g *PostgresGateway) FetchColumns(ctx context.Context, table string) ([]model.Column, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	cfg := g.retry
	cfg.OnRetry = resilience.RetryLogger("gateway", "fetch_columns")
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]model.Column, error) {
		return g.fetchColumns(ctx, table)
	})
}

func (g *PostgresGateway) fetchColumns(ctx context.Context, table string) ([]model.Column, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	rows, err := g.pool.Query(ctx,
		`SELECT column_name, data_type, is_nullable = 'YES'
		 FROM information_schema.columns
		 WHERE table_name = $1
		 ORDER BY ordinal_position`,
		table,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "gateway: fetch columns of %s", table)
	}
	defer rows.Close()

	var columns []model.Column
	for rows.Next() {
		var c model.Column
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable); err != nil {
			return nil, eris.Wrap(err, "gateway: scan column")
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "gateway: iterate columns of %s", table)
	}
	return columns, nil
}

func (g *PostgresGateway) FetchForeignKeyValues(ctx context.Context, table, field, tenant string) (map[string]struct{}, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if err := checkIdent(field); err != nil {
		return nil, err
	}

	cfg := g.retry
	cfg.OnRetry = resilience.RetryLogger("gateway", "fetch_key_values")
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (map[string]struct{}, error) {
		return g.fetchForeignKeyValues(ctx, table, field, tenant)
	})
}

func (g *PostgresGateway) fetchForeignKeyValues(ctx context.Context, table, field, tenant string) (map[string]struct{}, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT DISTINCT %s::text FROM %s WHERE tenant_id = $1 AND %s IS NOT NULL`,
		pgx.Identifier{field}.Sanitize(),
		pgx.Identifier{table}.Sanitize(),
		pgx.Identifier{field}.Sanitize(),
	)
	rows, err := g.pool.Query(ctx, query, tenant)
	if err != nil {
		return nil, eris.Wrapf(err, "gateway: fetch key values %s.%s", table, field)
	}
	defer rows.Close()

	values := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "gateway: scan key value")
		}
		values[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "gateway: iterate key values %s.%s", table, field)
	}
	return values, nil
}

func (g *PostgresGateway) Ping(ctx context.Context) error {
	_, err := g.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "gateway: ping")
}

func (g *PostgresGateway) Close() error {
	if g.closeFn != nil {
		g.closeFn()
	}
	return nil
}
