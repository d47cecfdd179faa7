package runlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridianbi/gatekeeper/internal/db"
	"github.com/meridianbi/gatekeeper/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: parse config")
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "runlog: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, for tests and shared pools.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS enhancement_runs (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant            TEXT NOT NULL,
	target_table      TEXT NOT NULL,
	record_count      INTEGER NOT NULL DEFAULT 0,
	decision          TEXT NOT NULL,
	requires_approval BOOLEAN NOT NULL DEFAULT false,
	result            JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_enhancement_runs_tenant ON enhancement_runs(tenant);
CREATE INDEX IF NOT EXISTS idx_enhancement_runs_decision ON enhancement_runs(decision);
CREATE INDEX IF NOT EXISTS idx_enhancement_runs_created_at ON enhancement_runs(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "runlog: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO enhancement_runs (id, tenant, target_table, record_count, decision, requires_approval, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Tenant, run.Table, run.RecordCount, run.Decision, run.RequiresApproval, []byte(run.Result), run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var result []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant, target_table, record_count, decision, requires_approval, result, created_at
		 FROM enhancement_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Tenant, &r.Table, &r.RecordCount, &r.Decision, &r.RequiresApproval, &result, &r.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: get run %s", runID)
	}
	r.Result = result
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, tenant, target_table, record_count, decision, requires_approval, result, created_at
	          FROM enhancement_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Tenant != "" {
		query += fmt.Sprintf(` AND tenant = $%d`, argIdx)
		args = append(args, filter.Tenant)
		argIdx++
	}
	if filter.Decision != "" {
		query += fmt.Sprintf(` AND decision = $%d`, argIdx)
		args = append(args, filter.Decision)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var result []byte
		if err := rows.Scan(&r.ID, &r.Tenant, &r.Table, &r.RecordCount, &r.Decision, &r.RequiresApproval, &result, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		r.Result = result
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "runlog: iterate runs")
	}
	return runs, nil
}
