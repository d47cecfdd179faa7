package runlog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridianbi/gatekeeper/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "runlog: sqlite exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS enhancement_runs (
	id                TEXT PRIMARY KEY,
	tenant            TEXT NOT NULL,
	target_table      TEXT NOT NULL,
	record_count      INTEGER NOT NULL DEFAULT 0,
	decision          TEXT NOT NULL,
	requires_approval INTEGER NOT NULL DEFAULT 0,
	result            TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_enhancement_runs_tenant ON enhancement_runs(tenant);
CREATE INDEX IF NOT EXISTS idx_enhancement_runs_decision ON enhancement_runs(decision);
CREATE INDEX IF NOT EXISTS idx_enhancement_runs_created_at ON enhancement_runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "runlog: sqlite migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enhancement_runs (id, tenant, target_table, record_count, decision, requires_approval, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Tenant, run.Table, run.RecordCount, run.Decision, run.RequiresApproval, string(run.Result), run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: sqlite insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var result string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant, target_table, record_count, decision, requires_approval, result, created_at
		 FROM enhancement_runs WHERE id = ?`,
		runID,
	).Scan(&r.ID, &r.Tenant, &r.Table, &r.RecordCount, &r.Decision, &r.RequiresApproval, &result, &r.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: sqlite get run %s", runID)
	}
	if result != "" {
		r.Result = []byte(result)
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, tenant, target_table, record_count, decision, requires_approval, result, created_at
	          FROM enhancement_runs WHERE true`
	args := []any{}

	if filter.Tenant != "" {
		query += ` AND tenant = ?`
		args = append(args, filter.Tenant)
	}
	if filter.Decision != "" {
		query += ` AND decision = ?`
		args = append(args, filter.Decision)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: sqlite list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var result string
		if err := rows.Scan(&r.ID, &r.Tenant, &r.Table, &r.RecordCount, &r.Decision, &r.RequiresApproval, &result, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "runlog: sqlite scan run")
		}
		if result != "" {
			r.Result = []byte(result)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "runlog: sqlite iterate runs")
	}
	return runs, nil
}
