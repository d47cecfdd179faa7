package gateway

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridianbi/gatekeeper/internal/model"
)

// SQLiteGateway reads master data from a local SQLite file, used for
// offline validation against a warehouse snapshot.
type SQLiteGateway struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteGateway, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "gateway: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "gateway: sqlite exec %s", pragma)
		}
	}
	return &SQLiteGateway{db: sdb}, nil
}

func (g *SQLiteGateway) FetchEntities(ctx context.Context, table, tenant string) ([]model.MasterEntity, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT id, name, COALESCE(code, ''), COALESCE(alias, '') FROM %q WHERE tenant_id = ? ORDER BY id`,
		table,
	)
	rows, err := g.db.QueryContext(ctx, query, tenant)
	if err != nil {
		return nil, eris.Wrapf(err, "gateway: sqlite fetch entities from %s", table)
	}
	defer rows.Close()

	var entities []model.MasterEntity
	for rows.Next() {
		var e model.MasterEntity
		if err := rows.Scan(&e.ID, &e.Name, &e.Code, &e.Alias); err != nil {
			return nil, eris.Wrap(err, "gateway: sqlite scan entity")
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "gateway: sqlite iterate entities from %s", table)
	}
	return entities, nil
}

func (g *SQLiteGateway) FetchColumns(ctx context.Context, table string) ([]model.Column, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	rows, err := g.db.QueryContext(ctx,
		`SELECT name, type, "notnull" = 0 FROM pragma_table_info(?) ORDER BY cid`,
		table,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "gateway: sqlite fetch columns of %s", table)
	}
	defer rows.Close()

	var columns []model.Column
	for rows.Next() {
		var c model.Column
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable); err != nil {
			return nil, eris.Wrap(err, "gateway: sqlite scan column")
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "gateway: sqlite iterate columns of %s", table)
	}
	return columns, nil
}

func (g *SQLiteGateway) FetchForeignKeyValues(ctx context.Context, table, field, tenant string) (map[string]struct{}, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if err := checkIdent(field); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT DISTINCT CAST(%q AS TEXT) FROM %q WHERE tenant_id = ? AND %q IS NOT NULL`,
		field, table, field,
	)
	rows, err := g.db.QueryContext(ctx, query, tenant)
	if err != nil {
		return nil, eris.Wrapf(err, "gateway: sqlite fetch key values %s.%s", table, field)
	}
	defer rows.Close()

	values := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "gateway: sqlite scan key value")
		}
		values[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "gateway: sqlite iterate key values %s.%s", table, field)
	}
	return values, nil
}

func (g *SQLiteGateway) Ping(ctx context.Context) error {
	return eris.Wrap(g.db.PingContext(ctx), "gateway: sqlite ping")
}

func (g *SQLiteGateway) Close() error {
	return g.db.Close()
}
