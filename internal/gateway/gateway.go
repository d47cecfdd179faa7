// Package gateway provides read-only access to the warehouse's master-data
// and schema catalogs. The engine never writes through a gateway; loading
// validated batches belongs to the warehouse itself.
package gateway

import (
	"context"
	"regexp"

	"github.com/rotisserie/eris"

	"github.com/meridianbi/gatekeeper/internal/model"
)

// ErrGateway indicates a master-data read failed or was misconfigured.
var ErrGateway = eris.New("gateway: master data unavailable")

// Gateway is the synchronous read API the resolver and assessor consume.
type Gateway interface {
	// FetchEntities returns the master entities of a tenant's table.
	FetchEntities(ctx context.Context, table, tenant string) ([]model.MasterEntity, error)
	// FetchColumns returns the column catalog of a table.
	FetchColumns(ctx context.Context, table string) ([]model.Column, error)
	// FetchForeignKeyValues returns the distinct values of one column,
	// scoped to a tenant, as a membership set.
	FetchForeignKeyValues(ctx context.Context, table, field, tenant string) (map[string]struct{}, error)
	Close() error
}

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// checkIdent rejects table and column names that are not plain SQL
// identifiers. Identifiers arrive from configuration, not row data, but they
// are interpolated into SQL and must never carry quoting.
func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return eris.Wrapf(ErrGateway, "invalid identifier %q", name)
	}
	return nil
}
