// Package runlog persists the audit trail of enhancement runs.
package runlog

import (
	"context"

	"github.com/meridianbi/gatekeeper/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Tenant   string `json:"tenant,omitempty"`
	Decision string `json:"decision,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run audit trail.
type Store interface {
	// CreateRun persists a run, assigning its ID and timestamp.
	CreateRun(ctx context.Context, run model.Run) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
