// Package store persists analysis runs behind a backend-neutral interface.
// The orchestrator never touches it; commands and the HTTP API own the
// persistence boundary.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/talentlens/reportflow/internal/config"
	"github.com/talentlens/reportflow/internal/model"
)

// ErrNotFound is returned when no run matches the requested id.
var ErrNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for analysis runs.
type Store interface {
	CreateRun(ctx context.Context, document string, mode model.ExecutionMode) (*model.Run, error)
	UpdateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	DeleteRun(ctx context.Context, id string) error

	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs the backend selected by the configuration.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DSN)
	}
	return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
}
