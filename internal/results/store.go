package results

import (
	"context"
	"errors"
	"fmt"

	"github.com/iso3dfd-st7/autotune/pkg/config"
	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// ErrNotFound is returned when no trial has the requested id
var ErrNotFound = errors.New("trial not found")

// Store persists finished optimization runs. Saved records are immutable.
type Store interface {
	// Save persists res and returns the trial id it was stored under
	Save(ctx context.Context, res *models.Result) (string, error)
	// Load returns the trial stored under id
	Load(ctx context.Context, id string) (*models.Result, error)
	// List returns every stored trial id in storage order
	List(ctx context.Context) ([]string, error)
	Close() error
}

// NewStore opens the backend selected by the results section
func NewStore(cfg config.Results) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Dir)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown results backend %q", cfg.Backend)
	}
}
