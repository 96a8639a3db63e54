package storage

import (
	"context"
	"errors"

	"github.com/opscart/index-maint/pkg/models"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for run history storage
type Store interface {
	SaveRun(ctx context.Context, run *models.RunSummary) error
	SaveEntries(ctx context.Context, entries []*models.AuditEntry) error

	GetRun(ctx context.Context, id string) (*models.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunSummary, error)
	GetRunEntries(ctx context.Context, runID string) ([]*models.AuditEntry, error)
	GetStructureHistory(ctx context.Context, target, schema, object, index string, limit int) ([]*models.AuditEntry, error)

	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Driver string
	DSN    string
}
