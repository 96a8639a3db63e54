package datasource

import (
	"context"
	"log/slog"

	"github.com/opscart/index-maint/pkg/models"
)

// MetricsProvider returns the physical metrics of every index owned by
// objects of the given kind in a target
type MetricsProvider interface {
	FetchStructures(ctx context.Context, target models.Target, kind models.ObjectKind) ([]models.RawStructure, error)
	Name() string
}

// MutationExecutor applies a maintenance command inside a target. The
// returned error text is included verbatim in the run report.
type MutationExecutor interface {
	Apply(ctx context.Context, target string, cmd models.Command) error
}

// StatsRefresher refreshes optimizer statistics for one object
type StatsRefresher interface {
	RefreshStatistics(ctx context.Context, target, schema, object string) error
}

// TargetDiscovery enumerates the targets a run should scan
type TargetDiscovery interface {
	ListTargets(ctx context.Context, scope models.Scope, name string) ([]models.Target, error)
}

// Backend bundles all collaborators served by one database engine
type Backend interface {
	MetricsProvider
	MutationExecutor
	StatsRefresher
	TargetDiscovery
	Close() error
}

// Config selects the backend and, optionally, a Prometheus server that
// replaces the catalog queries as the metrics source
type Config struct {
	Dialect       string
	DSN           string
	PrometheusURL string
}

// Sources are the collaborators built from one Config
type Sources struct {
	Backend Backend
	Metrics MetricsProvider
}

// Open builds the SQL backend and picks the metrics provider
func Open(cfg Config, logger *slog.Logger) (*Sources, error) {
	backend, err := NewSQLBackend(cfg.Dialect, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.PrometheusURL == "" {
		return &Sources{Backend: backend, Metrics: backend}, nil
	}

	prom, err := NewPrometheusSource(cfg.PrometheusURL, logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return &Sources{Backend: backend, Metrics: prom}, nil
}
