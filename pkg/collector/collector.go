// Package collector scans targets for index metrics and fills the plan.
package collector

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opscart/index-maint/pkg/classifier"
	"github.com/opscart/index-maint/pkg/datasource"
	"github.com/opscart/index-maint/pkg/logging"
	"github.com/opscart/index-maint/pkg/metrics"
	"github.com/opscart/index-maint/pkg/models"
	"github.com/opscart/index-maint/pkg/plan"
)

const DefaultTimeout = 5 * time.Minute

type Collector struct {
	provider    datasource.MetricsProvider
	policy      models.Policy
	parallelism int
	timeout     time.Duration
	logger      *slog.Logger
	recorder    *metrics.Recorder
}

type Option func(*Collector)

// WithParallelism bounds how many targets are scanned at once
func WithParallelism(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithTimeout bounds each metrics fetch
func WithTimeout(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) { c.logger = logging.OrDefault(l) }
}

func WithRecorder(r *metrics.Recorder) Option {
	return func(c *Collector) { c.recorder = r }
}

func New(provider datasource.MetricsProvider, policy models.Policy, opts ...Option) *Collector {
	c := &Collector{
		provider:    provider,
		policy:      policy,
		parallelism: 1,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type targetResult struct {
	records []*models.StructureRecord
	err     error
}

// Collect scans every target and appends the classified records to p. A
// target that fails contributes nothing and yields a TargetUnavailableError;
// the other targets are unaffected. Records are added in target order no
// matter how many targets were scanned concurrently.
func (c *Collector) Collect(ctx context.Context, targets []models.Target, p *plan.Plan) []error {
	results := make([]targetResult, len(targets))

	var g errgroup.Group
	g.SetLimit(c.parallelism)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			records, err := c.CollectTarget(ctx, target)
			results[i] = targetResult{records: records, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, target := range targets {
		res := results[i]
		if res.err != nil {
			c.logger.Warn("Error scanning target", "target", target.Name, "error", res.err)
			c.recorder.ObserveTargetError(target.Name)
			errs = append(errs, &models.TargetUnavailableError{Target: target.Name, Err: res.err})
			continue
		}

		for _, rec := range res.records {
			c.recorder.ObserveRecord(rec)
		}
		p.AddTarget(target, res.records)
	}

	return errs
}

// CollectTarget fetches and classifies the structures of one target. Tables
// are always fetched; views only when the policy includes secondary objects.
func (c *Collector) CollectTarget(ctx context.Context, target models.Target) ([]*models.StructureRecord, error) {
	c.logger.Info("Scanning target", "target", target.Name, "source", c.provider.Name())

	kinds := []models.ObjectKind{models.ObjectTable}
	if c.policy.IncludeSecondaryObjects {
		kinds = append(kinds, models.ObjectView)
	}

	var records []*models.StructureRecord
	for _, kind := range kinds {
		structures, err := c.fetch(ctx, target, kind)
		if err != nil {
			return nil, err
		}

		for _, s := range structures {
			if s.Kind == "" {
				s.Kind = kind
			}
			if s.Kind != kind {
				continue
			}
			if s.Disabled || s.SizeUnits <= 0 {
				c.logger.Debug("Skipping ineligible structure",
					"target", target.Name, "object", s.Schema+"."+s.Object, "index", s.Index,
					"disabled", s.Disabled, "size", s.SizeUnits)
				continue
			}
			records = append(records, classifier.NewRecord(target.Name, s, c.policy))
		}
	}

	actionable := 0
	for _, rec := range records {
		if rec.Actionable() {
			actionable++
		}
	}
	c.logger.Info("Found recommendation(s)", "target", target.Name,
		"structures", len(records), "actionable", actionable)

	return records, nil
}

func (c *Collector) fetch(ctx context.Context, target models.Target, kind models.ObjectKind) ([]models.RawStructure, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.provider.FetchStructures(fetchCtx, target, kind)
}
