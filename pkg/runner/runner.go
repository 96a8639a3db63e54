// Package runner executes one maintenance run end to end: discovery,
// collection, execution, aggregation, then the side channels (metrics,
// history, report) whose failures never change the outcome.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opscart/index-maint/pkg/collector"
	"github.com/opscart/index-maint/pkg/converter"
	"github.com/opscart/index-maint/pkg/datasource"
	"github.com/opscart/index-maint/pkg/engine"
	"github.com/opscart/index-maint/pkg/logging"
	"github.com/opscart/index-maint/pkg/metrics"
	"github.com/opscart/index-maint/pkg/models"
	"github.com/opscart/index-maint/pkg/notify"
	"github.com/opscart/index-maint/pkg/plan"
	"github.com/opscart/index-maint/pkg/reporter"
	"github.com/opscart/index-maint/pkg/storage"
)

// Process exit codes
const (
	ExitOK       = 0
	ExitFatal    = 1
	ExitDegraded = 2
)

// sideChannelTimeout bounds report delivery, history writes and metric export
const sideChannelTimeout = 30 * time.Second

// Dependencies are the collaborators of a run. Channel, Store and Recorder
// are optional.
type Dependencies struct {
	Discovery datasource.TargetDiscovery
	Metrics   datasource.MetricsProvider
	Executor  datasource.MutationExecutor
	Refresher datasource.StatsRefresher

	Channel  notify.Channel
	Store    storage.Store
	Recorder *metrics.Recorder
	Logger   *slog.Logger
}

// Options are fixed for the duration of a run
type Options struct {
	Scope      models.Scope
	TargetName string
	Policy     models.Policy

	Parallelism          int
	CollectionTimeout    time.Duration
	CommandTimeout       time.Duration
	MaxCommandsPerMinute int

	SendReport    bool
	SubjectPrefix string

	PushgatewayURL string
	MetricsJob     string
	TextfilePath   string
}

// Outcome is everything a finished run produced
type Outcome struct {
	Summary      *models.RunSummary
	Plan         *plan.Plan
	Result       engine.Result
	TargetErrors []error
	DeliveryErr  error
}

// ExitCode maps the outcome to a process exit code
func (o *Outcome) ExitCode() int {
	if o.Summary.Degraded() {
		return ExitDegraded
	}
	return ExitOK
}

type Runner struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func New(deps Dependencies, opts Options) *Runner {
	return &Runner{
		deps:   deps,
		opts:   opts,
		logger: logging.OrDefault(deps.Logger),
		now:    time.Now,
	}
}

// Run performs a full run. It returns an error only when the run could not
// start: target discovery failed or found nothing to scan.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	started := r.now()
	runID := uuid.New().String()
	logger := r.logger.With("run_id", runID)

	targets, err := r.deps.Discovery.ListTargets(ctx, r.opts.Scope, r.opts.TargetName)
	if err != nil {
		return nil, fmt.Errorf("target discovery failed: %w", err)
	}
	logger.Info("Discovered targets", "scope", r.opts.Scope, "count", len(targets))

	p := plan.New()
	coll := collector.New(r.deps.Metrics, r.opts.Policy,
		collector.WithParallelism(r.opts.Parallelism),
		collector.WithTimeout(r.opts.CollectionTimeout),
		collector.WithLogger(logger),
		collector.WithRecorder(r.deps.Recorder),
	)
	targetErrs := coll.Collect(ctx, targets, p)

	eng := engine.New(r.deps.Executor, r.deps.Refresher, r.opts.Policy,
		engine.WithTimeout(r.opts.CommandTimeout),
		engine.WithRateLimit(r.opts.MaxCommandsPerMinute),
		engine.WithLogger(logger),
		engine.WithRecorder(r.deps.Recorder),
	)
	result := eng.Execute(ctx, p)

	summary := reporter.Aggregate(p, targetErrs)
	summary.RunID = runID
	summary.Scope = ScopeLabel(r.opts.Scope, targets)
	summary.StartedAt = started
	summary.FinishedAt = r.now()
	summary.AnalysisOnly = result.AnalysisOnly

	logger.Info("Run finished", "headline", summary.Headline,
		"rebuilds", summary.RebuildsPerformed, "reorganizes", summary.ReorganizesPerformed,
		"errors", summary.Errors, "target_errors", summary.TargetErrors)

	outcome := &Outcome{
		Summary:      summary,
		Plan:         p,
		Result:       result,
		TargetErrors: targetErrs,
	}

	// Side channels run even when the run was cancelled
	sideCtx := context.WithoutCancel(ctx)
	r.exportMetrics(sideCtx, logger, summary)
	r.saveHistory(sideCtx, logger, summary, p)
	outcome.DeliveryErr = r.sendReport(sideCtx, logger, summary, p)

	return outcome, nil
}

// ScopeLabel names what a run covered: the single target's name, or
// "all databases"
func ScopeLabel(scope models.Scope, targets []models.Target) string {
	if scope != models.ScopeAllEligible && len(targets) == 1 {
		return targets[0].Name
	}
	return "all databases"
}

func (r *Runner) exportMetrics(ctx context.Context, logger *slog.Logger, summary *models.RunSummary) {
	rec := r.deps.Recorder
	if rec == nil {
		return
	}
	rec.ObserveRun(summary)

	if r.opts.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(ctx, sideChannelTimeout)
		defer cancel()
		if err := rec.Push(pushCtx, r.opts.PushgatewayURL, r.opts.MetricsJob); err != nil {
			logger.Warn("Failed to push metrics", "error", err)
		}
	}
	if r.opts.TextfilePath != "" {
		if err := rec.WriteTextfile(r.opts.TextfilePath); err != nil {
			logger.Warn("Failed to write metrics textfile", "error", err)
		}
	}
}

func (r *Runner) saveHistory(ctx context.Context, logger *slog.Logger, summary *models.RunSummary, p *plan.Plan) {
	if r.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sideChannelTimeout)
	defer cancel()

	if err := r.deps.Store.SaveRun(ctx, summary); err != nil {
		logger.Warn("Failed to save run history", "error", err)
		return
	}
	entries := converter.RecordsToAuditEntries(summary.RunID, p.ExecutionOrder(), summary.FinishedAt)
	if err := r.deps.Store.SaveEntries(ctx, entries); err != nil {
		logger.Warn("Failed to save audit entries", "error", err)
		return
	}
	logger.Info("Saved run history", "entries", len(entries))
}

func (r *Runner) sendReport(ctx context.Context, logger *slog.Logger, summary *models.RunSummary, p *plan.Plan) error {
	if !r.opts.SendReport || r.deps.Channel == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, sideChannelTimeout)
	defer cancel()

	msg, err := notify.BuildMessage(r.opts.SubjectPrefix, summary.Scope, reporter.NewReport(summary, p))
	if err != nil {
		logger.Warn("Failed to render report", "error", err)
		return &models.ReportDeliveryError{Channel: r.deps.Channel.Name(), Err: err}
	}
	return notify.Deliver(ctx, r.deps.Channel, msg, logger, r.deps.Recorder)
}
