// Package engine applies the actionable entries of a plan.
//
// Entries run one at a time in plan execution order. A failed command marks
// only its own entry FAILED; the run continues with the next entry. Once
// every entry has been attempted, statistics are refreshed once for each
// object that had at least one successful command.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/opscart/index-maint/pkg/datasource"
	"github.com/opscart/index-maint/pkg/logging"
	"github.com/opscart/index-maint/pkg/metrics"
	"github.com/opscart/index-maint/pkg/models"
	"github.com/opscart/index-maint/pkg/plan"
)

const DefaultTimeout = 2 * time.Hour

// Result is the per-run accumulator returned by Execute
type Result struct {
	Rebuilds        int
	Reorganizes     int
	Errors          int
	Refreshed       int
	RefreshFailures int

	// Skipped counts entries left PENDING because the run was cancelled
	Skipped      int
	AnalysisOnly bool
	Cancelled    bool

	Failures []*models.MutationError
}

// Outcome is the result of a single external call
type Outcome struct {
	Err     error
	Elapsed time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil }

type Engine struct {
	executor  datasource.MutationExecutor
	refresher datasource.StatsRefresher
	policy    models.Policy
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
	recorder  *metrics.Recorder
}

type Option func(*Engine)

// WithTimeout bounds each mutation and refresh call
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRateLimit paces mutations to at most perMinute commands per minute
func WithRateLimit(perMinute int) Option {
	return func(e *Engine) {
		if perMinute > 0 {
			e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrDefault(l) }
}

func WithRecorder(r *metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func New(executor datasource.MutationExecutor, refresher datasource.StatsRefresher, policy models.Policy, opts ...Option) *Engine {
	e := &Engine{
		executor:  executor,
		refresher: refresher,
		policy:    policy,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the plan. With ExecuteActions disabled it makes no external
// calls and every entry stays PENDING. Cancellation is checked between
// entries; a command already in flight runs to completion or timeout.
func (e *Engine) Execute(ctx context.Context, p *plan.Plan) Result {
	entries := p.ExecutionOrder()

	if !e.policy.ExecuteActions {
		e.logger.Info("Analysis only, no commands applied", "actionable", len(entries))
		return Result{AnalysisOnly: true}
	}

	var res Result
	for i, rec := range entries {
		// status transitions once; a finished entry is never applied again
		if rec.Status != models.StatusPending {
			continue
		}
		if err := e.waitTurn(ctx); err != nil {
			res.Cancelled = true
			res.Skipped = len(entries) - i
			e.logger.Warn("Run cancelled, remaining entries left pending", "remaining", res.Skipped)
			break
		}

		out := e.apply(ctx, rec)
		if out.OK() {
			if !rec.MarkSuccess() {
				continue
			}
			switch rec.Action {
			case models.ActionRebuild:
				res.Rebuilds++
			case models.ActionReorganize:
				res.Reorganizes++
			}
			e.logger.Info("Applied maintenance command",
				"target", rec.Target, "index", rec.QualifiedName(), "action", rec.Action, "elapsed", out.Elapsed)
		} else {
			if !rec.MarkFailed(out.Err.Error()) {
				continue
			}
			res.Errors++
			mutErr := &models.MutationError{Command: *rec.Command, Err: out.Err}
			res.Failures = append(res.Failures, mutErr)
			e.logger.Warn("Maintenance command failed", "target", rec.Target, "error", mutErr)
		}
		e.recorder.ObserveCommand(rec, out.Elapsed)
	}

	if res.Cancelled {
		return res
	}

	e.refreshStatistics(ctx, entries, &res)
	return res
}

func (e *Engine) waitTurn(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

func (e *Engine) apply(ctx context.Context, rec *models.StructureRecord) Outcome {
	return e.call(ctx, func(callCtx context.Context) error {
		return e.executor.Apply(callCtx, rec.Target, *rec.Command)
	})
}

// call runs fn under the per-call timeout, detached from run cancellation
func (e *Engine) call(ctx context.Context, fn func(context.Context) error) Outcome {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", e.timeout, err)
	}
	return Outcome{Err: err, Elapsed: time.Since(start)}
}

type objectKey struct {
	target string
	schema string
	object string
}

func (e *Engine) refreshStatistics(ctx context.Context, entries []*models.StructureRecord, res *Result) {
	seen := make(map[objectKey]bool)
	for _, rec := range entries {
		if rec.Status != models.StatusSuccess {
			continue
		}
		key := objectKey{rec.Target, rec.Schema, rec.Object}
		if seen[key] {
			continue
		}
		seen[key] = true

		out := e.call(ctx, func(callCtx context.Context) error {
			return e.refresher.RefreshStatistics(callCtx, rec.Target, rec.Schema, rec.Object)
		})
		e.recorder.ObserveRefresh(out.Err)
		if !out.OK() {
			res.RefreshFailures++
			e.logger.Warn("Statistics refresh failed", "error", &models.StatsRefreshError{
				Target: rec.Target, Schema: rec.Schema, Object: rec.Object, Err: out.Err,
			})
			continue
		}
		res.Refreshed++
	}
}
