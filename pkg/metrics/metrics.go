// Package metrics instruments maintenance runs with Prometheus collectors.
//
// Each run owns its own registry. At the end of the run the registry is
// either pushed to a Pushgateway or written as a node-exporter textfile,
// since the process exits before anything could scrape it.
//
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"

	"github.com/opscart/index-maint/pkg/models"
)

const namespace = "index_maint"

// Recorder holds the collectors of one run
type Recorder struct {
	registry *prometheus.Registry

	structuresAnalyzed *prometheus.CounterVec
	actionsPlanned     *prometheus.CounterVec
	actionsExecuted    *prometheus.CounterVec
	commandDuration    *prometheus.HistogramVec
	targetErrors       *prometheus.CounterVec
	statsRefreshes     *prometheus.CounterVec
	reportDeliveries   *prometheus.CounterVec

	runDuration    prometheus.Gauge
	runErrors      prometheus.Gauge
	lastRunSuccess prometheus.Gauge
}

// New creates a recorder with a fresh registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		structuresAnalyzed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "structures_analyzed_total",
			Help:      "Index structures inspected, by target and object kind",
		}, []string{"target", "object_kind"}),
		actionsPlanned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_planned_total",
			Help:      "Maintenance actions recommended, by target and action",
		}, []string{"target", "action"}),
		actionsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_executed_total",
			Help:      "Maintenance commands applied, by target, action and status",
		}, []string{"target", "action", "status"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of maintenance commands",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"action"}),
		targetErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_errors_total",
			Help:      "Targets that could not be scanned",
		}, []string{"target"}),
		statsRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_refreshes_total",
			Help:      "Statistics refreshes, by status",
		}, []string{"status"}),
		reportDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_deliveries_total",
			Help:      "Report deliveries, by channel and status",
		}, []string{"channel", "status"}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		runErrors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_errors",
			Help:      "Failed maintenance commands in the last run",
		}),
		lastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success_timestamp_seconds",
			Help:      "Unix time of the last run without failed commands",
		}),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveRecord counts one classified structure
func (r *Recorder) ObserveRecord(rec *models.StructureRecord) {
	if r == nil {
		return
	}
	r.structuresAnalyzed.WithLabelValues(rec.Target, string(rec.ObjectKind)).Inc()
	if rec.Actionable() {
		r.actionsPlanned.WithLabelValues(rec.Target, string(rec.Action)).Inc()
	}
}

// ObserveTargetError counts a target that could not be scanned
func (r *Recorder) ObserveTargetError(target string) {
	if r == nil {
		return
	}
	r.targetErrors.WithLabelValues(target).Inc()
}

// ObserveCommand records the outcome of one applied command
func (r *Recorder) ObserveCommand(rec *models.StructureRecord, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.actionsExecuted.WithLabelValues(rec.Target, string(rec.Action), string(rec.Status)).Inc()
	r.commandDuration.WithLabelValues(string(rec.Action)).Observe(elapsed.Seconds())
}

// ObserveRefresh records one statistics refresh
func (r *Recorder) ObserveRefresh(err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	r.statsRefreshes.WithLabelValues(status).Inc()
}

// ObserveDelivery records one report delivery attempt
func (r *Recorder) ObserveDelivery(channel string, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	r.reportDeliveries.WithLabelValues(channel, status).Inc()
}

// ObserveRun sets the run-level gauges from the final summary
func (r *Recorder) ObserveRun(summary *models.RunSummary) {
	if r == nil || summary == nil {
		return
	}
	r.runDuration.Set(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	r.runErrors.Set(float64(summary.Errors))
	if !summary.Degraded() {
		r.lastRunSuccess.Set(float64(summary.FinishedAt.Unix()))
	}
}

// Push sends the registry to a Pushgateway under the given job name
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	if r == nil {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// WriteTextfile writes the registry in the text exposition format. The file
// is replaced atomically so the node exporter never reads a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}

	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
