package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/index-maint/pkg/datasource/fake"
	"github.com/opscart/index-maint/pkg/logging"
	"github.com/opscart/index-maint/pkg/metrics"
	"github.com/opscart/index-maint/pkg/models"
	"github.com/opscart/index-maint/pkg/notify"
	"github.com/opscart/index-maint/pkg/storage"
)

type captureChannel struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) Send(ctx context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return c.err
}

func table(object, index string, frag float64) models.RawStructure {
	return models.RawStructure{
		Schema: "dbo", Object: object, Kind: models.ObjectTable, Index: index,
		FragmentationPercent: frag, SizeUnits: 5000,
	}
}

func defaultOptions() Options {
	return Options{
		Scope:         models.ScopeAllEligible,
		Policy:        models.DefaultPolicy(),
		Parallelism:   2,
		SendReport:    true,
		SubjectPrefix: "[db01]",
	}
}

func newRunner(backend *fake.Backend, ch notify.Channel, store storage.Store, rec *metrics.Recorder, opts Options) *Runner {
	return New(Dependencies{
		Discovery: backend,
		Metrics:   backend,
		Executor:  backend,
		Refresher: backend,
		Channel:   ch,
		Store:     store,
		Recorder:  rec,
		Logger:    logging.Discard(),
	}, opts)
}

func TestRunCompleted(t *testing.T) {
	backend := fake.NewBackend().
		AddStructures("sales", table("orders", "ix_a", 45), table("orders", "ix_b", 15), table("orders", "ix_c", 2)).
		AddStructures("hr", table("people", "ix_p", 50))
	ch := &captureChannel{}

	outcome, err := newRunner(backend, ch, nil, nil, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	s := outcome.Summary
	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, "all databases", s.Scope)
	assert.Equal(t, 2, s.TargetsProcessed)
	assert.Equal(t, 4, s.StructuresAnalyzed)
	assert.Equal(t, 2, s.RebuildsPerformed)
	assert.Equal(t, 1, s.ReorganizesPerformed)
	assert.Equal(t, models.HeadlineCompleted, s.Headline)
	assert.False(t, s.FinishedAt.Before(s.StartedAt))
	assert.Equal(t, ExitOK, outcome.ExitCode())

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "[db01] maintenance completed - all databases", ch.sent[0].Subject)
	assert.NoError(t, outcome.DeliveryErr)

	assert.ElementsMatch(t, []string{"sales.dbo.orders", "hr.dbo.people"}, backend.Refreshed)
}

func TestRunCommandFailureIsDegraded(t *testing.T) {
	backend := fake.NewBackend().
		AddStructures("sales", table("orders", "ix_a", 45), table("orders", "ix_b", 60))
	backend.ApplyErrors["ix_b"] = errors.New("deadlock victim")
	ch := &captureChannel{}

	outcome, err := newRunner(backend, ch, nil, nil, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Summary.Errors)
	assert.Equal(t, 1, outcome.Summary.RebuildsPerformed)
	assert.Equal(t, models.HeadlineErrors, outcome.Summary.Headline)
	assert.Equal(t, ExitDegraded, outcome.ExitCode())
	assert.Contains(t, outcome.Summary.Detail, "deadlock victim")
	require.Len(t, ch.sent, 1)
	assert.Contains(t, ch.sent[0].Body, "deadlock victim")
}

func TestRunUnreachableTargetKeepsExitCode(t *testing.T) {
	backend := fake.NewBackend().
		AddStructures("sales", table("orders", "ix_a", 45)).
		AddStructures("offline")
	backend.FetchErrors["offline"] = errors.New("connection refused")

	outcome, err := newRunner(backend, nil, nil, nil, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Summary.TargetErrors)
	assert.Equal(t, 0, outcome.Summary.Errors)
	assert.Equal(t, models.HeadlineErrors, outcome.Summary.Headline)
	assert.Equal(t, ExitOK, outcome.ExitCode())
	require.Len(t, outcome.TargetErrors, 1)
	assert.Equal(t, []string{"ix_a"}, backend.AppliedIndexes())
}

func TestRunDiscoveryFailureIsFatal(t *testing.T) {
	backend := fake.NewBackend().AddStructures("sales", table("orders", "ix_a", 45))
	opts := defaultOptions()
	opts.Scope = models.ScopeSpecific
	opts.TargetName = "missing"
	ch := &captureChannel{}

	outcome, err := newRunner(backend, ch, nil, nil, opts).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.True(t, errors.Is(err, models.ErrTargetNotFound))
	assert.Empty(t, ch.sent)
	assert.Empty(t, backend.Applied)
}

func TestRunSpecificScopeLabel(t *testing.T) {
	backend := fake.NewBackend().
		AddStructures("sales", table("orders", "ix_a", 45)).
		AddStructures("hr", table("people", "ix_p", 50))
	opts := defaultOptions()
	opts.Scope = models.ScopeSpecific
	opts.TargetName = "hr"

	outcome, err := newRunner(backend, nil, nil, nil, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hr", outcome.Summary.Scope)
	assert.Equal(t, []string{"ix_p"}, backend.AppliedIndexes())
}

func TestRunAnalysisOnly(t *testing.T) {
	backend := fake.NewBackend().AddStructures("sales", table("orders", "ix_a", 45))
	opts := defaultOptions()
	opts.Policy.ExecuteActions = false
	ch := &captureChannel{}

	outcome, err := newRunner(backend, ch, nil, nil, opts).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, outcome.Summary.AnalysisOnly)
	assert.Equal(t, 1, outcome.Summary.Pending)
	assert.Empty(t, backend.Applied)
	assert.Empty(t, backend.Refreshed)
	require.Len(t, ch.sent, 1)
}

func TestRunNoReport(t *testing.T) {
	backend := fake.NewBackend().AddStructures("sales", table("orders", "ix_a", 2))
	opts := defaultOptions()
	opts.SendReport = false
	ch := &captureChannel{}

	outcome, err := newRunner(backend, ch, nil, nil, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.HeadlineNoAction, outcome.Summary.Headline)
	assert.Empty(t, ch.sent)
}

func TestRunDeliveryFailureDoesNotChangeOutcome(t *testing.T) {
	backend := fake.NewBackend().AddStructures("sales", table("orders", "ix_a", 45))
	ch := &captureChannel{err: errors.New("smtp unavailable")}

	outcome, err := newRunner(backend, ch, nil, nil, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	var deliveryErr *models.ReportDeliveryError
	require.ErrorAs(t, outcome.DeliveryErr, &deliveryErr)
	assert.Equal(t, ExitOK, outcome.ExitCode())
	assert.Equal(t, models.HeadlineCompleted, outcome.Summary.Headline)
}

func TestRunSavesHistory(t *testing.T) {
	store, err := storage.Open(context.Background(), storage.Config{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "history.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	backend := fake.NewBackend().
		AddStructures("sales", table("orders", "ix_a", 45), table("orders", "ix_b", 15), table("orders", "ix_c", 2))

	outcome, err := newRunner(backend, nil, store, nil, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	saved, err := store.GetRun(context.Background(), outcome.Summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, outcome.Summary.RebuildsPerformed, saved.RebuildsPerformed)
	assert.Equal(t, outcome.Summary.Headline, saved.Headline)

	entries, err := store.GetRunEntries(context.Background(), outcome.Summary.RunID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunRecordsMetrics(t *testing.T) {
	backend := fake.NewBackend().AddStructures("sales", table("orders", "ix_a", 45))
	backend.ApplyErrors["ix_a"] = errors.New("lock timeout")
	rec := metrics.New()
	opts := defaultOptions()
	opts.TextfilePath = filepath.Join(t.TempDir(), "index_maint.prom")

	_, err := newRunner(backend, nil, nil, rec, opts).Run(context.Background())
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(rec.Registry(), "index_maint_run_errors")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	content, err := os.ReadFile(opts.TextfilePath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), "index_maint_run_errors 1"))
}

func TestScopeLabel(t *testing.T) {
	one := []models.Target{{Name: "sales"}}
	two := []models.Target{{Name: "sales"}, {Name: "hr"}}

	assert.Equal(t, "sales", ScopeLabel(models.ScopeCurrent, one))
	assert.Equal(t, "sales", ScopeLabel(models.ScopeSpecific, one))
	assert.Equal(t, "all databases", ScopeLabel(models.ScopeAllEligible, one))
	assert.Equal(t, "all databases", ScopeLabel(models.ScopeAllEligible, two))
}
