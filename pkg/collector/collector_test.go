package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/index-maint/pkg/datasource/fake"
	"github.com/opscart/index-maint/pkg/logging"
	"github.com/opscart/index-maint/pkg/models"
	"github.com/opscart/index-maint/pkg/plan"
)

func table(object, index string, frag float64, size int64) models.RawStructure {
	return models.RawStructure{
		Schema: "dbo", Object: object, Kind: models.ObjectTable, Index: index,
		FragmentationPercent: frag, SizeUnits: size,
	}
}

func view(object, index string, frag float64, size int64) models.RawStructure {
	s := table(object, index, frag, size)
	s.Kind = models.ObjectView
	return s
}

func TestCollectClassifiesRecords(t *testing.T) {
	backend := fake.NewBackend().
		AddStructures("sales",
			table("orders", "ix_a", 45, 5000),
			table("orders", "ix_b", 15, 5000),
			table("orders", "ix_c", 2, 5000),
			table("orders", "ix_small", 80, 10),
		)

	c := New(backend, models.DefaultPolicy(), WithLogger(logging.Discard()))
	p := plan.New()
	errs := c.Collect(context.Background(), backend.Targets, p)
	require.Empty(t, errs)

	records := p.Records()
	require.Len(t, records, 4)
	actions := map[string]models.ActionType{}
	for _, r := range records {
		actions[r.Index] = r.Action
		assert.Equal(t, models.StatusPending, r.Status)
	}
	assert.Equal(t, models.ActionRebuild, actions["ix_a"])
	assert.Equal(t, models.ActionReorganize, actions["ix_b"])
	assert.Equal(t, models.ActionNone, actions["ix_c"])
	assert.Equal(t, models.ActionNone, actions["ix_small"])
}

func TestCollectSkipsIneligibleStructures(t *testing.T) {
	disabled := table("orders", "ix_disabled", 90, 5000)
	disabled.Disabled = true

	backend := fake.NewBackend().
		AddStructures("sales", disabled, table("orders", "ix_empty", 90, 0), table("orders", "ix_ok", 90, 5000))

	c := New(backend, models.DefaultPolicy(), WithLogger(logging.Discard()))
	p := plan.New()
	require.Empty(t, c.Collect(context.Background(), backend.Targets, p))

	records := p.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "ix_ok", records[0].Index)
}

func TestCollectSecondaryObjects(t *testing.T) {
	backend := fake.NewBackend().
		AddStructures("sales", table("orders", "ix_t", 50, 5000), view("v_totals", "ix_v", 50, 5000))

	policy := models.DefaultPolicy()
	p := plan.New()
	require.Empty(t, New(backend, policy, WithLogger(logging.Discard())).Collect(context.Background(), backend.Targets, p))
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []string{"sales/TABLE", "sales/VIEW"}, backend.FetchCalls)

	policy.IncludeSecondaryObjects = false
	backend.FetchCalls = nil
	p = plan.New()
	require.Empty(t, New(backend, policy, WithLogger(logging.Discard())).Collect(context.Background(), backend.Targets, p))
	require.Equal(t, 1, p.Len())
	assert.Equal(t, models.ObjectTable, p.Records()[0].ObjectKind)
	assert.Equal(t, []string{"sales/TABLE"}, backend.FetchCalls)
}

func TestCollectIsolatesTargetFailures(t *testing.T) {
	backend := fake.NewBackend().
		AddStructures("alpha", table("orders", "ix_a", 50, 5000)).
		AddStructures("beta", table("orders", "ix_b", 50, 5000)).
		AddStructures("gamma", table("orders", "ix_c", 50, 5000))
	backend.FetchErrors["beta"] = errors.New("login failed")

	c := New(backend, models.DefaultPolicy(), WithLogger(logging.Discard()))
	p := plan.New()
	errs := c.Collect(context.Background(), backend.Targets, p)

	require.Len(t, errs, 1)
	var unavailable *models.TargetUnavailableError
	require.True(t, errors.As(errs[0], &unavailable))
	assert.Equal(t, "beta", unavailable.Target)
	assert.Contains(t, errs[0].Error(), "login failed")

	assert.Equal(t, []models.Target{{Name: "alpha", ID: "alpha"}, {Name: "gamma", ID: "gamma"}}, p.Targets())
	for _, r := range p.Records() {
		assert.NotEqual(t, "beta", r.Target)
	}
}

func TestCollectParallelKeepsTargetOrder(t *testing.T) {
	backend := fake.NewBackend()
	names := []string{"t1", "t2", "t3", "t4", "t5", "t6"}
	for _, name := range names {
		backend.AddStructures(name, table("orders", "ix", 50, 5000))
	}

	c := New(backend, models.DefaultPolicy(), WithParallelism(4), WithLogger(logging.Discard()))
	p := plan.New()
	require.Empty(t, c.Collect(context.Background(), backend.Targets, p))

	var got []string
	for _, r := range p.Records() {
		got = append(got, r.Target)
	}
	assert.Equal(t, names, got)
}
