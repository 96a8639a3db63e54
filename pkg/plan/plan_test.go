package plan

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/index-maint/pkg/models"
)

func record(target string, kind models.ObjectKind, action models.ActionType, frag float64) *models.StructureRecord {
	rec := &models.StructureRecord{
		Target:               target,
		Schema:               "dbo",
		Object:               fmt.Sprintf("obj_%s_%.0f", kind, frag),
		ObjectKind:           kind,
		Index:                fmt.Sprintf("ix_%.0f", frag),
		FragmentationPercent: frag,
		SizeUnits:            5000,
		Action:               action,
		Status:               models.StatusPending,
	}
	if action != models.ActionNone {
		rec.Command = &models.Command{Target: target, Verb: action, Schema: rec.Schema, Object: rec.Object, Index: rec.Index}
	}
	return rec
}

func TestExecutionOrder(t *testing.T) {
	p := New()
	p.AddTarget(models.Target{Name: "T2"}, []*models.StructureRecord{
		record("T2", models.ObjectTable, models.ActionRebuild, 90),
	})
	p.AddTarget(models.Target{Name: "T1"}, []*models.StructureRecord{
		record("T1", models.ObjectView, models.ActionRebuild, 60),
		record("T1", models.ObjectTable, models.ActionReorganize, 15),
		record("T1", models.ObjectTable, models.ActionRebuild, 40),
	})

	order := p.ExecutionOrder()
	require.Len(t, order, 4)

	type key struct {
		target string
		kind   models.ObjectKind
		action models.ActionType
		frag   float64
	}
	var got []key
	for _, rec := range order {
		got = append(got, key{rec.Target, rec.ObjectKind, rec.Action, rec.FragmentationPercent})
	}

	assert.Equal(t, []key{
		{"T1", models.ObjectTable, models.ActionRebuild, 40},
		{"T1", models.ObjectTable, models.ActionReorganize, 15},
		{"T1", models.ObjectView, models.ActionRebuild, 60},
		{"T2", models.ObjectTable, models.ActionRebuild, 90},
	}, got)
}

func TestExecutionOrderFragmentationDescending(t *testing.T) {
	p := New()
	p.AddTarget(models.Target{Name: "T1"}, []*models.StructureRecord{
		record("T1", models.ObjectTable, models.ActionRebuild, 35),
		record("T1", models.ObjectTable, models.ActionRebuild, 95),
		record("T1", models.ObjectTable, models.ActionRebuild, 50),
	})

	order := p.ExecutionOrder()
	require.Len(t, order, 3)
	assert.Equal(t, 95.0, order[0].FragmentationPercent)
	assert.Equal(t, 50.0, order[1].FragmentationPercent)
	assert.Equal(t, 35.0, order[2].FragmentationPercent)
}

func TestExecutionOrderSkipsNoAction(t *testing.T) {
	p := New()
	p.AddTarget(models.Target{Name: "T1"}, []*models.StructureRecord{
		record("T1", models.ObjectTable, models.ActionNone, 3),
		record("T1", models.ObjectTable, models.ActionReorganize, 12),
	})

	assert.Equal(t, 2, p.Len())
	order := p.ExecutionOrder()
	require.Len(t, order, 1)
	assert.Equal(t, models.ActionReorganize, order[0].Action)
}

func TestAddTargetConcurrent(t *testing.T) {
	p := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("T%02d", i)
			p.AddTarget(models.Target{Name: name}, []*models.StructureRecord{
				record(name, models.ObjectTable, models.ActionRebuild, 50),
				record(name, models.ObjectTable, models.ActionNone, 1),
			})
		}(i)
	}
	wg.Wait()

	assert.Len(t, p.Targets(), 20)
	assert.Equal(t, 40, p.Len())
	assert.Len(t, p.Actionable(), 20)
}
