package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/opscart/index-maint/pkg/models"
)

// CSVHandler prints one row per entry
type CSVHandler struct {
	w io.Writer
}

func (h *CSVHandler) Format() string { return "csv" }

func (h *CSVHandler) write(rows [][]string) error {
	w := csv.NewWriter(h.w)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

func (h *CSVHandler) DisplayPlan(ctx context.Context, records []*models.StructureRecord) error {
	rows := [][]string{{"target", "schema", "object", "object_kind", "index", "action", "fragmentation", "pages", "status", "reason"}}
	for _, r := range records {
		rows = append(rows, []string{
			r.Target, r.Schema, r.Object, string(r.ObjectKind), r.Index, string(r.Action),
			strconv.FormatFloat(r.FragmentationPercent, 'f', 2, 64), strconv.FormatInt(r.SizeUnits, 10),
			string(r.Status), r.Reason,
		})
	}
	return h.write(rows)
}

func (h *CSVHandler) DisplaySummary(ctx context.Context, s *models.RunSummary) error {
	return h.write([][]string{
		{"run_id", "scope", "headline", "targets_processed", "structures_analyzed",
			"rebuilds_performed", "reorganizes_performed", "errors", "target_errors"},
		{s.RunID, s.Scope, string(s.Headline), strconv.Itoa(s.TargetsProcessed), strconv.Itoa(s.StructuresAnalyzed),
			strconv.Itoa(s.RebuildsPerformed), strconv.Itoa(s.ReorganizesPerformed), strconv.Itoa(s.Errors),
			strconv.Itoa(s.TargetErrors)},
	})
}

func (h *CSVHandler) DisplayRuns(ctx context.Context, runs []*models.RunSummary) error {
	rows := [][]string{{"run_id", "started_at", "scope", "headline", "rebuilds", "reorganizes", "errors"}}
	for _, r := range runs {
		rows = append(rows, []string{
			r.RunID, r.StartedAt.Format("2006-01-02T15:04:05Z07:00"), r.Scope, string(r.Headline),
			strconv.Itoa(r.RebuildsPerformed), strconv.Itoa(r.ReorganizesPerformed), strconv.Itoa(r.Errors),
		})
	}
	return h.write(rows)
}

func (h *CSVHandler) DisplayAudit(ctx context.Context, entries []*models.AuditEntry) error {
	rows := [][]string{{"target", "schema", "object", "index", "action", "status", "error", "command", "recorded_at"}}
	for _, e := range entries {
		rows = append(rows, []string{
			e.Target, e.Schema, e.Object, e.Index, string(e.Action), string(e.Status),
			e.ErrorMessage, e.Command, e.RecordedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return h.write(rows)
}
