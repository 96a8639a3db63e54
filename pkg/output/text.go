package output

import (
	"context"
	"fmt"
	"io"

	"github.com/opscart/index-maint/pkg/models"
	"github.com/opscart/index-maint/pkg/reporter"
)

// TextHandler prints human-readable output
type TextHandler struct {
	w io.Writer
}

func (h *TextHandler) Format() string { return "text" }

func (h *TextHandler) DisplayPlan(ctx context.Context, records []*models.StructureRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(h.w, "[INFO] No maintenance required")
		return err
	}

	fmt.Fprintf(h.w, "=== Maintenance Plan ===\n\n")
	for i, rec := range records {
		fmt.Fprintf(h.w, "%d. %s [%s]\n", i+1, rec.QualifiedName(), rec.ObjectKind)
		fmt.Fprintf(h.w, "   Action: %s\n", rec.Action)
		fmt.Fprintf(h.w, "   Fragmentation: %.1f%% (%d pages)\n", rec.FragmentationPercent, rec.SizeUnits)
		fmt.Fprintf(h.w, "   Status: %s\n", rec.Status)
		if rec.Reason != "" {
			fmt.Fprintf(h.w, "   Error: %s\n", rec.Reason)
		}
		if rec.Command != nil {
			fmt.Fprintf(h.w, "   Command: %s\n", rec.Command)
		}
		fmt.Fprintln(h.w)
	}
	return nil
}

func (h *TextHandler) DisplaySummary(ctx context.Context, summary *models.RunSummary) error {
	_, err := io.WriteString(h.w, reporter.TextBody(summary))
	return err
}

func (h *TextHandler) DisplayRuns(ctx context.Context, runs []*models.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(h.w, "No runs found")
		return err
	}

	fmt.Fprintf(h.w, "Recent maintenance runs:\n\n")
	for i, run := range runs {
		fmt.Fprintf(h.w, "%d. %s (ID: %s)\n", i+1, run.Headline, run.RunID)
		fmt.Fprintf(h.w, "   Scope: %s\n", run.Scope)
		fmt.Fprintf(h.w, "   Rebuilds: %d  Reorganizes: %d  Errors: %d\n",
			run.RebuildsPerformed, run.ReorganizesPerformed, run.Errors)
		fmt.Fprintf(h.w, "   Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintln(h.w)
	}
	return nil
}

func (h *TextHandler) DisplayAudit(ctx context.Context, entries []*models.AuditEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(h.w, "No audit log entries found")
		return err
	}

	fmt.Fprintln(h.w, "Audit Log:")
	for i, e := range entries {
		fmt.Fprintf(h.w, "%d. %s.%s.%s.%s - %s %s\n", i+1, e.Target, e.Schema, e.Object, e.Index, e.Action, e.Status)
		fmt.Fprintf(h.w, "   Recorded: %s\n", e.RecordedAt.Format("2006-01-02 15:04:05"))
		if e.Command != "" {
			fmt.Fprintf(h.w, "   Command: %s\n", e.Command)
		}
		if e.ErrorMessage != "" {
			fmt.Fprintf(h.w, "   Error: %s\n", e.ErrorMessage)
		}
		fmt.Fprintln(h.w)
	}
	return nil
}
