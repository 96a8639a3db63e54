package reporter

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/opscart/index-maint/pkg/models"
	"github.com/opscart/index-maint/pkg/plan"
)

// DetailBudget bounds the detail text of a run summary, in characters
const DetailBudget = 3000

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatText ReportFormat = "text"
	FormatHTML ReportFormat = "html"
	FormatCSV  ReportFormat = "csv"
)

// Report contains all data for rendering a run report
type Report struct {
	Summary     *models.RunSummary
	Entries     []*models.StructureRecord
	GeneratedAt time.Time
}

// NewReport pairs a summary with the actionable entries in detail order
func NewReport(summary *models.RunSummary, p *plan.Plan) *Report {
	return &Report{
		Summary:     summary,
		Entries:     DetailOrder(p.Actionable()),
		GeneratedAt: summary.FinishedAt,
	}
}

// Reporter renders reports in one format
type Reporter struct {
	format ReportFormat
}

// New creates a new reporter
func New(format ReportFormat) *Reporter {
	return &Reporter{
		format: format,
	}
}

// Write renders the report to w
func (r *Reporter) Write(report *Report, w io.Writer) error {
	switch r.format {
	case FormatText, "":
		_, err := io.WriteString(w, TextBody(report.Summary))
		return err
	case FormatHTML:
		return GenerateHTML(report, w)
	case FormatCSV:
		return GenerateCSV(report, w)
	default:
		return fmt.Errorf("unsupported report format: %s", r.format)
	}
}

// Aggregate derives the run summary from the final plan in a single pass.
// Collection failures are listed separately and count as errors for the
// headline. The plan is only read.
func Aggregate(p *plan.Plan, targetErrs []error) *models.RunSummary {
	summary := &models.RunSummary{}

	targets := p.Targets()
	summary.TargetsProcessed = len(targets)

	stats := make(map[string]*models.TargetStats, len(targets))
	for _, t := range targets {
		stats[t.Name] = &models.TargetStats{Target: t.Name}
	}

	var actionable []*models.StructureRecord
	for _, rec := range p.Records() {
		summary.StructuresAnalyzed++

		st, ok := stats[rec.Target]
		if !ok {
			st = &models.TargetStats{Target: rec.Target}
			stats[rec.Target] = st
		}
		st.Structures++

		if !rec.Actionable() {
			continue
		}
		actionable = append(actionable, rec)
		st.Actionable++

		switch rec.Status {
		case models.StatusSuccess:
			switch rec.Action {
			case models.ActionRebuild:
				summary.RebuildsPerformed++
				st.Rebuilds++
			case models.ActionReorganize:
				summary.ReorganizesPerformed++
				st.Reorganizes++
			}
		case models.StatusFailed:
			summary.Errors++
			st.Errors++
		default:
			summary.Pending++
			st.Pending++
		}
	}

	for _, t := range targets {
		summary.Targets = append(summary.Targets, *stats[t.Name])
	}

	for _, err := range targetErrs {
		summary.TargetErrors++
		summary.UnreachableTargets = append(summary.UnreachableTargets, targetFailure(err))
	}

	summary.Detail, summary.DetailEntries = buildDetail(DetailOrder(actionable))
	summary.DetailOmitted = len(actionable) - summary.DetailEntries
	summary.Headline = classify(summary)

	return summary
}

func classify(s *models.RunSummary) models.Headline {
	switch {
	case s.Errors > 0 || s.TargetErrors > 0:
		return models.HeadlineErrors
	case s.RebuildsPerformed+s.ReorganizesPerformed > 0:
		return models.HeadlineCompleted
	default:
		return models.HeadlineNoAction
	}
}

func targetFailure(err error) models.TargetFailure {
	var unavailable *models.TargetUnavailableError
	if errors.As(err, &unavailable) {
		reason := ""
		if unavailable.Err != nil {
			reason = unavailable.Err.Error()
		}
		return models.TargetFailure{Target: unavailable.Target, Reason: reason}
	}
	return models.TargetFailure{Reason: err.Error()}
}

// DetailOrder returns a copy of records sorted by target, then status
// (failed, succeeded, pending), then fragmentation descending
func DetailOrder(records []*models.StructureRecord) []*models.StructureRecord {
	sorted := make([]*models.StructureRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		if a.Status.Rank() != b.Status.Rank() {
			return a.Status.Rank() < b.Status.Rank()
		}
		return a.FragmentationPercent > b.FragmentationPercent
	})
	return sorted
}

// DetailLine renders one entry of the detail listing
func DetailLine(rec *models.StructureRecord) string {
	line := fmt.Sprintf("[%s] %s %s.%s.%s %s %.1f%% (%d pages)",
		rec.Status, rec.Target, rec.Schema, rec.Object, rec.Index,
		rec.Action, rec.FragmentationPercent, rec.SizeUnits)
	if rec.Reason != "" {
		line += ": " + rec.Reason
	}
	return line + "\n"
}

// buildDetail stops at the first entry that would push the text past the
// budget; the rest are left out. The budget counts characters, not bytes.
func buildDetail(records []*models.StructureRecord) (string, int) {
	var b strings.Builder
	n, chars := 0, 0
	for _, rec := range records {
		line := DetailLine(rec)
		lineChars := utf8.RuneCountInString(line)
		if chars+lineChars > DetailBudget {
			break
		}
		b.WriteString(line)
		chars += lineChars
		n++
	}
	return b.String(), n
}
