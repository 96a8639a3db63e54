package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
)

// GenerateCSV creates a CSV report of every actionable entry
func GenerateCSV(report *Report, writer io.Writer) error {
	w := csv.NewWriter(writer)

	header := []string{
		"Target",
		"Schema",
		"Object",
		"Object Kind",
		"Index",
		"Action",
		"Fragmentation (%)",
		"Pages",
		"Status",
		"Reason",
		"Command",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range report.Entries {
		command := ""
		if rec.Command != nil {
			command = rec.Command.String()
		}
		row := []string{
			rec.Target,
			rec.Schema,
			rec.Object,
			string(rec.ObjectKind),
			rec.Index,
			string(rec.Action),
			fmt.Sprintf("%.2f", rec.FragmentationPercent),
			fmt.Sprintf("%d", rec.SizeUnits),
			string(rec.Status),
			rec.Reason,
			command,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	s := report.Summary
	rows := [][]string{
		{},
		{"SUMMARY"},
		{"Headline", string(s.Headline)},
		{"Targets Processed", fmt.Sprintf("%d", s.TargetsProcessed)},
		{"Structures Analyzed", fmt.Sprintf("%d", s.StructuresAnalyzed)},
		{"Rebuilds Performed", fmt.Sprintf("%d", s.RebuildsPerformed)},
		{"Reorganizes Performed", fmt.Sprintf("%d", s.ReorganizesPerformed)},
		{"Errors", fmt.Sprintf("%d", s.Errors)},
		{"Target Errors", fmt.Sprintf("%d", s.TargetErrors)},
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV summary: %w", err)
	}

	return w.Error()
}
