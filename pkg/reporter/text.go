package reporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/opscart/index-maint/pkg/models"
)

// Subject builds the report subject line: "<prefix> <headline> - <scope>"
func Subject(prefix string, headline models.Headline, scope string) string {
	subject := fmt.Sprintf("%s - %s", headline, scope)
	if prefix != "" {
		subject = prefix + " " + subject
	}
	return subject
}

// TextBody renders the plain-text report body
func TextBody(s *models.RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Index maintenance: %s\n", s.Headline)
	if s.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", s.RunID)
	}
	if s.Scope != "" {
		fmt.Fprintf(&b, "Scope: %s\n", s.Scope)
	}
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Started: %s  Duration: %s\n",
			s.StartedAt.Format("2006-01-02 15:04:05 MST"), s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	}
	if s.AnalysisOnly {
		b.WriteString("Mode: analysis only, no commands were applied\n")
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Targets processed:      %d\n", s.TargetsProcessed)
	fmt.Fprintf(&b, "Structures analyzed:    %d\n", s.StructuresAnalyzed)
	fmt.Fprintf(&b, "Rebuilds performed:     %d\n", s.RebuildsPerformed)
	fmt.Fprintf(&b, "Reorganizes performed:  %d\n", s.ReorganizesPerformed)
	fmt.Fprintf(&b, "Errors:                 %d\n", s.Errors)
	if s.Pending > 0 {
		fmt.Fprintf(&b, "Pending:                %d\n", s.Pending)
	}

	if len(s.UnreachableTargets) > 0 {
		b.WriteString("\nUnreachable targets:\n")
		for _, f := range s.UnreachableTargets {
			fmt.Fprintf(&b, "  %s: %s\n", f.Target, f.Reason)
		}
	}

	if s.Detail != "" {
		b.WriteString("\nDetail:\n")
		b.WriteString(s.Detail)
	}

	return b.String()
}
