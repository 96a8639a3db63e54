package output

import (
	"context"
	"fmt"
	"io"

	"github.com/opscart/index-maint/pkg/models"
)

// Handler defines the interface for output formatting
type Handler interface {
	DisplayPlan(ctx context.Context, records []*models.StructureRecord) error
	DisplaySummary(ctx context.Context, summary *models.RunSummary) error
	DisplayRuns(ctx context.Context, runs []*models.RunSummary) error
	DisplayAudit(ctx context.Context, entries []*models.AuditEntry) error
	Format() string
}

// NewHandler returns the handler for a format name
func NewHandler(format string, w io.Writer) (Handler, error) {
	switch format {
	case "text", "":
		return &TextHandler{w: w}, nil
	case "json":
		return &JSONHandler{w: w}, nil
	case "csv":
		return &CSVHandler{w: w}, nil
	default:
		return nil, fmt.Errorf("output must be text, json, or csv (got %q)", format)
	}
}
