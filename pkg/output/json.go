package output

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/opscart/index-maint/pkg/models"
)

// JSONHandler prints indented JSON documents
type JSONHandler struct {
	w io.Writer
}

func (h *JSONHandler) Format() string { return "json" }

func (h *JSONHandler) encode(v any) error {
	encoder := json.NewEncoder(h.w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (h *JSONHandler) DisplayPlan(ctx context.Context, records []*models.StructureRecord) error {
	if records == nil {
		records = []*models.StructureRecord{}
	}
	return h.encode(map[string]interface{}{
		"entries":   records,
		"count":     len(records),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *JSONHandler) DisplaySummary(ctx context.Context, summary *models.RunSummary) error {
	return h.encode(summary)
}

func (h *JSONHandler) DisplayRuns(ctx context.Context, runs []*models.RunSummary) error {
	if runs == nil {
		runs = []*models.RunSummary{}
	}
	return h.encode(runs)
}

func (h *JSONHandler) DisplayAudit(ctx context.Context, entries []*models.AuditEntry) error {
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	return h.encode(entries)
}
