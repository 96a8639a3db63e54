package converter

import (
	"time"

	"github.com/opscart/index-maint/pkg/models"
)

// RecordToAuditEntry converts a structure record into a history row
func RecordToAuditEntry(runID string, rec *models.StructureRecord, at time.Time) *models.AuditEntry {
	entry := &models.AuditEntry{
		RunID:                runID,
		Target:               rec.Target,
		Schema:               rec.Schema,
		Object:               rec.Object,
		ObjectKind:           rec.ObjectKind,
		Index:                rec.Index,
		Action:               rec.Action,
		Status:               rec.Status,
		ErrorMessage:         rec.Reason,
		FragmentationPercent: rec.FragmentationPercent,
		SizeUnits:            rec.SizeUnits,
		RecordedAt:           at,
	}
	if rec.Command != nil {
		entry.Command = rec.Command.String()
	}
	return entry
}

// RecordsToAuditEntries converts the actionable records of a run. Records
// without a command are not part of the audit trail.
func RecordsToAuditEntries(runID string, records []*models.StructureRecord, at time.Time) []*models.AuditEntry {
	entries := make([]*models.AuditEntry, 0, len(records))
	for _, rec := range records {
		if !rec.Actionable() {
			continue
		}
		entries = append(entries, RecordToAuditEntry(runID, rec, at))
	}
	return entries
}

// AuditEntryToRecord rebuilds a display record from a history row. The
// structured command is not stored, so the result carries none.
func AuditEntryToRecord(entry *models.AuditEntry) *models.StructureRecord {
	return &models.StructureRecord{
		Target:               entry.Target,
		Schema:               entry.Schema,
		Object:               entry.Object,
		ObjectKind:           entry.ObjectKind,
		Index:                entry.Index,
		FragmentationPercent: entry.FragmentationPercent,
		SizeUnits:            entry.SizeUnits,
		Action:               entry.Action,
		Status:               entry.Status,
		Reason:               entry.ErrorMessage,
	}
}
