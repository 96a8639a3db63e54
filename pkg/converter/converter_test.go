package converter

import (
	"testing"
	"time"

	"github.com/opscart/index-maint/pkg/classifier"
	"github.com/opscart/index-maint/pkg/models"
)

func TestRecordsToAuditEntries(t *testing.T) {
	policy := models.DefaultPolicy()
	failed := classifier.NewRecord("sales", models.RawStructure{
		Schema: "dbo", Object: "orders", Kind: models.ObjectTable, Index: "ix_a",
		FragmentationPercent: 45, SizeUnits: 5000,
	}, policy)
	failed.MarkFailed("deadlock")

	idle := classifier.NewRecord("sales", models.RawStructure{
		Schema: "dbo", Object: "orders", Kind: models.ObjectTable, Index: "ix_b",
		FragmentationPercent: 1, SizeUnits: 5000,
	}, policy)

	at := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	entries := RecordsToAuditEntries("run-1", []*models.StructureRecord{failed, idle}, at)

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.RunID != "run-1" || e.Index != "ix_a" || e.Status != models.StatusFailed {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.ErrorMessage != "deadlock" {
		t.Errorf("expected error message to be copied, got %q", e.ErrorMessage)
	}
	if e.Command != "REBUILD INDEX ix_a ON sales.dbo.orders WITH (FILLFACTOR = 90, ONLINE = OFF)" {
		t.Errorf("unexpected command: %s", e.Command)
	}
	if !e.RecordedAt.Equal(at) {
		t.Errorf("expected recorded time %v, got %v", at, e.RecordedAt)
	}
}

func TestAuditEntryToRecord(t *testing.T) {
	entry := &models.AuditEntry{
		Target: "sales", Schema: "dbo", Object: "orders", ObjectKind: models.ObjectView,
		Index: "ix_v", Action: models.ActionReorganize, Status: models.StatusSuccess,
		FragmentationPercent: 12.5, SizeUnits: 2000,
	}

	rec := AuditEntryToRecord(entry)
	if rec.QualifiedName() != "sales.dbo.orders.ix_v" {
		t.Errorf("unexpected name %s", rec.QualifiedName())
	}
	if rec.Action != models.ActionReorganize || rec.Status != models.StatusSuccess {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Command != nil {
		t.Error("expected no command on a rebuilt record")
	}
}
