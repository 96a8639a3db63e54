// Package plan holds the in-memory maintenance plan of a single run.
package plan

import (
	"sort"
	"sync"

	"github.com/opscart/index-maint/pkg/models"
)

// Plan is the ordered collection of structure records across all targets.
// It is owned by one run; AddTarget is safe for concurrent use.
type Plan struct {
	mu      sync.Mutex
	targets []models.Target
	records []*models.StructureRecord
}

// New creates an empty plan
func New() *Plan {
	return &Plan{}
}

// AddTarget records a scanned target and appends its structures
func (p *Plan) AddTarget(target models.Target, records []*models.StructureRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.targets = append(p.targets, target)
	p.records = append(p.records, records...)
}

// Targets returns the targets that contributed to the plan
func (p *Plan) Targets() []models.Target {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.Target, len(p.targets))
	copy(out, p.targets)
	return out
}

// Records returns all records in insertion order
func (p *Plan) Records() []*models.StructureRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*models.StructureRecord, len(p.records))
	copy(out, p.records)
	return out
}

// Len returns the number of records
func (p *Plan) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Actionable returns records whose action is not NONE, in insertion order
func (p *Plan) Actionable() []*models.StructureRecord {
	var out []*models.StructureRecord
	for _, rec := range p.Records() {
		if rec.Actionable() {
			out = append(out, rec)
		}
	}
	return out
}

// ExecutionOrder returns the actionable records in the order they must be
// executed: target ascending, tables before views, rebuilds before
// reorganizes, then worst fragmentation first.
func (p *Plan) ExecutionOrder() []*models.StructureRecord {
	entries := p.Actionable()
	sort.SliceStable(entries, func(i, j int) bool {
		return executesBefore(entries[i], entries[j])
	})
	return entries
}

func executesBefore(a, b *models.StructureRecord) bool {
	if a.Target != b.Target {
		return a.Target < b.Target
	}
	if a.ObjectKind.Rank() != b.ObjectKind.Rank() {
		return a.ObjectKind.Rank() < b.ObjectKind.Rank()
	}
	if a.Action.Rank() != b.Action.Rank() {
		return a.Action.Rank() < b.Action.Rank()
	}
	if a.FragmentationPercent != b.FragmentationPercent {
		return a.FragmentationPercent > b.FragmentationPercent
	}
	// Stable tie-break so repeated runs execute identically
	if a.Schema != b.Schema {
		return a.Schema < b.Schema
	}
	if a.Object != b.Object {
		return a.Object < b.Object
	}
	return a.Index < b.Index
}
