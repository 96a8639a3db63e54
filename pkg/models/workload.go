package models

// ObjectKind is the kind of object that owns an index
type ObjectKind string

const (
	ObjectTable ObjectKind = "TABLE"
	ObjectView  ObjectKind = "VIEW"
)

// Rank orders object kinds for execution: tables before views
func (k ObjectKind) Rank() int {
	if k == ObjectView {
		return 1
	}
	return 0
}

// Scope selects which targets a run covers
type Scope string

const (
	ScopeCurrent     Scope = "CURRENT"
	ScopeAllEligible Scope = "ALL_ELIGIBLE"
	ScopeSpecific    Scope = "SPECIFIC"
)

// Target represents one database scanned during a run
type Target struct {
	Name string
	ID   string
}

// RawStructure is one index as reported by a metrics provider
type RawStructure struct {
	Schema    string
	Object    string
	Kind      ObjectKind
	Index     string
	IndexType string

	// Fragmentation in percent (0-100)
	FragmentationPercent float64

	// Size in pages
	SizeUnits int64

	Disabled bool
}

// Policy holds the thresholds a run classifies structures against.
// It is built once from configuration and never mutated.
type Policy struct {
	ReorganizeThreshold     float64
	RebuildThreshold        float64
	MinSizeUnits            int64
	ExecuteActions          bool
	IncludeSecondaryObjects bool
}

// DefaultPolicy returns the policy used when nothing is configured
func DefaultPolicy() Policy {
	return Policy{
		ReorganizeThreshold:     10.0,
		RebuildThreshold:        30.0,
		MinSizeUnits:            1000,
		ExecuteActions:          true,
		IncludeSecondaryObjects: true,
	}
}
