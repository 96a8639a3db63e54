package models

import "time"

// Headline is the one-line classification of a finished run
type Headline string

const (
	HeadlineErrors    Headline = "errors encountered"
	HeadlineCompleted Headline = "maintenance completed"
	HeadlineNoAction  Headline = "no action required"
)

// TargetStats holds counters for one target
type TargetStats struct {
	Target      string `json:"target"`
	Structures  int    `json:"structures"`
	Actionable  int    `json:"actionable"`
	Rebuilds    int    `json:"rebuilds"`
	Reorganizes int    `json:"reorganizes"`
	Errors      int    `json:"errors"`
	Pending     int    `json:"pending"`
}

// TargetFailure records a target that could not be scanned
type TargetFailure struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// RunSummary is the aggregate outcome of one run. It is derived from the
// final plan and not modified afterwards.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Scope      string    `json:"scope"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	TargetsProcessed     int `json:"targets_processed"`
	StructuresAnalyzed   int `json:"structures_analyzed"`
	RebuildsPerformed    int `json:"rebuilds_performed"`
	ReorganizesPerformed int `json:"reorganizes_performed"`
	Errors               int `json:"errors"`
	TargetErrors         int `json:"target_errors"`
	Pending              int `json:"pending"`

	AnalysisOnly bool     `json:"analysis_only"`
	Headline     Headline `json:"headline"`

	Targets            []TargetStats   `json:"targets,omitempty"`
	UnreachableTargets []TargetFailure `json:"unreachable_targets,omitempty"`

	Detail        string `json:"detail"`
	DetailEntries int    `json:"detail_entries"`
	DetailOmitted int    `json:"detail_omitted"`
}

// Degraded reports whether at least one maintenance command failed
func (s *RunSummary) Degraded() bool {
	return s.Errors > 0
}
