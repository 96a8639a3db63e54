package models

import (
	"fmt"
	"strings"
	"time"
)

// ActionType represents the maintenance recommended for a structure
type ActionType string

const (
	ActionNone       ActionType = "NONE"
	ActionReorganize ActionType = "REORGANIZE"
	ActionRebuild    ActionType = "REBUILD"
)

// Rank orders actions for execution: rebuilds before reorganizes
func (a ActionType) Rank() int {
	switch a {
	case ActionRebuild:
		return 0
	case ActionReorganize:
		return 1
	default:
		return 2
	}
}

// RebuildFillFactor is the fill factor applied by every rebuild
const RebuildFillFactor = 90

// Command is a structured maintenance instruction. Dialects render it into
// statements; it is never spliced together from raw strings.
type Command struct {
	Target     string     `json:"target"`
	Verb       ActionType `json:"verb"`
	Schema     string     `json:"schema"`
	Object     string     `json:"object"`
	Index      string     `json:"index"`
	FillFactor int        `json:"fill_factor,omitempty"`
	Online     bool       `json:"online"`
}

// String returns a dialect-neutral description of the command
func (c Command) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s INDEX %s ON %s.%s.%s", c.Verb, c.Index, c.Target, c.Schema, c.Object)
	if c.FillFactor > 0 {
		fmt.Fprintf(&b, " WITH (FILLFACTOR = %d", c.FillFactor)
		if c.Online {
			b.WriteString(", ONLINE = ON)")
		} else {
			b.WriteString(", ONLINE = OFF)")
		}
	}
	return b.String()
}

// StatusType is the execution state of a structure record
type StatusType string

const (
	StatusPending StatusType = "PENDING"
	StatusSuccess StatusType = "SUCCESS"
	StatusFailed  StatusType = "FAILED"
)

// Rank orders statuses for the report detail: failures first
func (s StatusType) Rank() int {
	switch s {
	case StatusFailed:
		return 0
	case StatusSuccess:
		return 1
	default:
		return 2
	}
}

// StructureRecord represents one index inside one target together with
// its classification and execution outcome
type StructureRecord struct {
	Target     string     `json:"target"`
	Schema     string     `json:"schema"`
	Object     string     `json:"object"`
	ObjectKind ObjectKind `json:"object_kind"`
	Index      string     `json:"index"`
	IndexType  string     `json:"index_type"`

	// Analysis
	FragmentationPercent float64 `json:"fragmentation_percent"`
	SizeUnits            int64   `json:"size_units"`

	// Classification
	Action  ActionType `json:"action"`
	Command *Command   `json:"command,omitempty"`

	// Execution
	Status StatusType `json:"status"`
	Reason string     `json:"reason,omitempty"`
}

// Actionable reports whether the record carries a maintenance command
func (r *StructureRecord) Actionable() bool {
	return r.Action != ActionNone && r.Command != nil
}

// MarkSuccess moves a pending record to SUCCESS. It returns false when the
// record already left PENDING.
func (r *StructureRecord) MarkSuccess() bool {
	if r.Status != StatusPending {
		return false
	}
	r.Status = StatusSuccess
	return true
}

// MarkFailed moves a pending record to FAILED with the given reason
func (r *StructureRecord) MarkFailed(reason string) bool {
	if r.Status != StatusPending {
		return false
	}
	r.Status = StatusFailed
	r.Reason = reason
	return true
}

// QualifiedName returns target.schema.object.index
func (r *StructureRecord) QualifiedName() string {
	return fmt.Sprintf("%s.%s.%s.%s", r.Target, r.Schema, r.Object, r.Index)
}

// AuditEntry represents an action recorded in the run history
type AuditEntry struct {
	ID                   string
	RunID                string
	Target               string
	Schema               string
	Object               string
	ObjectKind           ObjectKind
	Index                string
	Action               ActionType
	Status               StatusType
	ErrorMessage         string
	FragmentationPercent float64
	SizeUnits            int64
	Command              string
	RecordedAt           time.Time
}
