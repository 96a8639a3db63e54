package models

import (
	"errors"
	"fmt"
)

// ErrTargetNotFound is returned by discovery when a SPECIFIC target is absent
var ErrTargetNotFound = errors.New("target not found")

// ConfigurationError is fatal and aborts a run before any processing
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// TargetUnavailableError means one target could not be scanned
type TargetUnavailableError struct {
	Target string
	Err    error
}

func (e *TargetUnavailableError) Error() string {
	return fmt.Sprintf("target %s unavailable: %v", e.Target, e.Err)
}

func (e *TargetUnavailableError) Unwrap() error { return e.Err }

// MutationError means one maintenance command failed
type MutationError struct {
	Command Command
	Err     error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Command.String(), e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// StatsRefreshError is logged only and never counted as a run error
type StatsRefreshError struct {
	Target string
	Schema string
	Object string
	Err    error
}

func (e *StatsRefreshError) Error() string {
	return fmt.Sprintf("statistics refresh on %s.%s.%s failed: %v", e.Target, e.Schema, e.Object, e.Err)
}

func (e *StatsRefreshError) Unwrap() error { return e.Err }

// ReportDeliveryError means the final report could not be sent
type ReportDeliveryError struct {
	Channel string
	Err     error
}

func (e *ReportDeliveryError) Error() string {
	return fmt.Sprintf("report delivery via %s failed: %v", e.Channel, e.Err)
}

func (e *ReportDeliveryError) Unwrap() error { return e.Err }
