package alerting

import "time"

// Severity classifies how far outside its threshold band a value fell.
type Severity string

const (
	// SeverityWarning means the value left the warning band but is still
	// inside the critical band.
	SeverityWarning Severity = "warning"

	// SeverityCritical means the value left the critical band.
	SeverityCritical Severity = "critical"
)

// AlertStatus tracks the acknowledgment workflow.
type AlertStatus string

const (
	// StatusActive means the alert is unacknowledged and unresolved.
	StatusActive AlertStatus = "active"

	// StatusAcknowledged means an operator has seen the alert but the
	// condition may still hold. Still counts as unresolved for cooldown.
	StatusAcknowledged AlertStatus = "acknowledged"

	// StatusResolved means the condition cleared or was closed out.
	StatusResolved AlertStatus = "resolved"
)

// Alert is one deduplicated threshold breach record.
// This matches the alerts table in migrations.
type Alert struct {
	// ID is an opaque UUID assigned at creation.
	ID string `json:"id"`

	// DeviceID and Parameter identify the breach source. At most one
	// unresolved alert exists per (DeviceID, Parameter) pair inside the
	// cooldown window.
	DeviceID  string `json:"device_id"`
	Parameter string `json:"parameter"`

	Severity Severity `json:"severity"`

	// Value is the reading that triggered the alert; Threshold is the
	// bound it crossed.
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`

	Message string      `json:"message"`
	Status  AlertStatus `json:"status"`

	// OccurrenceCount is how many breaches this record has absorbed.
	// Repeat breaches inside the cooldown window increment it instead of
	// creating new records.
	OccurrenceCount int       `json:"occurrence_count"`
	FirstOccurrence time.Time `json:"first_occurrence"`
	LastOccurrence  time.Time `json:"last_occurrence"`

	// CurrentValue is the most recent breaching value.
	CurrentValue float64 `json:"current_value"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
