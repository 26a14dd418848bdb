package model

import (
	"strings"
	"time"
)

// AlertType identifies the monitored condition an alert reports.
type AlertType string

const (
	AlertErrorRateHigh   AlertType = "error_rate_high"
	AlertLatencyHigh     AlertType = "latency_high"
	AlertAuthFailure     AlertType = "auth_failure"
	AlertIntegrationDown AlertType = "integration_down"
	AlertPendingBacklog  AlertType = "pending_backlog"
	AlertPermanentFails  AlertType = "permanent_failures"
)

// Severity is the alert severity level.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Alert is an ephemeral notification value; alerts are never persisted.
type Alert struct {
	Type        AlertType      `json:"alert_type"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Integration string         `json:"integration,omitempty"`
	Endpoint    string         `json:"endpoint,omitempty"`
	Value       float64        `json:"value,omitempty"`
	Threshold   float64        `json:"threshold,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// DedupKey returns the deduplication key for debounce bookkeeping: type,
// integration and endpoint, with absent segments omitted.
func (a *Alert) DedupKey() string {
	parts := []string{string(a.Type)}
	if a.Integration != "" {
		parts = append(parts, a.Integration)
	}
	if a.Endpoint != "" {
		parts = append(parts, a.Endpoint)
	}
	return strings.Join(parts, ":")
}
