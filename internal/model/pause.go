package model

import (
	"time"
)

// Pause and resume reason classifications.
const (
	PauseReasonSDRIntervention     = "sdr_intervention"
	ResumeReasonSDRCommand         = "sdr_command"
	ResumeReasonOutsideHours       = "auto_resume_outside_hours"
	AutoResumeBlockedWithinHours   = "within_business_hours"
	AutoResumeEligibleOutsideHours = "outside_business_hours"
)

// PauseState is the current agent pause state for one conversation, keyed by
// normalized phone. Only the current state is retained; transitions overwrite
// the previous record.
type PauseState struct {
	Paused     bool   `json:"paused"`
	Reason     string `json:"reason,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	SenderID   string `json:"sender_id,omitempty"`

	ResumeReason string `json:"resume_reason,omitempty"`
	ResumedBy    string `json:"resumed_by,omitempty"`

	PausedAt  *time.Time `json:"paused_at,omitempty"`
	ResumedAt *time.Time `json:"resumed_at,omitempty"`

	// Business-hours snapshots at transition time, kept for audit.
	BusinessHoursAtPause  *bool `json:"business_hours_at_pause,omitempty"`
	BusinessHoursAtResume *bool `json:"business_hours_at_resume,omitempty"`
}
