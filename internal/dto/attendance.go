package dto

import "time"

// CheckInRequest is the inbound attendance-taking payload. The client
// timestamp is optional; when present it is evaluated for clock drift
// before anything is written. Reason is validated by the state machine so
// a blank value surfaces as an invalid transition, not a malformed payload.
type CheckInRequest struct {
	TenantID        string     `json:"tenantId"`
	SubjectID       string     `json:"subjectId" binding:"required"`
	SessionID       string     `json:"sessionId" binding:"required"`
	Status          string     `json:"status" binding:"required,attendance_status"`
	Reason          string     `json:"reason"`
	ClientTimestamp *time.Time `json:"clientTimestamp"`
}

// TransitionRequest asks for one status change on an existing record.
type TransitionRequest struct {
	TargetStatus string `json:"targetStatus" binding:"required,attendance_status"`
	Reason       string `json:"reason"`
}
