package models

import "time"

// FlagType enumerates the supported integrity anomaly categories.
type FlagType string

const (
	FlagClockDrift          FlagType = "CLOCK_DRIFT_VIOLATION"
	FlagDuplicateSubmission FlagType = "DUPLICATE_SUBMISSION"
	FlagManualReview        FlagType = "MANUAL_REVIEW"
	FlagLocationMismatch    FlagType = "LOCATION_MISMATCH"
)

// Valid returns true when the flag type is a supported value.
func (t FlagType) Valid() bool {
	switch t {
	case FlagClockDrift, FlagDuplicateSubmission, FlagManualReview, FlagLocationMismatch:
		return true
	default:
		return false
	}
}

// FlagSeverity grades how urgently a flag needs review.
type FlagSeverity string

const (
	SeverityLow    FlagSeverity = "LOW"
	SeverityMedium FlagSeverity = "MEDIUM"
	SeverityHigh   FlagSeverity = "HIGH"
)

// Valid returns true when the severity is a supported value.
func (s FlagSeverity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// FlagState is the flag's own lifecycle, independent of the attendance
// record's status.
type FlagState string

const (
	FlagOpen     FlagState = "OPEN"
	FlagResolved FlagState = "RESOLVED"
)

// IntegrityFlag annotates an attendance record with a suspected integrity
// problem. At most one OPEN flag exists per (record, type); resolved flags
// accumulate as history.
type IntegrityFlag struct {
	ID                 string       `db:"id" json:"id"`
	AttendanceRecordID string       `db:"attendance_record_id" json:"attendanceRecordId"`
	TenantID           string       `db:"tenant_id" json:"tenantId"`
	FlagType           FlagType     `db:"flag_type" json:"flagType"`
	Severity           FlagSeverity `db:"severity" json:"severity"`
	State              FlagState    `db:"state" json:"state"`
	RaisedBy           string       `db:"raised_by" json:"raisedBy"`
	Reason             string       `db:"reason" json:"reason"`
	Resolution         *string      `db:"resolution" json:"resolution,omitempty"`
	ResolvedBy         *string      `db:"resolved_by" json:"resolvedBy,omitempty"`
	ResolvedAt         *time.Time   `db:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt          time.Time    `db:"created_at" json:"createdAt"`
}

// Snapshot returns the flag's stable fields for ledger before/after states.
// Timestamps are excluded so a snapshot depends only on what changed.
func (f *IntegrityFlag) Snapshot() map[string]any {
	snapshot := map[string]any{
		"id":                 f.ID,
		"attendanceRecordId": f.AttendanceRecordID,
		"tenantId":           f.TenantID,
		"flagType":           string(f.FlagType),
		"severity":           string(f.Severity),
		"state":              string(f.State),
		"raisedBy":           f.RaisedBy,
		"reason":             f.Reason,
	}
	if f.Resolution != nil {
		snapshot["resolution"] = *f.Resolution
	}
	if f.ResolvedBy != nil {
		snapshot["resolvedBy"] = *f.ResolvedBy
	}
	return snapshot
}

// FlagFilter constrains flag listings. RecordID and TenantID are
// alternatives; resolved flags are excluded unless IncludeResolved is set.
type FlagFilter struct {
	RecordID        string
	TenantID        string
	IncludeResolved bool
	Page            int
	PageSize        int
}
