package models

import "time"

// DriftSeverity classifies the magnitude of clock drift.
type DriftSeverity string

const (
	DriftInfo     DriftSeverity = "INFO"
	DriftWarning  DriftSeverity = "WARNING"
	DriftCritical DriftSeverity = "CRITICAL"
)

// Valid returns true when the severity is a supported value.
func (s DriftSeverity) Valid() bool {
	switch s {
	case DriftInfo, DriftWarning, DriftCritical:
		return true
	default:
		return false
	}
}

// DriftDecision is the outcome of evaluating drift against an action kind.
type DriftDecision string

const (
	DecisionAllow        DriftDecision = "ALLOW"
	DecisionAllowAndFlag DriftDecision = "ALLOW_AND_FLAG"
	DecisionBlock        DriftDecision = "BLOCK"
)

// Valid returns true when the decision is a supported value.
func (d DriftDecision) Valid() bool {
	switch d {
	case DecisionAllow, DecisionAllowAndFlag, DecisionBlock:
		return true
	default:
		return false
	}
}

// ActionKind describes what the caller is about to do with the timestamp.
// Only attendance writes are ever blocked; reads and administrative actions
// are observed but always proceed.
type ActionKind string

const (
	KindAttendanceWrite ActionKind = "ATTENDANCE_WRITE"
	KindAttendanceRead  ActionKind = "ATTENDANCE_READ"
	KindAdministrative  ActionKind = "ADMIN_ACTION"
)

// Valid returns true when the action kind is a supported value.
func (k ActionKind) Valid() bool {
	switch k {
	case KindAttendanceWrite, KindAttendanceRead, KindAdministrative:
		return true
	default:
		return false
	}
}

// DriftEvent records one drift evaluation. Exactly one event is written per
// inbound request carrying a client timestamp, regardless of outcome, and
// events are never updated.
type DriftEvent struct {
	ID                 string        `db:"id" json:"id"`
	TenantID           string        `db:"tenant_id" json:"tenantId"`
	UserID             string        `db:"user_id" json:"userId"`
	ClientTimestamp    time.Time     `db:"client_ts" json:"clientTimestamp"`
	ServerTimestamp    time.Time     `db:"server_ts" json:"serverTimestamp"`
	DriftSeconds       int64         `db:"drift_seconds" json:"driftSeconds"`
	Severity           DriftSeverity `db:"severity" json:"severity"`
	Decision           DriftDecision `db:"decision" json:"decision"`
	ActionKind         ActionKind    `db:"action_kind" json:"actionKind"`
	AttendanceAffected bool          `db:"attendance_affected" json:"attendanceAffected"`
	CorrelationID      string        `db:"correlation_id" json:"correlationId,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"createdAt"`
}

// DriftAssessment is the synchronous result handed back to the caller of an
// evaluation; the DriftEvent row is persisted asynchronously.
type DriftAssessment struct {
	DriftSeconds    int64         `json:"driftSeconds"`
	Severity        DriftSeverity `json:"severity"`
	Decision        DriftDecision `json:"decision"`
	ServerTimestamp time.Time     `json:"serverTimestamp"`
}

// DriftEventFilter constrains drift event listings.
type DriftEventFilter struct {
	TenantID string
	UserID   string
	Severity *DriftSeverity
	Decision *DriftDecision
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// DriftStats aggregates drift events for a tenant and window.
type DriftStats struct {
	TenantID         string    `json:"tenantId"`
	From             time.Time `json:"from"`
	To               time.Time `json:"to"`
	Total            int       `db:"total" json:"total"`
	InfoCount        int       `db:"info_count" json:"infoCount"`
	WarningCount     int       `db:"warning_count" json:"warningCount"`
	CriticalCount    int       `db:"critical_count" json:"criticalCount"`
	BlockedCount     int       `db:"blocked_count" json:"blockedCount"`
	MeanAbsDriftSecs float64   `db:"mean_abs_drift" json:"meanAbsDriftSeconds"`
}
