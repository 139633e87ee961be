package models

import "time"

// LedgerScope partitions audit entries for read-side authorization.
type LedgerScope string

const (
	ScopeGlobal     LedgerScope = "GLOBAL"
	ScopeTenant     LedgerScope = "TENANT"
	ScopeUser       LedgerScope = "USER"
	ScopeAttendance LedgerScope = "ATTENDANCE"
)

// Valid returns true when the scope is a supported value.
func (s LedgerScope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeTenant, ScopeUser, ScopeAttendance:
		return true
	default:
		return false
	}
}

// Resource types recorded in ledger entries.
const (
	ResourceAttendanceRecord = "attendance_record"
	ResourceIntegrityFlag    = "integrity_flag"
)

// LedgerActionType enumerates the auditable action categories.
type LedgerActionType string

const (
	ActionStateTransition LedgerActionType = "STATE_TRANSITION"
	ActionFlagRaised      LedgerActionType = "FLAG_RAISED"
	ActionFlagResolved    LedgerActionType = "FLAG_RESOLVED"
	ActionDomainCreate    LedgerActionType = "DOMAIN_CREATE"
	ActionDomainUpdate    LedgerActionType = "DOMAIN_UPDATE"
	ActionDomainDelete    LedgerActionType = "DOMAIN_DELETE"
)

// Valid returns true when the action type is a supported value.
func (a LedgerActionType) Valid() bool {
	switch a {
	case ActionStateTransition, ActionFlagRaised, ActionFlagResolved,
		ActionDomainCreate, ActionDomainUpdate, ActionDomainDelete:
		return true
	default:
		return false
	}
}

// RequiresReason reports whether entries of this action type must carry a
// human-readable reason.
func (a LedgerActionType) RequiresReason() bool {
	switch a {
	case ActionStateTransition, ActionFlagRaised, ActionFlagResolved:
		return true
	default:
		return false
	}
}

// LedgerEntry is a single immutable audit record. Rows are insert-only:
// the schema rejects UPDATE and DELETE, and the repository exposes no
// mutating statement. BeforeState and AfterState hold JSON snapshots;
// creations leave BeforeState nil and deletions leave AfterState nil.
type LedgerEntry struct {
	ID            string           `db:"id" json:"id"`
	Seq           int64            `db:"seq" json:"-"` // assigned by the database at insert
	Scope         LedgerScope      `db:"scope" json:"scope"`
	TenantID      *string          `db:"tenant_id" json:"tenantId,omitempty"`
	UserID        *string          `db:"user_id" json:"userId,omitempty"`
	ActorID       *string          `db:"actor_id" json:"actorId,omitempty"`
	ActionType    LedgerActionType `db:"action_type" json:"actionType"`
	ResourceType  string           `db:"resource_type" json:"resourceType"`
	ResourceID    string           `db:"resource_id" json:"resourceId"`
	BeforeState   []byte           `db:"before_state" json:"beforeState,omitempty"`
	AfterState    []byte           `db:"after_state" json:"afterState,omitempty"`
	Reason        string           `db:"reason" json:"reason"`
	CorrelationID string           `db:"correlation_id" json:"correlationId,omitempty"`
	OccurredAt    time.Time        `db:"occurred_at" json:"occurredAt"`
	Checksum      string           `db:"checksum" json:"checksum"`
}

// LedgerScopeQuery constrains scope-based ledger reads.
type LedgerScopeQuery struct {
	Scope    LedgerScope
	TenantID string
	UserID   string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// LedgerResourceQuery constrains per-resource history reads.
type LedgerResourceQuery struct {
	ResourceType string
	ResourceID   string
}

// ExportFormat enumerates the renderings offered for audit-trail extracts.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// Valid returns true when the format is a supported value.
func (f ExportFormat) Valid() bool {
	switch f {
	case ExportFormatCSV, ExportFormatPDF:
		return true
	default:
		return false
	}
}

// IntegrityCheck reports the verification outcome for one ledger entry.
type IntegrityCheck struct {
	EntryID          string    `json:"entryId"`
	Valid            bool      `json:"valid"`
	StoredChecksum   string    `json:"storedChecksum"`
	ComputedChecksum string    `json:"computedChecksum"`
	CheckedAt        time.Time `json:"checkedAt"`
}

// IntegritySweep summarises a batched verification pass over the ledger.
type IntegritySweep struct {
	Since      time.Time        `json:"since"`
	Scanned    int              `json:"scanned"`
	Mismatched []IntegrityCheck `json:"mismatched"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
}
