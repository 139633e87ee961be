package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// AttendanceStatus represents the lifecycle state of an attendance record.
type AttendanceStatus string

const (
	AttendanceUnmarked AttendanceStatus = "UNMARKED"
	AttendancePresent  AttendanceStatus = "PRESENT"
	AttendanceAbsent   AttendanceStatus = "ABSENT"
	AttendanceLate     AttendanceStatus = "LATE"
	AttendanceVerified AttendanceStatus = "VERIFIED"
	AttendanceFlagged  AttendanceStatus = "FLAGGED"
	AttendanceRevoked  AttendanceStatus = "REVOKED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceUnmarked, AttendancePresent, AttendanceAbsent, AttendanceLate,
		AttendanceVerified, AttendanceFlagged, AttendanceRevoked:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions may leave this status.
func (s AttendanceStatus) Terminal() bool {
	return s == AttendanceRevoked
}

// AttendanceRecord is one subject's attendance for one session. Records are
// never hard-deleted; REVOKED is the terminal state.
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	TenantID     string           `db:"tenant_id" json:"tenantId"`
	SubjectID    string           `db:"subject_id" json:"subjectId"`
	SessionID    string           `db:"session_id" json:"sessionId"`
	Status       AttendanceStatus `db:"status" json:"status"`
	StatusReason string           `db:"status_reason" json:"statusReason"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updatedAt"`
}

// Snapshot returns the ledger before/after image for the record. Bookkeeping
// timestamps are excluded so images stay stable across re-reads.
func (r *AttendanceRecord) Snapshot() map[string]any {
	return map[string]any{
		"id":           r.ID,
		"tenantId":     r.TenantID,
		"subjectId":    r.SubjectID,
		"sessionId":    r.SessionID,
		"status":       string(r.Status),
		"statusReason": r.StatusReason,
	}
}

// AttendanceFilter constrains record listings.
type AttendanceFilter struct {
	TenantID  string
	SessionID string
	SubjectID string
	Status    *AttendanceStatus
	Page      int
	PageSize  int
}

// Transition is one directed edge in the attendance state machine.
type Transition struct {
	From AttendanceStatus
	To   AttendanceStatus
}

// TransitionPolicy is the explicit set of permitted status transitions.
// Legality is a set lookup, never conditional logic, so the full table can
// be enumerated and audited.
type TransitionPolicy struct {
	allowed map[Transition]struct{}
}

// DefaultTransitionPolicy returns the built-in attendance state machine:
// initial marking from UNMARKED, review to VERIFIED or FLAGGED, flag
// investigation to VERIFIED or REVOKED, audit override of VERIFIED, and the
// documented-appeal edge ABSENT→PRESENT. REVOKED has no outgoing edges.
func DefaultTransitionPolicy() *TransitionPolicy {
	return newTransitionPolicy([]Transition{
		{AttendanceUnmarked, AttendancePresent},
		{AttendanceUnmarked, AttendanceAbsent},
		{AttendanceUnmarked, AttendanceLate},
		{AttendancePresent, AttendanceVerified},
		{AttendancePresent, AttendanceFlagged},
		{AttendanceAbsent, AttendanceVerified},
		{AttendanceAbsent, AttendanceFlagged},
		{AttendanceAbsent, AttendancePresent},
		{AttendanceLate, AttendanceVerified},
		{AttendanceLate, AttendanceFlagged},
		{AttendanceFlagged, AttendanceVerified},
		{AttendanceFlagged, AttendanceRevoked},
		{AttendanceVerified, AttendanceRevoked},
	})
}

// ParseTransitionPolicy builds a policy from "FROM>TO" pairs separated by
// commas. An empty input returns the default policy; malformed pairs or
// unknown statuses are configuration errors.
func ParseTransitionPolicy(raw string) (*TransitionPolicy, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultTransitionPolicy(), nil
	}

	var edges []Transition
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ">")
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed transition %q: want FROM>TO", pair)
		}
		from := AttendanceStatus(strings.TrimSpace(parts[0]))
		to := AttendanceStatus(strings.TrimSpace(parts[1]))
		if !from.Valid() || !to.Valid() {
			return nil, fmt.Errorf("transition %q references an unknown status", pair)
		}
		if from.Terminal() {
			return nil, fmt.Errorf("transition %q leaves terminal status %s", pair, from)
		}
		edges = append(edges, Transition{From: from, To: to})
	}
	if len(edges) == 0 {
		return nil, fmt.Errorf("transition override contains no valid pairs")
	}
	return newTransitionPolicy(edges), nil
}

func newTransitionPolicy(edges []Transition) *TransitionPolicy {
	allowed := make(map[Transition]struct{}, len(edges))
	for _, e := range edges {
		allowed[e] = struct{}{}
	}
	return &TransitionPolicy{allowed: allowed}
}

// Allowed reports whether the from→to edge is in the table.
func (p *TransitionPolicy) Allowed(from, to AttendanceStatus) bool {
	_, ok := p.allowed[Transition{From: from, To: to}]
	return ok
}

// Successors returns the permitted target statuses for from, sorted for
// deterministic error messages.
func (p *TransitionPolicy) Successors(from AttendanceStatus) []AttendanceStatus {
	var out []AttendanceStatus
	for edge := range p.allowed {
		if edge.From == from {
			out = append(out, edge.To)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
