package dto

import "encoding/json"

// AppendEntryRequest records a general domain audit entry. Attendance
// transitions and flag lifecycle entries are written by their own
// operations; this payload serves the platform's other subsystems.
type AppendEntryRequest struct {
	Scope        string          `json:"scope" binding:"required,ledger_scope"`
	TenantID     string          `json:"tenantId"`
	UserID       string          `json:"userId"`
	ActionType   string          `json:"actionType" binding:"required,ledger_action"`
	ResourceType string          `json:"resourceType" binding:"required"`
	ResourceID   string          `json:"resourceId" binding:"required"`
	BeforeState  json.RawMessage `json:"beforeState"`
	AfterState   json.RawMessage `json:"afterState"`
	Reason       string          `json:"reason"`
}
