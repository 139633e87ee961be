package dto

// RaiseFlagRequest opens an integrity flag against an attendance record.
type RaiseFlagRequest struct {
	RecordID string `json:"recordId" binding:"required"`
	FlagType string `json:"flagType" binding:"required,flag_type"`
	Severity string `json:"severity" binding:"required,flag_severity"`
	Reason   string `json:"reason" binding:"required"`
}

// ResolveFlagRequest closes an open flag with an explanation.
type ResolveFlagRequest struct {
	Resolution string `json:"resolution" binding:"required"`
}
