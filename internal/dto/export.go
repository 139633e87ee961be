package dto

// ExportTrailRequest asks for a rendered extract of the audit trail. The
// window bounds are RFC3339; a blank bound leaves that side open.
type ExportTrailRequest struct {
	Scope    string `json:"scope" binding:"required,ledger_scope"`
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
	From     string `json:"from"`
	To       string `json:"to"`
	Format   string `json:"format" binding:"required,export_format"`
}
