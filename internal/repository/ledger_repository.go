package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/smartattend/integrity-api/internal/models"
)

const ledgerColumns = `id, seq, scope, tenant_id, user_id, actor_id, action_type, resource_type, resource_id,
       before_state, after_state, reason, correlation_id, occurred_at, checksum`

// LedgerRepository persists the append-only audit ledger. No method ever
// issues UPDATE or DELETE against ledger_entries; the schema additionally
// rejects both at the trigger level, so even a privileged SQL client cannot
// rewrite history.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// insertLedgerEntry appends one entry using the supplied executor, so the
// same statement serves standalone appends and entries riding a caller's
// transaction.
func insertLedgerEntry(ctx context.Context, ext sqlx.ExtContext, entry *models.LedgerEntry) error {
	const query = `INSERT INTO ledger_entries
	(id, scope, tenant_id, user_id, actor_id, action_type, resource_type, resource_id, before_state, after_state, reason, correlation_id, occurred_at, checksum)
	VALUES (:id, :scope, :tenant_id, :user_id, :actor_id, :action_type, :resource_type, :resource_id, :before_state, :after_state, :reason, :correlation_id, :occurred_at, :checksum)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// Append inserts a single entry outside any caller transaction.
func (r *LedgerRepository) Append(ctx context.Context, entry *models.LedgerEntry) error {
	return insertLedgerEntry(ctx, r.db, entry)
}

// GetByID fetches one entry by identifier.
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE id = $1`
	var entry models.LedgerEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByResource returns the full history of one entity, oldest first, so
// callers can replay the sequence of changes. seq breaks timestamp ties in
// insertion order; entries written in one request share a truncated
// occurred_at.
func (r *LedgerRepository) ListByResource(ctx context.Context, resourceType, resourceID string) ([]models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
	WHERE resource_type = $1 AND resource_id = $2
	ORDER BY occurred_at ASC, seq ASC`
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, resourceType, resourceID); err != nil {
		return nil, fmt.Errorf("list ledger entries by resource: %w", err)
	}
	return entries, nil
}

// ListByScope returns entries for one visibility tier with total count.
// Authorization happens in the service layer; this only filters.
func (r *LedgerRepository) ListByScope(ctx context.Context, q models.LedgerScopeQuery) ([]models.LedgerEntry, int, error) {
	baseQuery := `FROM ledger_entries WHERE scope = $1`
	args := []interface{}{q.Scope}

	var conditions []string
	switch q.Scope {
	case models.ScopeTenant, models.ScopeAttendance:
		args = append(args, q.TenantID)
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(args)))
	case models.ScopeUser:
		args = append(args, q.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
		if q.TenantID != "" {
			args = append(args, q.TenantID)
			conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(args)))
		}
	}
	if q.From != nil {
		args = append(args, *q.From)
		conditions = append(conditions, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if q.To != nil {
		args = append(args, *q.To)
		conditions = append(conditions, fmt.Sprintf("occurred_at <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY occurred_at DESC, seq DESC LIMIT %d OFFSET %d",
		ledgerColumns, baseQuery, pageSize, offset)

	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list ledger entries by scope: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + baseQuery
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries by scope: %w", err)
	}

	return entries, total, nil
}

// ListSince pages through entries written at or after the watermark, oldest
// first. The ledger is append-only, so offset pagination is stable here.
func (r *LedgerRepository) ListSince(ctx context.Context, since time.Time, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM ledger_entries
	WHERE occurred_at >= $1
	ORDER BY occurred_at ASC, seq ASC LIMIT %d OFFSET %d`, ledgerColumns, limit, offset)

	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, since); err != nil {
		return nil, fmt.Errorf("list ledger entries since %s: %w", since.Format(time.RFC3339), err)
	}
	return entries, nil
}
