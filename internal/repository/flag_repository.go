package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/smartattend/integrity-api/internal/models"
)

const flagColumns = `id, attendance_record_id, tenant_id, flag_type, severity, state, raised_by, reason,
       resolution, resolved_by, resolved_at, created_at`

// FlagRepository persists integrity flags. The schema's partial unique
// index keeps at most one OPEN flag per (record, type), which is what makes
// raising idempotent under concurrency.
type FlagRepository struct {
	db *sqlx.DB
}

// NewFlagRepository constructs the repository.
func NewFlagRepository(db *sqlx.DB) *FlagRepository {
	return &FlagRepository{db: db}
}

// Create inserts an OPEN flag and its FLAG_RAISED ledger entry in one
// transaction. When an open flag of the same type already exists on the
// record the insert is skipped, no ledger entry is written, and created is
// false so the caller can return the existing flag instead.
func (r *FlagRepository) Create(ctx context.Context, flag *models.IntegrityFlag, entry *models.LedgerEntry) (created bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin flag create transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO integrity_flags
	(id, attendance_record_id, tenant_id, flag_type, severity, state, raised_by, reason, created_at)
	VALUES (:id, :attendance_record_id, :tenant_id, :flag_type, :severity, :state, :raised_by, :reason, :created_at)
	ON CONFLICT (attendance_record_id, flag_type) WHERE state = 'OPEN' DO NOTHING`
	result, err := sqlx.NamedExecContext(ctx, tx, insertQuery, flag)
	if err != nil {
		return false, fmt.Errorf("create integrity flag: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check flag create rows: %w", err)
	}
	if rows == 0 {
		if err = tx.Commit(); err != nil {
			return false, fmt.Errorf("commit idempotent flag create: %w", err)
		}
		return false, nil
	}

	if err = insertLedgerEntry(ctx, tx, entry); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit flag create: %w", err)
	}
	return true, nil
}

// GetByID fetches one flag by identifier.
func (r *FlagRepository) GetByID(ctx context.Context, id string) (*models.IntegrityFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM integrity_flags WHERE id = $1`
	var flag models.IntegrityFlag
	if err := r.db.GetContext(ctx, &flag, query, id); err != nil {
		return nil, err
	}
	return &flag, nil
}

// GetOpen fetches the open flag of one type on a record, if any.
func (r *FlagRepository) GetOpen(ctx context.Context, recordID string, flagType models.FlagType) (*models.IntegrityFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM integrity_flags
	WHERE attendance_record_id = $1 AND flag_type = $2 AND state = 'OPEN' LIMIT 1`
	var flag models.IntegrityFlag
	if err := r.db.GetContext(ctx, &flag, query, recordID, flagType); err != nil {
		return nil, err
	}
	return &flag, nil
}

// ResolveParams groups the values for resolving one flag.
type ResolveParams struct {
	FlagID     string
	Resolution string
	ResolvedBy string
	ResolvedAt time.Time
	Entry      *models.LedgerEntry
}

// Resolve moves an OPEN flag to RESOLVED and appends the FLAG_RESOLVED
// ledger entry in the same transaction. The update only matches while the
// flag is still open; sql.ErrNoRows means it was already resolved.
func (r *FlagRepository) Resolve(ctx context.Context, params ResolveParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flag resolve transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const updateQuery = `UPDATE integrity_flags
	SET state = 'RESOLVED', resolution = $1, resolved_by = $2, resolved_at = $3
	WHERE id = $4 AND state = 'OPEN'`
	result, err := tx.ExecContext(ctx, updateQuery,
		params.Resolution, params.ResolvedBy, params.ResolvedAt, params.FlagID)
	if err != nil {
		return fmt.Errorf("resolve integrity flag: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check flag resolve rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = insertLedgerEntry(ctx, tx, params.Entry); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit flag resolve: %w", err)
	}
	return nil
}

// List returns flags for one record or one tenant with total count.
func (r *FlagRepository) List(ctx context.Context, filter models.FlagFilter) ([]models.IntegrityFlag, int, error) {
	baseQuery := `FROM integrity_flags WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.RecordID != "" {
		args = append(args, filter.RecordID)
		conditions = append(conditions, fmt.Sprintf("attendance_record_id = $%d", len(args)))
	}
	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if !filter.IncludeResolved {
		conditions = append(conditions, fmt.Sprintf("state = '%s'", models.FlagOpen))
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		flagColumns, baseQuery, pageSize, offset)

	var flags []models.IntegrityFlag
	if err := r.db.SelectContext(ctx, &flags, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list integrity flags: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + baseQuery
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count integrity flags: %w", err)
	}

	return flags, total, nil
}
