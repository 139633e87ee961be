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

const attendanceColumns = `id, tenant_id, subject_id, session_id, status, status_reason, created_at, updated_at`

// AttendanceRepository persists attendance records. Every mutation rides a
// transaction that also appends the matching ledger entries, so a state
// change and its history are committed together or not at all.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// GetByID fetches a record by identifier.
func (r *AttendanceRepository) GetByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE id = $1`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetByIdentity fetches the record for one subject in one session.
func (r *AttendanceRepository) GetByIdentity(ctx context.Context, tenantID, subjectID, sessionID string) (*models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records
	WHERE tenant_id = $1 AND subject_id = $2 AND session_id = $3 LIMIT 1`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, tenantID, subjectID, sessionID); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns records matching the filter with total count.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	baseQuery := `FROM attendance_records WHERE tenant_id = $1`
	args := []interface{}{filter.TenantID}

	var conditions []string
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY updated_at DESC LIMIT %d OFFSET %d",
		attendanceColumns, baseQuery, pageSize, offset)

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + baseQuery
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}

	return records, total, nil
}

// CreateWithEntries inserts a brand-new record together with its ledger
// entries in one transaction. A concurrent insert for the same
// (tenant, subject, session) identity surfaces as sql.ErrNoRows so the
// caller can report the lost race.
func (r *AttendanceRepository) CreateWithEntries(ctx context.Context, record *models.AttendanceRecord, entries ...*models.LedgerEntry) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance create transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO attendance_records
	(id, tenant_id, subject_id, session_id, status, status_reason, created_at, updated_at)
	VALUES (:id, :tenant_id, :subject_id, :session_id, :status, :status_reason, :created_at, :updated_at)
	ON CONFLICT (tenant_id, subject_id, session_id) DO NOTHING`
	result, err := sqlx.NamedExecContext(ctx, tx, insertQuery, record)
	if err != nil {
		return fmt.Errorf("create attendance record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check attendance create rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}

	for _, entry := range entries {
		if err = insertLedgerEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance create: %w", err)
	}
	return nil
}

// TransitionParams groups the values for one status transition.
type TransitionParams struct {
	RecordID   string
	FromStatus models.AttendanceStatus
	ToStatus   models.AttendanceStatus
	Reason     string
	UpdatedAt  time.Time
	Entry      *models.LedgerEntry
}

// Transition applies a conditional status update and appends the transition
// ledger entry in the same transaction. The update only matches while the
// row still holds FromStatus; a stale status means a concurrent writer won,
// surfaced as sql.ErrNoRows.
func (r *AttendanceRepository) Transition(ctx context.Context, params TransitionParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const updateQuery = `UPDATE attendance_records
	SET status = $1, status_reason = $2, updated_at = $3
	WHERE id = $4 AND status = $5`
	result, err := tx.ExecContext(ctx, updateQuery,
		params.ToStatus, params.Reason, params.UpdatedAt, params.RecordID, params.FromStatus)
	if err != nil {
		return fmt.Errorf("update attendance status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = insertLedgerEntry(ctx, tx, params.Entry); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}
