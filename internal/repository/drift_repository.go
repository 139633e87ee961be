package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/smartattend/integrity-api/internal/models"
)

const driftColumns = `id, tenant_id, user_id, client_ts, server_ts, drift_seconds, severity, decision,
       action_kind, attendance_affected, correlation_id, created_at`

// DriftRepository persists drift events. Events are written once by the
// async pipeline and only ever read afterwards.
type DriftRepository struct {
	db *sqlx.DB
}

// NewDriftRepository constructs the repository.
func NewDriftRepository(db *sqlx.DB) *DriftRepository {
	return &DriftRepository{db: db}
}

// Insert stores one drift event.
func (r *DriftRepository) Insert(ctx context.Context, event *models.DriftEvent) error {
	const query = `INSERT INTO drift_events
	(id, tenant_id, user_id, client_ts, server_ts, drift_seconds, severity, decision, action_kind, attendance_affected, correlation_id, created_at)
	VALUES (:id, :tenant_id, :user_id, :client_ts, :server_ts, :drift_seconds, :severity, :decision, :action_kind, :attendance_affected, :correlation_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("insert drift event: %w", err)
	}
	return nil
}

// List returns drift events matching the filter with total count, latest
// first.
func (r *DriftRepository) List(ctx context.Context, filter models.DriftEventFilter) ([]models.DriftEvent, int, error) {
	baseQuery := `FROM drift_events`
	var args []interface{}

	var conditions []string
	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Severity != nil {
		args = append(args, *filter.Severity)
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)))
	}
	if filter.Decision != nil {
		args = append(args, *filter.Decision)
		conditions = append(conditions, fmt.Sprintf("decision = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
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
		driftColumns, baseQuery, pageSize, offset)

	var events []models.DriftEvent
	if err := r.db.SelectContext(ctx, &events, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list drift events: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + baseQuery
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count drift events: %w", err)
	}

	return events, total, nil
}

// Stats aggregates drift events for one tenant over a time window.
func (r *DriftRepository) Stats(ctx context.Context, tenantID string, from, to time.Time) (*models.DriftStats, error) {
	const query = `SELECT
	COUNT(*) AS total,
	COUNT(*) FILTER (WHERE severity = 'INFO') AS info_count,
	COUNT(*) FILTER (WHERE severity = 'WARNING') AS warning_count,
	COUNT(*) FILTER (WHERE severity = 'CRITICAL') AS critical_count,
	COUNT(*) FILTER (WHERE decision = 'BLOCK') AS blocked_count,
	COALESCE(AVG(ABS(drift_seconds)), 0) AS mean_abs_drift
	FROM drift_events
	WHERE tenant_id = $1 AND created_at >= $2 AND created_at <= $3`

	var stats models.DriftStats
	if err := r.db.GetContext(ctx, &stats, query, tenantID, from, to); err != nil {
		return nil, fmt.Errorf("aggregate drift stats: %w", err)
	}
	stats.TenantID = tenantID
	stats.From = from
	stats.To = to
	return &stats, nil
}
