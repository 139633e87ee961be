package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/pkg/config"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
)

// ledgerStore is the persistence surface the ledger service uses. It carries
// no update or delete operation; immutability is enforced here and by the
// database trigger independently, so a bug in one layer cannot silently
// rewrite history.
type ledgerStore interface {
	Append(ctx context.Context, entry *models.LedgerEntry) error
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]models.LedgerEntry, error)
	ListByScope(ctx context.Context, q models.LedgerScopeQuery) ([]models.LedgerEntry, int, error)
}

// AppendInput carries the caller-supplied fields of a new ledger entry.
// ID, OccurredAt and Checksum are always stamped by the service; callers
// cannot choose them.
type AppendInput struct {
	Scope         models.LedgerScope
	TenantID      string
	UserID        string
	ActorID       string
	ActionType    models.LedgerActionType
	ResourceType  string
	ResourceID    string
	BeforeState   []byte
	AfterState    []byte
	Reason        string
	CorrelationID string
}

// LedgerService validates, stamps and persists audit entries, and serves
// authorization-checked reads over them.
type LedgerService struct {
	repo           ledgerStore
	clock          Clock
	metrics        *MetricsService
	storageTimeout time.Duration
	logger         *zap.Logger
}

// NewLedgerService constructs the ledger service. The clock is the single
// source of entry timestamps; in production it is the clock authority.
func NewLedgerService(storage config.StorageConfig, repo ledgerStore, clock Clock, metrics *MetricsService, logger *zap.Logger) *LedgerService {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		repo:           repo,
		clock:          clock,
		metrics:        metrics,
		storageTimeout: storage.Timeout,
		logger:         logger,
	}
}

// Prepare validates and stamps an entry without persisting it. Services that
// must write the entry atomically with their own rows (state transitions,
// flag lifecycle) build it here and hand it to their repository transaction.
// The timestamp is truncated to microseconds so the checksum survives the
// round-trip through a timestamptz column.
func (s *LedgerService) Prepare(input AppendInput) (*models.LedgerEntry, error) {
	if err := validateAppendInput(input); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		ID:            uuid.NewString(),
		Scope:         input.Scope,
		ActionType:    input.ActionType,
		ResourceType:  input.ResourceType,
		ResourceID:    input.ResourceID,
		BeforeState:   input.BeforeState,
		AfterState:    input.AfterState,
		Reason:        input.Reason,
		CorrelationID: input.CorrelationID,
		OccurredAt:    s.clock.Now().Truncate(time.Microsecond),
	}
	if input.TenantID != "" {
		entry.TenantID = &input.TenantID
	}
	if input.UserID != "" {
		entry.UserID = &input.UserID
	}
	if input.ActorID != "" {
		entry.ActorID = &input.ActorID
	}

	checksum, err := computeChecksum(entry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "state snapshots must be valid JSON")
	}
	entry.Checksum = checksum
	return entry, nil
}

// Append validates, stamps and inserts one entry.
func (s *LedgerService) Append(ctx context.Context, input AppendInput) (*models.LedgerEntry, error) {
	entry, err := s.Prepare(input)
	if err != nil {
		return nil, err
	}

	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	if err := s.repo.Append(cctx, entry); err != nil {
		return nil, storageFailure(err, "failed to append ledger entry")
	}
	if s.metrics != nil {
		s.metrics.RecordLedgerAppend(entry.ActionType)
	}
	return entry, nil
}

// QueryByResource returns the complete history of one entity, oldest first.
// Platform operators see every row; tenant staff see the rows of their own
// tenant. A resource owned by another tenant is denied rather than shown
// empty.
func (s *LedgerService) QueryByResource(ctx context.Context, q models.LedgerResourceQuery, actor *models.JWTClaims) ([]models.LedgerEntry, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	if strings.TrimSpace(q.ResourceType) == "" || strings.TrimSpace(q.ResourceID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resourceType and resourceId are required")
	}

	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	entries, err := s.repo.ListByResource(cctx, q.ResourceType, q.ResourceID)
	if err != nil {
		return nil, storageFailure(err, "failed to list ledger entries")
	}
	if actor.Role == models.RoleSuperAdmin {
		return entries, nil
	}

	visible := make([]models.LedgerEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.TenantID != nil && *entry.TenantID == actor.TenantID {
			visible = append(visible, entry)
		}
	}
	if len(visible) == 0 && len(entries) > 0 {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "resource history belongs to another tenant")
	}
	return visible, nil
}

// QueryByScope returns entries for one visibility tier, newest first, after
// checking the actor against that tier. An unauthorized query is refused
// outright, never answered with an empty page.
func (s *LedgerService) QueryByScope(ctx context.Context, q models.LedgerScopeQuery, actor *models.JWTClaims) ([]models.LedgerEntry, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	if !q.Scope.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "scope must be one of GLOBAL, TENANT, USER, ATTENDANCE")
	}
	switch q.Scope {
	case models.ScopeTenant, models.ScopeAttendance:
		if q.TenantID == "" {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "tenantId is required for "+string(q.Scope)+" scope queries")
		}
	case models.ScopeUser:
		if q.UserID == "" {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "userId is required for USER scope queries")
		}
	}
	if err := authorizeScopeRead(&q, actor); err != nil {
		return nil, nil, err
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > 100 {
		q.PageSize = 20
	}

	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	entries, total, err := s.repo.ListByScope(cctx, q)
	if err != nil {
		return nil, nil, storageFailure(err, "failed to list ledger entries")
	}
	pagination := &models.Pagination{Page: q.Page, PageSize: q.PageSize, TotalCount: total}
	return entries, pagination, nil
}

// authorizeScopeRead enforces the read matrix: GLOBAL is operator-only,
// TENANT belongs to that tenant's administrators, USER to the user or an
// administrator of the user's tenant, ATTENDANCE to the owning tenant's
// attendance-facing staff. It may tighten the query but never widens it:
// this service has no user directory to resolve a target user's home
// tenant, so an admin's user query is pinned to their own tenant, and one
// that names a foreign tenant outright is refused.
func authorizeScopeRead(q *models.LedgerScopeQuery, actor *models.JWTClaims) error {
	if actor.Role == models.RoleSuperAdmin {
		return nil
	}
	switch q.Scope {
	case models.ScopeGlobal:
		return appErrors.Clone(appErrors.ErrPermissionDenied, "global ledger entries require platform operator access")
	case models.ScopeTenant:
		if actor.Role == models.RoleAdmin && actor.TenantID == q.TenantID {
			return nil
		}
		return appErrors.Clone(appErrors.ErrPermissionDenied, "tenant ledger entries are limited to that tenant's administrators")
	case models.ScopeUser:
		if actor.UserID == q.UserID {
			q.TenantID = ""
			return nil
		}
		if actor.Role == models.RoleAdmin && actor.TenantID != "" {
			if q.TenantID != "" && q.TenantID != actor.TenantID {
				return appErrors.Clone(appErrors.ErrPermissionDenied, "user ledger entries in another tenant require platform operator access")
			}
			q.TenantID = actor.TenantID
			return nil
		}
		return appErrors.Clone(appErrors.ErrPermissionDenied, "user ledger entries are limited to the user and their tenant administrators")
	case models.ScopeAttendance:
		switch actor.Role {
		case models.RoleAdmin, models.RoleFaculty, models.RoleHR:
			if actor.TenantID == q.TenantID {
				return nil
			}
		}
		return appErrors.Clone(appErrors.ErrPermissionDenied, "attendance ledger entries are limited to the owning tenant's staff")
	default:
		return appErrors.Clone(appErrors.ErrPermissionDenied, "scope not readable")
	}
}

func validateAppendInput(in AppendInput) error {
	if !in.Scope.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "scope must be one of GLOBAL, TENANT, USER, ATTENDANCE")
	}
	if !in.ActionType.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported actionType "+string(in.ActionType))
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "actorId is required")
	}
	if strings.TrimSpace(in.ResourceType) == "" || strings.TrimSpace(in.ResourceID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "resourceType and resourceId are required")
	}
	if in.ActionType.RequiresReason() && strings.TrimSpace(in.Reason) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "reason is required for "+string(in.ActionType)+" entries")
	}

	switch in.Scope {
	case models.ScopeTenant, models.ScopeAttendance:
		if in.TenantID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "tenantId is required for "+string(in.Scope)+" scope")
		}
	case models.ScopeUser:
		if in.UserID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "userId is required for USER scope")
		}
	}

	switch in.ActionType {
	case models.ActionDomainCreate, models.ActionFlagRaised:
		if len(in.AfterState) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "afterState is required for "+string(in.ActionType))
		}
	case models.ActionDomainDelete:
		if len(in.BeforeState) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "beforeState is required for DOMAIN_DELETE")
		}
	default:
		if len(in.BeforeState) == 0 || len(in.AfterState) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "beforeState and afterState are required for "+string(in.ActionType))
		}
	}
	return nil
}
