package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/internal/repository"
	"github.com/smartattend/integrity-api/pkg/config"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
)

type flagStore interface {
	Create(ctx context.Context, flag *models.IntegrityFlag, entry *models.LedgerEntry) (bool, error)
	GetByID(ctx context.Context, id string) (*models.IntegrityFlag, error)
	GetOpen(ctx context.Context, recordID string, flagType models.FlagType) (*models.IntegrityFlag, error)
	Resolve(ctx context.Context, params repository.ResolveParams) error
	List(ctx context.Context, filter models.FlagFilter) ([]models.IntegrityFlag, int, error)
}

type flagRecordStore interface {
	GetByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
}

// RaiseFlagInput carries the caller-supplied fields of a new flag.
type RaiseFlagInput struct {
	RecordID      string
	FlagType      models.FlagType
	Severity      models.FlagSeverity
	Reason        string
	CorrelationID string
}

// ResolveFlagInput carries one requested flag resolution.
type ResolveFlagInput struct {
	FlagID        string
	Resolution    string
	CorrelationID string
}

type cachedFlagPage struct {
	Flags []models.IntegrityFlag `json:"flags"`
	Total int                    `json:"total"`
}

// FlagService manages the integrity-flag lifecycle. Raising is idempotent
// per (record, type) while a flag of that type is open; resolution is a
// one-way move that leaves an audit entry behind.
type FlagService struct {
	repo           flagStore
	records        flagRecordStore
	ledger         entryPreparer
	cache          *CacheService
	metrics        *MetricsService
	clock          Clock
	cacheTTL       time.Duration
	storageTimeout time.Duration
	logger         *zap.Logger
}

// entryPreparer stamps and checksums ledger entries for repositories that
// persist them inside their own transactions.
type entryPreparer interface {
	Prepare(input AppendInput) (*models.LedgerEntry, error)
}

// NewFlagService constructs the flag service.
func NewFlagService(cfg config.FlagsConfig, storage config.StorageConfig, repo flagStore, records flagRecordStore, ledger entryPreparer, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *FlagService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlagService{
		repo:           repo,
		records:        records,
		ledger:         ledger,
		cache:          cache,
		metrics:        metrics,
		clock:          SystemClock{},
		cacheTTL:       cfg.CacheTTL,
		storageTimeout: storage.Timeout,
		logger:         logger,
	}
}

// RaiseFlag opens a flag against an attendance record. If an OPEN flag of
// the same type already exists on the record, the existing flag is returned
// and nothing is written, so detectors can re-report the same anomaly
// without piling up duplicates.
func (s *FlagService) RaiseFlag(ctx context.Context, input RaiseFlagInput, actor *models.JWTClaims) (*models.IntegrityFlag, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	if !input.FlagType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported flagType "+string(input.FlagType))
	}
	if !input.Severity.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "severity must be one of LOW, MEDIUM, HIGH")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reason is required")
	}

	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	record, err := s.records.GetByID(cctx, input.RecordID)
	cancel()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, storageFailure(err, "failed to load attendance record")
	}
	if actor.Role != models.RoleSuperAdmin && record.TenantID != actor.TenantID {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "record belongs to another tenant")
	}

	flag := &models.IntegrityFlag{
		ID:                 uuid.NewString(),
		AttendanceRecordID: record.ID,
		TenantID:           record.TenantID,
		FlagType:           input.FlagType,
		Severity:           input.Severity,
		State:              models.FlagOpen,
		RaisedBy:           actor.UserID,
		Reason:             input.Reason,
		CreatedAt:          s.clock.Now(),
	}

	afterState, err := json.Marshal(flag.Snapshot())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot flag")
	}
	entry, err := s.ledger.Prepare(AppendInput{
		Scope:         models.ScopeAttendance,
		TenantID:      record.TenantID,
		ActorID:       actor.UserID,
		ActionType:    models.ActionFlagRaised,
		ResourceType:  models.ResourceIntegrityFlag,
		ResourceID:    flag.ID,
		AfterState:    afterState,
		Reason:        input.Reason,
		CorrelationID: input.CorrelationID,
	})
	if err != nil {
		return nil, err
	}

	cctx, cancel = storageCtx(ctx, s.storageTimeout)
	created, err := s.repo.Create(cctx, flag, entry)
	cancel()
	if err != nil {
		return nil, storageFailure(err, "failed to raise integrity flag")
	}
	if !created {
		existing, err := s.openFlag(ctx, record.ID, input.FlagType)
		if err != nil {
			return nil, err
		}
		return existing, nil
	}

	if s.metrics != nil {
		s.metrics.RecordFlagRaised(flag.FlagType)
		s.metrics.RecordLedgerAppend(models.ActionFlagRaised)
	}
	s.invalidateFlagCache(ctx, record.TenantID)
	s.logger.Info("integrity flag raised",
		zap.String("flag_id", flag.ID),
		zap.String("record_id", record.ID),
		zap.String("flag_type", string(flag.FlagType)),
		zap.String("severity", string(flag.Severity)),
	)
	return flag, nil
}

// ResolveFlag closes an OPEN flag with a non-empty resolution and appends
// the FLAG_RESOLVED ledger entry in the same transaction as the flag update.
func (s *FlagService) ResolveFlag(ctx context.Context, input ResolveFlagInput, actor *models.JWTClaims) (*models.IntegrityFlag, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	if strings.TrimSpace(input.Resolution) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resolution is required")
	}

	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	flag, err := s.repo.GetByID(cctx, input.FlagID)
	cancel()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "integrity flag not found")
		}
		return nil, storageFailure(err, "failed to load integrity flag")
	}
	if actor.Role != models.RoleSuperAdmin && flag.TenantID != actor.TenantID {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "flag belongs to another tenant")
	}
	if flag.State != models.FlagOpen {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "flag is already resolved")
	}

	beforeState, err := json.Marshal(flag.Snapshot())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot flag")
	}
	resolvedAt := s.clock.Now()
	resolved := *flag
	resolved.State = models.FlagResolved
	resolved.Resolution = &input.Resolution
	resolved.ResolvedBy = &actor.UserID
	resolved.ResolvedAt = &resolvedAt
	afterState, err := json.Marshal(resolved.Snapshot())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot flag")
	}

	entry, err := s.ledger.Prepare(AppendInput{
		Scope:         models.ScopeAttendance,
		TenantID:      flag.TenantID,
		ActorID:       actor.UserID,
		ActionType:    models.ActionFlagResolved,
		ResourceType:  models.ResourceIntegrityFlag,
		ResourceID:    flag.ID,
		BeforeState:   beforeState,
		AfterState:    afterState,
		Reason:        input.Resolution,
		CorrelationID: input.CorrelationID,
	})
	if err != nil {
		return nil, err
	}

	cctx, cancel = storageCtx(ctx, s.storageTimeout)
	err = s.repo.Resolve(cctx, repository.ResolveParams{
		FlagID:     flag.ID,
		Resolution: input.Resolution,
		ResolvedBy: actor.UserID,
		ResolvedAt: resolvedAt,
		Entry:      entry,
	})
	cancel()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "flag was resolved concurrently")
		}
		return nil, storageFailure(err, "failed to resolve integrity flag")
	}

	if s.metrics != nil {
		s.metrics.RecordFlagResolved()
		s.metrics.RecordLedgerAppend(models.ActionFlagResolved)
	}
	s.invalidateFlagCache(ctx, flag.TenantID)
	s.logger.Info("integrity flag resolved",
		zap.String("flag_id", flag.ID),
		zap.String("record_id", flag.AttendanceRecordID),
		zap.String("resolved_by", actor.UserID),
	)
	return &resolved, nil
}

// ListFlags returns flags by record or tenant, open only unless the filter
// asks for history. Tenant dashboard pages are served read-through from the
// cache and invalidated on every raise or resolve; the bool return reports
// whether this page came from cache.
func (s *FlagService) ListFlags(ctx context.Context, filter models.FlagFilter, actor *models.JWTClaims) ([]models.IntegrityFlag, *models.Pagination, bool, error) {
	if actor == nil {
		return nil, nil, false, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	switch actor.Role {
	case models.RoleSuperAdmin:
	case models.RoleAdmin, models.RoleFaculty, models.RoleHR:
		filter.TenantID = actor.TenantID
	default:
		return nil, nil, false, appErrors.Clone(appErrors.ErrPermissionDenied, "insufficient role for integrity flags")
	}
	if filter.RecordID == "" && filter.TenantID == "" {
		return nil, nil, false, appErrors.Clone(appErrors.ErrValidation, "recordId or tenantId is required")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	cacheable := filter.RecordID == "" && !filter.IncludeResolved
	cacheKey := fmt.Sprintf("flags:tenant:%s:open:%d:%d", filter.TenantID, filter.Page, filter.PageSize)
	if cacheable {
		var page cachedFlagPage
		if hit, _ := s.cache.Get(ctx, cacheKey, &page); hit {
			pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: page.Total}
			return page.Flags, pagination, true, nil
		}
	}

	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	flags, total, err := s.repo.List(cctx, filter)
	if err != nil {
		return nil, nil, false, storageFailure(err, "failed to list integrity flags")
	}
	if cacheable {
		_ = s.cache.Set(ctx, cacheKey, cachedFlagPage{Flags: flags, Total: total}, s.cacheTTL)
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return flags, pagination, false, nil
}

// openFlag is the idempotent-raise fallback: the insert was skipped because
// an open flag of this type already exists, so return that one.
func (s *FlagService) openFlag(ctx context.Context, recordID string, flagType models.FlagType) (*models.IntegrityFlag, error) {
	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	existing, err := s.repo.GetOpen(cctx, recordID, flagType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The open flag was resolved between our insert attempt and
			// this read.
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "flag state changed during raise, retry")
		}
		return nil, storageFailure(err, "failed to load existing flag")
	}
	return existing, nil
}

func (s *FlagService) invalidateFlagCache(ctx context.Context, tenantID string) {
	_ = s.cache.Invalidate(ctx, fmt.Sprintf("flags:tenant:%s:*", tenantID))
}
