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

type attendanceStore interface {
	GetByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	GetByIdentity(ctx context.Context, tenantID, subjectID, sessionID string) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	CreateWithEntries(ctx context.Context, record *models.AttendanceRecord, entries ...*models.LedgerEntry) error
	Transition(ctx context.Context, params repository.TransitionParams) error
}

type driftEvaluator interface {
	Evaluate(input EvaluateDriftInput) models.DriftAssessment
}

type flagRaiser interface {
	RaiseFlag(ctx context.Context, input RaiseFlagInput, actor *models.JWTClaims) (*models.IntegrityFlag, error)
}

// TransitionInput carries one requested status change.
type TransitionInput struct {
	RecordID      string
	Target        models.AttendanceStatus
	Reason        string
	CorrelationID string
}

// CheckInInput is the inbound attendance-taking request. TenantID defaults
// to the actor's tenant; a zero ClientTimestamp skips drift evaluation.
type CheckInInput struct {
	TenantID        string
	SubjectID       string
	SessionID       string
	Status          models.AttendanceStatus
	Reason          string
	ClientTimestamp time.Time
	CorrelationID   string
}

// CheckInResult pairs the resulting record with the drift assessment, when
// one was performed, so the caller can surface both.
type CheckInResult struct {
	Record *models.AttendanceRecord `json:"record"`
	Drift  *models.DriftAssessment  `json:"drift,omitempty"`
}

// AttendanceService drives the attendance state machine. Every status change
// goes through the configured transition table and commits together with its
// ledger entry; there is no code path that writes a status alone.
type AttendanceService struct {
	repo           attendanceStore
	ledger         entryPreparer
	drift          driftEvaluator
	flags          flagRaiser
	policy         *models.TransitionPolicy
	clock          Clock
	metrics        *MetricsService
	storageTimeout time.Duration
	logger         *zap.Logger
}

// NewAttendanceService constructs the service. A malformed transition
// override in the configuration is a startup error, never a silent fallback
// to the default table.
func NewAttendanceService(cfg config.AttendanceConfig, storage config.StorageConfig, repo attendanceStore, ledger entryPreparer, drift driftEvaluator, flags flagRaiser, metrics *MetricsService, logger *zap.Logger) (*AttendanceService, error) {
	policy, err := models.ParseTransitionPolicy(cfg.TransitionOverrides)
	if err != nil {
		return nil, fmt.Errorf("attendance transition overrides: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:           repo,
		ledger:         ledger,
		drift:          drift,
		flags:          flags,
		policy:         policy,
		clock:          SystemClock{},
		metrics:        metrics,
		storageTimeout: storage.Timeout,
		logger:         logger,
	}, nil
}

// Policy exposes the active transition table.
func (s *AttendanceService) Policy() *models.TransitionPolicy {
	return s.policy
}

// Transition applies one requested status change to an existing record.
func (s *AttendanceService) Transition(ctx context.Context, input TransitionInput, actor *models.JWTClaims) (*models.AttendanceRecord, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	if !input.Target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported status "+string(input.Target))
	}

	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	record, err := s.repo.GetByID(cctx, input.RecordID)
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

	return s.applyTransition(ctx, record, input.Target, input.Reason, input.CorrelationID, actor)
}

// CheckIn is the inbound attendance-taking flow: drift evaluation first,
// then find-or-create the record for (tenant, subject, session) and mark it.
// A BLOCK decision rejects the request before anything is written.
func (s *AttendanceService) CheckIn(ctx context.Context, input CheckInInput, actor *models.JWTClaims) (*CheckInResult, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	if strings.TrimSpace(input.SubjectID) == "" || strings.TrimSpace(input.SessionID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subjectId and sessionId are required")
	}
	if !input.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported status "+string(input.Status))
	}
	if !s.policy.Allowed(models.AttendanceUnmarked, input.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot transition from %s to %s", models.AttendanceUnmarked, input.Status))
	}
	tenantID := input.TenantID
	if tenantID == "" {
		tenantID = actor.TenantID
	}
	if actor.Role != models.RoleSuperAdmin && tenantID != actor.TenantID {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "check-in targets another tenant")
	}

	var assessment *models.DriftAssessment
	if !input.ClientTimestamp.IsZero() {
		a := s.drift.Evaluate(EvaluateDriftInput{
			TenantID:        tenantID,
			UserID:          actor.UserID,
			ClientTimestamp: input.ClientTimestamp,
			Kind:            models.KindAttendanceWrite,
			CorrelationID:   input.CorrelationID,
		})
		assessment = &a
		if a.Decision == models.DecisionBlock {
			return nil, appErrors.Clone(appErrors.ErrClockDriftBlocked,
				fmt.Sprintf("client clock drift of %+ds exceeds the attendance write threshold", a.DriftSeconds))
		}
	}

	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	record, err := s.repo.GetByIdentity(cctx, tenantID, input.SubjectID, input.SessionID)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		record = nil
	default:
		return nil, storageFailure(err, "failed to look up attendance record")
	}

	switch {
	case record == nil:
		record, err = s.createMarked(ctx, tenantID, input, actor)
	case record.Status == models.AttendanceUnmarked:
		record, err = s.applyTransition(ctx, record, input.Status, input.Reason, input.CorrelationID, actor)
	default:
		// The subject is already marked for this session: a repeat
		// submission, not a correction. Corrections go through Transition.
		s.raiseFlagBestEffort(ctx, RaiseFlagInput{
			RecordID:      record.ID,
			FlagType:      models.FlagDuplicateSubmission,
			Severity:      models.SeverityMedium,
			Reason:        fmt.Sprintf("repeat check-in for subject %s in session %s", input.SubjectID, input.SessionID),
			CorrelationID: input.CorrelationID,
		}, actor)
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("attendance is already marked %s for this session", record.Status))
	}
	if err != nil {
		return nil, err
	}

	if assessment != nil && assessment.Decision == models.DecisionAllowAndFlag {
		s.raiseFlagBestEffort(ctx, RaiseFlagInput{
			RecordID:      record.ID,
			FlagType:      models.FlagClockDrift,
			Severity:      flagSeverityForDrift(assessment.Severity),
			Reason:        fmt.Sprintf("clock drift of %+ds (%s) on check-in", assessment.DriftSeconds, assessment.Severity),
			CorrelationID: input.CorrelationID,
		}, actor)
	}
	return &CheckInResult{Record: record, Drift: assessment}, nil
}

// Get returns one record, refusing cross-tenant reads outright.
func (s *AttendanceService) Get(ctx context.Context, recordID string, actor *models.JWTClaims) (*models.AttendanceRecord, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	record, err := s.repo.GetByID(cctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, storageFailure(err, "failed to load attendance record")
	}
	if actor.Role != models.RoleSuperAdmin && record.TenantID != actor.TenantID {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "record belongs to another tenant")
	}
	return record, nil
}

// List returns a tenant's records for dashboard views.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter, actor *models.JWTClaims) ([]models.AttendanceRecord, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	switch actor.Role {
	case models.RoleSuperAdmin:
		if filter.TenantID == "" {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "tenantId is required")
		}
	case models.RoleAdmin, models.RoleFaculty, models.RoleHR:
		filter.TenantID = actor.TenantID
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrPermissionDenied, "insufficient role for attendance listings")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	records, total, err := s.repo.List(cctx, filter)
	if err != nil {
		return nil, nil, storageFailure(err, "failed to list attendance records")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return records, pagination, nil
}

// applyTransition validates one edge against the policy and commits the
// status change together with its STATE_TRANSITION ledger entry. A lost
// compare-and-set is reported, never retried here.
func (s *AttendanceService) applyTransition(ctx context.Context, record *models.AttendanceRecord, target models.AttendanceStatus, reason, correlationID string, actor *models.JWTClaims) (*models.AttendanceRecord, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "a reason is required for every transition")
	}
	if strings.TrimSpace(actor.UserID) == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "an acting user is required for every transition")
	}
	if record.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("record is in terminal status %s", record.Status))
	}
	if !s.policy.Allowed(record.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot transition from %s to %s", record.Status, target))
	}

	beforeState, err := json.Marshal(record.Snapshot())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot record")
	}
	updated := *record
	updated.Status = target
	updated.StatusReason = reason
	updated.UpdatedAt = s.clock.Now()
	afterState, err := json.Marshal(updated.Snapshot())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot record")
	}

	entry, err := s.ledger.Prepare(AppendInput{
		Scope:         models.ScopeAttendance,
		TenantID:      record.TenantID,
		UserID:        record.SubjectID,
		ActorID:       actor.UserID,
		ActionType:    models.ActionStateTransition,
		ResourceType:  models.ResourceAttendanceRecord,
		ResourceID:    record.ID,
		BeforeState:   beforeState,
		AfterState:    afterState,
		Reason:        reason,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}

	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	err = s.repo.Transition(cctx, repository.TransitionParams{
		RecordID:   record.ID,
		FromStatus: record.Status,
		ToStatus:   target,
		Reason:     reason,
		UpdatedAt:  updated.UpdatedAt,
		Entry:      entry,
	})
	cancel()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "record status changed concurrently, re-read and retry")
		}
		return nil, storageFailure(err, "failed to apply attendance transition")
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(record.Status, target)
		s.metrics.RecordLedgerAppend(models.ActionStateTransition)
	}
	s.logger.Info("attendance transition applied",
		zap.String("record_id", record.ID),
		zap.String("from", string(record.Status)),
		zap.String("to", string(target)),
		zap.String("actor_id", actor.UserID),
	)
	return &updated, nil
}

// createMarked inserts a fresh record already carrying its first mark. The
// implicit UNMARKED starting point becomes the transition entry's before
// snapshot rather than a separate creation entry, so a record's history is
// one ledger entry per transition.
func (s *AttendanceService) createMarked(ctx context.Context, tenantID string, input CheckInInput, actor *models.JWTClaims) (*models.AttendanceRecord, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "a reason is required for every transition")
	}

	now := s.clock.Now()
	record := &models.AttendanceRecord{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		SubjectID:    input.SubjectID,
		SessionID:    input.SessionID,
		Status:       input.Status,
		StatusReason: input.Reason,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	unmarked := *record
	unmarked.Status = models.AttendanceUnmarked
	unmarked.StatusReason = ""
	unmarkedState, err := json.Marshal(unmarked.Snapshot())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot record")
	}
	markedState, err := json.Marshal(record.Snapshot())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot record")
	}

	entry, err := s.ledger.Prepare(AppendInput{
		Scope:         models.ScopeAttendance,
		TenantID:      tenantID,
		UserID:        input.SubjectID,
		ActorID:       actor.UserID,
		ActionType:    models.ActionStateTransition,
		ResourceType:  models.ResourceAttendanceRecord,
		ResourceID:    record.ID,
		BeforeState:   unmarkedState,
		AfterState:    markedState,
		Reason:        input.Reason,
		CorrelationID: input.CorrelationID,
	})
	if err != nil {
		return nil, err
	}

	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	err = s.repo.CreateWithEntries(cctx, record, entry)
	cancel()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "attendance record was created concurrently, retry")
		}
		return nil, storageFailure(err, "failed to create attendance record")
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(models.AttendanceUnmarked, record.Status)
		s.metrics.RecordLedgerAppend(models.ActionStateTransition)
	}
	s.logger.Info("attendance record created",
		zap.String("record_id", record.ID),
		zap.String("tenant_id", tenantID),
		zap.String("subject_id", input.SubjectID),
		zap.String("session_id", input.SessionID),
		zap.String("status", string(record.Status)),
	)
	return record, nil
}

func (s *AttendanceService) raiseFlagBestEffort(ctx context.Context, input RaiseFlagInput, actor *models.JWTClaims) {
	if s.flags == nil {
		return
	}
	if _, err := s.flags.RaiseFlag(ctx, input, actor); err != nil {
		s.logger.Warn("failed to raise integrity flag",
			zap.String("record_id", input.RecordID),
			zap.String("flag_type", string(input.FlagType)),
			zap.Error(err),
		)
	}
}
