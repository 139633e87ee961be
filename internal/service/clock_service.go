package service

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/pkg/config"
)

// Clock supplies the authoritative notion of now. Server time is ground
// truth; wrapping the wall clock lets tests substitute a deterministic
// source.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC on every call, never caching.
type SystemClock struct{}

// Now returns the current server time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// driftRecorder persists drift events off the request path.
type driftRecorder interface {
	RecordAsync(event *models.DriftEvent)
}

// ClockService is the clock authority: it computes drift between a claimed
// client timestamp and server time, classifies its severity, and decides
// whether the action may proceed. Classification and blocking are separate
// axes with independently configured thresholds.
type ClockService struct {
	clock     Clock
	infoSecs  int64
	warnSecs  int64
	blockSecs int64
	recorder  driftRecorder
	metrics   *MetricsService
	logger    *zap.Logger
}

// ClockServiceOption configures the service.
type ClockServiceOption func(*ClockService)

// WithClock overrides the time source.
func WithClock(clock Clock) ClockServiceOption {
	return func(s *ClockService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewClockService constructs the clock authority.
func NewClockService(cfg config.ClockConfig, recorder driftRecorder, metrics *MetricsService, logger *zap.Logger, opts ...ClockServiceOption) *ClockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ClockService{
		clock:     SystemClock{},
		infoSecs:  thresholdSeconds(cfg.DriftInfoThreshold, 5),
		warnSecs:  thresholdSeconds(cfg.DriftWarnThreshold, 60),
		blockSecs: thresholdSeconds(cfg.DriftBlockThreshold, 300),
		recorder:  recorder,
		metrics:   metrics,
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

func thresholdSeconds(d time.Duration, fallback int64) int64 {
	secs := int64(d / time.Second)
	if secs <= 0 {
		return fallback
	}
	return secs
}

// Now returns authoritative server time.
func (s *ClockService) Now() time.Time {
	return s.clock.Now()
}

// ComputeDrift returns clientTs minus serverTs in whole seconds, truncated
// toward zero. Positive drift means the client clock runs ahead.
func (s *ClockService) ComputeDrift(clientTs, serverTs time.Time) int64 {
	return int64(clientTs.Sub(serverTs) / time.Second)
}

// ClassifySeverity grades the drift magnitude against the configured
// thresholds.
func (s *ClockService) ClassifySeverity(driftSeconds int64) models.DriftSeverity {
	abs := driftSeconds
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs <= s.infoSecs:
		return models.DriftInfo
	case abs <= s.warnSecs:
		return models.DriftWarning
	default:
		return models.DriftCritical
	}
}

// EvaluateAction decides what to do with an action given its drift. Only
// attendance writes can be blocked; drift past the block threshold rejects
// the write, anything above the info band proceeds with a flag, and other
// action kinds are observed without interference.
func (s *ClockService) EvaluateAction(driftSeconds int64, kind models.ActionKind) models.DriftDecision {
	if kind != models.KindAttendanceWrite {
		return models.DecisionAllow
	}
	abs := driftSeconds
	if abs < 0 {
		abs = -abs
	}
	if abs > s.blockSecs {
		return models.DecisionBlock
	}
	if s.ClassifySeverity(driftSeconds) != models.DriftInfo {
		return models.DecisionAllowAndFlag
	}
	return models.DecisionAllow
}

// EvaluateDriftInput carries one client-claimed timestamp for judgement.
type EvaluateDriftInput struct {
	TenantID        string
	UserID          string
	ClientTimestamp time.Time
	Kind            models.ActionKind
	CorrelationID   string
}

// Evaluate runs the full drift pipeline: compute, classify, decide, and
// hand exactly one DriftEvent to the async recorder. The event write is
// fire-and-forget; a recording failure is never allowed to fail the
// caller's action, which proceeds on the returned assessment alone.
func (s *ClockService) Evaluate(input EvaluateDriftInput) models.DriftAssessment {
	serverTs := s.clock.Now()
	drift := s.ComputeDrift(input.ClientTimestamp, serverTs)
	severity := s.ClassifySeverity(drift)
	decision := s.EvaluateAction(drift, input.Kind)

	s.metrics.RecordDriftEvaluation(severity, decision)

	event := &models.DriftEvent{
		ID:                 uuid.NewString(),
		TenantID:           input.TenantID,
		UserID:             input.UserID,
		ClientTimestamp:    input.ClientTimestamp.UTC(),
		ServerTimestamp:    serverTs,
		DriftSeconds:       drift,
		Severity:           severity,
		Decision:           decision,
		ActionKind:         input.Kind,
		AttendanceAffected: input.Kind == models.KindAttendanceWrite && decision != models.DecisionAllow,
		CorrelationID:      input.CorrelationID,
		CreatedAt:          serverTs,
	}
	if s.recorder != nil {
		s.recorder.RecordAsync(event)
	}

	if decision != models.DecisionAllow {
		s.logger.Info("clock drift intervention",
			zap.String("tenant_id", input.TenantID),
			zap.String("user_id", input.UserID),
			zap.Int64("drift_seconds", drift),
			zap.String("severity", string(severity)),
			zap.String("decision", string(decision)))
	}

	return models.DriftAssessment{
		DriftSeconds:    drift,
		Severity:        severity,
		Decision:        decision,
		ServerTimestamp: serverTs,
	}
}

// flagSeverityForDrift maps a drift severity onto the flag it raises when
// the decision is ALLOW_AND_FLAG. INFO drift never flags.
func flagSeverityForDrift(severity models.DriftSeverity) models.FlagSeverity {
	if severity == models.DriftCritical {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}
