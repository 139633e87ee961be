package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/pkg/config"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
	"github.com/smartattend/integrity-api/pkg/jobs"
)

const driftEventJobType = "drift_event"

type driftStore interface {
	Insert(ctx context.Context, event *models.DriftEvent) error
	List(ctx context.Context, filter models.DriftEventFilter) ([]models.DriftEvent, int, error)
	Stats(ctx context.Context, tenantID string, from, to time.Time) (*models.DriftStats, error)
}

// DriftService owns the asynchronous drift-event pipeline: evaluations hand
// their events to RecordAsync, a worker pool persists them off the request
// path, and aggregate statistics are served from a short-lived cache.
type DriftService struct {
	repo           driftStore
	queue          *jobs.Queue
	cache          *CacheService
	metrics        *MetricsService
	clock          Clock
	statsTTL       time.Duration
	storageTimeout time.Duration
	logger         *zap.Logger
}

// NewDriftService constructs the drift pipeline. Start must be called before
// events are recorded.
func NewDriftService(cfg config.DriftConfig, storage config.StorageConfig, repo driftStore, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *DriftService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &DriftService{
		repo:           repo,
		cache:          cache,
		metrics:        metrics,
		clock:          SystemClock{},
		statsTTL:       cfg.StatsCacheTTL,
		storageTimeout: storage.Timeout,
		logger:         logger,
	}
	svc.queue = jobs.NewQueue("drift-events", svc.persistEvent, jobs.QueueConfig{
		Workers:    cfg.QueueWorkers,
		BufferSize: cfg.QueueBuffer,
		Logger:     logger,
	})
	return svc
}

// Start launches the persistence workers.
func (s *DriftService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *DriftService) Stop() {
	s.queue.Stop()
}

// RecordAsync hands a drift event to the persistence pipeline without
// blocking. A full buffer drops the event; the evaluation that produced it
// has already completed and must not be failed retroactively.
func (s *DriftService) RecordAsync(event *models.DriftEvent) {
	if event == nil {
		return
	}
	ok := s.queue.TryEnqueue(jobs.Job{
		ID:      event.ID,
		Type:    driftEventJobType,
		Payload: event,
	})
	if !ok {
		if s.metrics != nil {
			s.metrics.RecordDriftWriteFailure()
		}
		s.logger.Warn("drift event dropped, queue unavailable",
			zap.String("event_id", event.ID),
			zap.String("tenant_id", event.TenantID),
		)
	}
}

func (s *DriftService) persistEvent(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(*models.DriftEvent)
	if !ok {
		s.logger.Error("drift job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	if err := s.repo.Insert(cctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.RecordDriftWriteFailure()
		}
		return fmt.Errorf("persist drift event %s: %w", event.ID, err)
	}
	return nil
}

// ListEvents returns drift events visible to the actor. Tenant staff see only
// their own tenant; platform operators see everything.
func (s *DriftService) ListEvents(ctx context.Context, filter models.DriftEventFilter, actor *models.JWTClaims) ([]models.DriftEvent, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	switch actor.Role {
	case models.RoleSuperAdmin:
	case models.RoleAdmin, models.RoleHR:
		filter.TenantID = actor.TenantID
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrPermissionDenied, "insufficient role for drift events")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	events, total, err := s.repo.List(cctx, filter)
	if err != nil {
		return nil, nil, storageFailure(err, "failed to list drift events")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return events, pagination, nil
}

// Stats aggregates a tenant's drift events over a window, defaulting to the
// trailing 24 hours. Results are cached briefly; the underlying data is
// append-only so staleness is bounded by the TTL. The second return value
// reports whether the response was served from cache.
func (s *DriftService) Stats(ctx context.Context, tenantID string, from, to time.Time, actor *models.JWTClaims) (*models.DriftStats, bool, error) {
	if actor == nil {
		return nil, false, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	switch actor.Role {
	case models.RoleSuperAdmin:
	case models.RoleAdmin, models.RoleHR:
		if actor.TenantID != tenantID {
			return nil, false, appErrors.Clone(appErrors.ErrPermissionDenied, "drift statistics are limited to your tenant")
		}
	default:
		return nil, false, appErrors.Clone(appErrors.ErrPermissionDenied, "insufficient role for drift statistics")
	}
	if tenantID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "tenantId is required")
	}

	if to.IsZero() {
		to = s.clock.Now()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if from.After(to) {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "window start must precede window end")
	}

	cacheKey := fmt.Sprintf("drift:stats:%s:%d:%d", tenantID, from.Unix(), to.Unix())
	var cached models.DriftStats
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, true, nil
	}

	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	stats, err := s.repo.Stats(cctx, tenantID, from, to)
	if err != nil {
		return nil, false, storageFailure(err, "failed to aggregate drift statistics")
	}
	_ = s.cache.Set(ctx, cacheKey, stats, s.statsTTL)
	return stats, false, nil
}
