package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/pkg/config"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
)

type integrityStore interface {
	GetByID(ctx context.Context, id string) (*models.LedgerEntry, error)
	ListSince(ctx context.Context, since time.Time, limit, offset int) ([]models.LedgerEntry, error)
}

// AlertSink receives tamper findings. The default sink logs at error level;
// deployments that page on integrity violations wire their own.
type AlertSink interface {
	TamperDetected(ctx context.Context, check models.IntegrityCheck)
}

// LogAlertSink reports findings through the structured log.
type LogAlertSink struct {
	Logger *zap.Logger
}

// TamperDetected writes one error-level line per finding.
func (s LogAlertSink) TamperDetected(_ context.Context, check models.IntegrityCheck) {
	if s.Logger == nil {
		return
	}
	s.Logger.Error("ledger integrity violation detected",
		zap.String("entry_id", check.EntryID),
		zap.String("stored_checksum", check.StoredChecksum),
		zap.String("computed_checksum", check.ComputedChecksum),
	)
}

// IntegrityService re-derives ledger checksums and surfaces mismatches. A
// mismatch is a finding about the data, not a failure of the verifier:
// verification always completes and reports.
type IntegrityService struct {
	repo           integrityStore
	clock          Clock
	metrics        *MetricsService
	alerts         AlertSink
	sweepInterval  time.Duration
	sweepBatchSize int
	storageTimeout time.Duration
	logger         *zap.Logger
}

// NewIntegrityService constructs the verifier. A nil sink falls back to
// logging findings.
func NewIntegrityService(cfg config.LedgerConfig, storage config.StorageConfig, repo integrityStore, clock Clock, metrics *MetricsService, alerts AlertSink, logger *zap.Logger) *IntegrityService {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if alerts == nil {
		alerts = LogAlertSink{Logger: logger}
	}
	batchSize := cfg.SweepBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	return &IntegrityService{
		repo:           repo,
		clock:          clock,
		metrics:        metrics,
		alerts:         alerts,
		sweepInterval:  cfg.SweepInterval,
		sweepBatchSize: batchSize,
		storageTimeout: storage.Timeout,
		logger:         logger,
	}
}

// VerifyEntry recomputes the checksum of one entry and compares it to the
// stored value. A missing entry is NotFound; a mismatch is a successful
// verification whose result says the entry is invalid.
func (s *IntegrityService) VerifyEntry(ctx context.Context, entryID string) (*models.IntegrityCheck, error) {
	cctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	entry, err := s.repo.GetByID(cctx, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ledger entry not found")
		}
		return nil, storageFailure(err, "failed to load ledger entry")
	}

	check := s.checkEntry(entry)
	if !check.Valid {
		s.reportTamper(ctx, check)
	}
	return &check, nil
}

// VerifyAll scans every entry written at or after the watermark in batches
// and collects mismatches. The scan keeps going past findings so one
// tampered row cannot hide another.
func (s *IntegrityService) VerifyAll(ctx context.Context, since time.Time) (*models.IntegritySweep, error) {
	sweep := &models.IntegritySweep{
		Since:      since,
		StartedAt:  s.clock.Now(),
		Mismatched: []models.IntegrityCheck{},
	}

	offset := 0
	for {
		cctx, cancel := storageCtx(ctx, s.storageTimeout)
		entries, err := s.repo.ListSince(cctx, since, s.sweepBatchSize, offset)
		cancel()
		if err != nil {
			return nil, storageFailure(err, "failed to scan ledger entries")
		}

		for i := range entries {
			check := s.checkEntry(&entries[i])
			sweep.Scanned++
			if !check.Valid {
				sweep.Mismatched = append(sweep.Mismatched, check)
				s.reportTamper(ctx, check)
			}
		}
		if len(entries) < s.sweepBatchSize {
			break
		}
		offset += len(entries)
	}

	sweep.FinishedAt = s.clock.Now()
	s.logger.Info("ledger verification sweep finished",
		zap.Time("since", since),
		zap.Int("scanned", sweep.Scanned),
		zap.Int("mismatched", len(sweep.Mismatched)),
	)
	return sweep, nil
}

// StartSweeper boots a goroutine that re-verifies recently written entries
// periodically. A non-positive interval disables it.
func (s *IntegrityService) StartSweeper(ctx context.Context) {
	if s.sweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.sweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Overlap consecutive windows so a delayed tick cannot
				// leave entries unverified.
				since := s.clock.Now().Add(-2 * s.sweepInterval)
				if _, err := s.VerifyAll(ctx, since); err != nil {
					s.logger.Warn("scheduled ledger sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *IntegrityService) checkEntry(entry *models.LedgerEntry) models.IntegrityCheck {
	check := models.IntegrityCheck{
		EntryID:        entry.ID,
		StoredChecksum: entry.Checksum,
		CheckedAt:      s.clock.Now(),
	}
	computed, match, err := verifyChecksum(entry)
	if err != nil {
		// A snapshot that no longer parses as JSON cannot have produced
		// the stored checksum; count it as tampering.
		check.Valid = false
		return check
	}
	check.ComputedChecksum = computed
	check.Valid = match
	return check
}

func (s *IntegrityService) reportTamper(ctx context.Context, check models.IntegrityCheck) {
	if s.metrics != nil {
		s.metrics.RecordChecksumMismatch()
	}
	s.alerts.TamperDetected(ctx, check)
}
