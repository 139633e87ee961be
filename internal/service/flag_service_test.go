package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/internal/repository"
	"github.com/smartattend/integrity-api/pkg/config"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
)

type flagStoreStub struct {
	flags        map[string]*models.IntegrityFlag
	open         *models.IntegrityFlag
	conflict     bool
	createdFlag  *models.IntegrityFlag
	createdEntry *models.LedgerEntry
	resolve      *repository.ResolveParams
	resolveErr   error
	listFilter   models.FlagFilter
	listFlags    []models.IntegrityFlag
	listTotal    int
}

func (s *flagStoreStub) Create(ctx context.Context, flag *models.IntegrityFlag, entry *models.LedgerEntry) (bool, error) {
	if s.conflict {
		return false, nil
	}
	s.createdFlag = flag
	s.createdEntry = entry
	return true, nil
}

func (s *flagStoreStub) GetByID(ctx context.Context, id string) (*models.IntegrityFlag, error) {
	if flag, ok := s.flags[id]; ok {
		copied := *flag
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *flagStoreStub) GetOpen(ctx context.Context, recordID string, flagType models.FlagType) (*models.IntegrityFlag, error) {
	if s.open != nil {
		copied := *s.open
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *flagStoreStub) Resolve(ctx context.Context, params repository.ResolveParams) error {
	if s.resolveErr != nil {
		return s.resolveErr
	}
	s.resolve = &params
	return nil
}

func (s *flagStoreStub) List(ctx context.Context, filter models.FlagFilter) ([]models.IntegrityFlag, int, error) {
	s.listFilter = filter
	return s.listFlags, s.listTotal, nil
}

func newFlagServiceForTest(store *flagStoreStub, records flagRecordStore) *FlagService {
	ledger := newLedgerServiceForTest(&ledgerRepoStub{})
	return NewFlagService(config.FlagsConfig{CacheTTL: 30 * time.Second}, config.StorageConfig{Timeout: time.Second}, store, records, ledger, nil, nil, nil)
}

func raiseRequest() RaiseFlagInput {
	return RaiseFlagInput{
		RecordID: "record-1",
		FlagType: models.FlagManualReview,
		Severity: models.SeverityHigh,
		Reason:   "signature does not match enrollment card",
	}
}

func openFlagFixture() *models.IntegrityFlag {
	return &models.IntegrityFlag{
		ID:                 "flag-1",
		AttendanceRecordID: "record-1",
		TenantID:           "tenant-1",
		FlagType:           models.FlagManualReview,
		Severity:           models.SeverityHigh,
		State:              models.FlagOpen,
		RaisedBy:           "faculty-1",
		Reason:             "signature does not match enrollment card",
	}
}

func TestFlagServiceRaiseFlagCreatesOpenFlag(t *testing.T) {
	store := &flagStoreStub{}
	records := &attendanceStoreStub{records: map[string]*models.AttendanceRecord{"record-1": unmarkedRecord()}}
	svc := newFlagServiceForTest(store, records)

	flag, err := svc.RaiseFlag(context.Background(), raiseRequest(), facultyActor())
	require.NoError(t, err)
	assert.NotEmpty(t, flag.ID)
	assert.Equal(t, models.FlagOpen, flag.State)
	assert.Equal(t, "tenant-1", flag.TenantID)
	assert.Equal(t, "faculty-1", flag.RaisedBy)

	require.NotNil(t, store.createdFlag)
	require.NotNil(t, store.createdEntry)
	assert.Equal(t, models.ActionFlagRaised, store.createdEntry.ActionType)
	assert.Equal(t, models.ResourceIntegrityFlag, store.createdEntry.ResourceType)
	assert.Equal(t, flag.ID, store.createdEntry.ResourceID)
	assert.Contains(t, string(store.createdEntry.AfterState), string(models.FlagManualReview))
	assert.NotEmpty(t, store.createdEntry.Checksum)
}

func TestFlagServiceRaiseFlagIsIdempotent(t *testing.T) {
	store := &flagStoreStub{conflict: true, open: openFlagFixture()}
	records := &attendanceStoreStub{records: map[string]*models.AttendanceRecord{"record-1": unmarkedRecord()}}
	svc := newFlagServiceForTest(store, records)

	flag, err := svc.RaiseFlag(context.Background(), raiseRequest(), facultyActor())
	require.NoError(t, err)
	assert.Equal(t, "flag-1", flag.ID)
	assert.Nil(t, store.createdFlag)
}

func TestFlagServiceRaiseFlagConcurrentResolution(t *testing.T) {
	store := &flagStoreStub{conflict: true}
	records := &attendanceStoreStub{records: map[string]*models.AttendanceRecord{"record-1": unmarkedRecord()}}
	svc := newFlagServiceForTest(store, records)

	_, err := svc.RaiseFlag(context.Background(), raiseRequest(), facultyActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConcurrentModification.Code, appErrors.FromError(err).Code)
}

func TestFlagServiceRaiseFlagValidation(t *testing.T) {
	records := &attendanceStoreStub{records: map[string]*models.AttendanceRecord{"record-1": unmarkedRecord()}}

	t.Run("unknown flag type", func(t *testing.T) {
		svc := newFlagServiceForTest(&flagStoreStub{}, records)
		input := raiseRequest()
		input.FlagType = "SUSPICION"
		_, err := svc.RaiseFlag(context.Background(), input, facultyActor())
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})
	t.Run("unknown severity", func(t *testing.T) {
		svc := newFlagServiceForTest(&flagStoreStub{}, records)
		input := raiseRequest()
		input.Severity = "EXTREME"
		_, err := svc.RaiseFlag(context.Background(), input, facultyActor())
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})
	t.Run("blank reason", func(t *testing.T) {
		svc := newFlagServiceForTest(&flagStoreStub{}, records)
		input := raiseRequest()
		input.Reason = "  "
		_, err := svc.RaiseFlag(context.Background(), input, facultyActor())
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})
	t.Run("record not found", func(t *testing.T) {
		svc := newFlagServiceForTest(&flagStoreStub{}, &attendanceStoreStub{})
		_, err := svc.RaiseFlag(context.Background(), raiseRequest(), facultyActor())
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	})
	t.Run("cross tenant", func(t *testing.T) {
		foreign := unmarkedRecord()
		foreign.TenantID = "tenant-2"
		svc := newFlagServiceForTest(&flagStoreStub{}, &attendanceStoreStub{records: map[string]*models.AttendanceRecord{"record-1": foreign}})
		_, err := svc.RaiseFlag(context.Background(), raiseRequest(), facultyActor())
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
	})
}

func TestFlagServiceResolveFlagClosesOpenFlag(t *testing.T) {
	store := &flagStoreStub{flags: map[string]*models.IntegrityFlag{"flag-1": openFlagFixture()}}
	svc := newFlagServiceForTest(store, &attendanceStoreStub{})
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, TenantID: "tenant-1"}

	flag, err := svc.ResolveFlag(context.Background(), ResolveFlagInput{
		FlagID:        "flag-1",
		Resolution:    "verified against the enrollment card",
		CorrelationID: "req-42",
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, models.FlagResolved, flag.State)
	require.NotNil(t, flag.Resolution)
	assert.Equal(t, "verified against the enrollment card", *flag.Resolution)
	require.NotNil(t, flag.ResolvedBy)
	assert.Equal(t, "admin-1", *flag.ResolvedBy)
	assert.NotNil(t, flag.ResolvedAt)

	require.NotNil(t, store.resolve)
	assert.Equal(t, "flag-1", store.resolve.FlagID)
	assert.Equal(t, "admin-1", store.resolve.ResolvedBy)
	require.NotNil(t, store.resolve.Entry)
	assert.Equal(t, models.ActionFlagResolved, store.resolve.Entry.ActionType)
	assert.Equal(t, "req-42", store.resolve.Entry.CorrelationID)
	assert.Contains(t, string(store.resolve.Entry.BeforeState), string(models.FlagOpen))
	assert.Contains(t, string(store.resolve.Entry.AfterState), string(models.FlagResolved))
}

func TestFlagServiceResolveFlagAlreadyResolved(t *testing.T) {
	resolved := openFlagFixture()
	resolved.State = models.FlagResolved
	store := &flagStoreStub{flags: map[string]*models.IntegrityFlag{"flag-1": resolved}}
	svc := newFlagServiceForTest(store, &attendanceStoreStub{})
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, TenantID: "tenant-1"}

	_, err := svc.ResolveFlag(context.Background(), ResolveFlagInput{FlagID: "flag-1", Resolution: "closing again"}, admin)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "already resolved")
	assert.Nil(t, store.resolve)
}

func TestFlagServiceResolveFlagConcurrentLoss(t *testing.T) {
	store := &flagStoreStub{
		flags:      map[string]*models.IntegrityFlag{"flag-1": openFlagFixture()},
		resolveErr: sql.ErrNoRows,
	}
	svc := newFlagServiceForTest(store, &attendanceStoreStub{})
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, TenantID: "tenant-1"}

	_, err := svc.ResolveFlag(context.Background(), ResolveFlagInput{FlagID: "flag-1", Resolution: "verified"}, admin)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "concurrently")
}

func TestFlagServiceResolveFlagValidation(t *testing.T) {
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, TenantID: "tenant-1"}

	t.Run("blank resolution", func(t *testing.T) {
		svc := newFlagServiceForTest(&flagStoreStub{}, &attendanceStoreStub{})
		_, err := svc.ResolveFlag(context.Background(), ResolveFlagInput{FlagID: "flag-1", Resolution: "  "}, admin)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})
	t.Run("flag not found", func(t *testing.T) {
		svc := newFlagServiceForTest(&flagStoreStub{}, &attendanceStoreStub{})
		_, err := svc.ResolveFlag(context.Background(), ResolveFlagInput{FlagID: "missing", Resolution: "verified"}, admin)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	})
	t.Run("cross tenant", func(t *testing.T) {
		foreign := openFlagFixture()
		foreign.TenantID = "tenant-2"
		svc := newFlagServiceForTest(&flagStoreStub{flags: map[string]*models.IntegrityFlag{"flag-1": foreign}}, &attendanceStoreStub{})
		_, err := svc.ResolveFlag(context.Background(), ResolveFlagInput{FlagID: "flag-1", Resolution: "verified"}, admin)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
	})
}

func TestFlagServiceListFlagsScopesToActorTenant(t *testing.T) {
	store := &flagStoreStub{listTotal: 2}
	svc := newFlagServiceForTest(store, &attendanceStoreStub{})

	_, pagination, cacheHit, err := svc.ListFlags(context.Background(), models.FlagFilter{TenantID: "tenant-9"}, facultyActor())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, "tenant-1", store.listFilter.TenantID)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)

	member := &models.JWTClaims{UserID: "member-1", Role: models.RoleMember, TenantID: "tenant-1"}
	_, _, _, err = svc.ListFlags(context.Background(), models.FlagFilter{TenantID: "tenant-1"}, member)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)

	root := &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin}
	_, _, _, err = svc.ListFlags(context.Background(), models.FlagFilter{}, root)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
