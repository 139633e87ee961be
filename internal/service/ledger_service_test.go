package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/pkg/config"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
)

type ledgerRepoStub struct {
	appended  []*models.LedgerEntry
	entries   []models.LedgerEntry
	lastQuery models.LedgerScopeQuery
	total     int
}

func (s *ledgerRepoStub) Append(ctx context.Context, entry *models.LedgerEntry) error {
	s.appended = append(s.appended, entry)
	return nil
}

func (s *ledgerRepoStub) ListByResource(ctx context.Context, resourceType, resourceID string) ([]models.LedgerEntry, error) {
	return s.entries, nil
}

func (s *ledgerRepoStub) ListByScope(ctx context.Context, q models.LedgerScopeQuery) ([]models.LedgerEntry, int, error) {
	s.lastQuery = q
	return s.entries, s.total, nil
}

func newLedgerServiceForTest(repo *ledgerRepoStub) *LedgerService {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return NewLedgerService(config.StorageConfig{Timeout: time.Second}, repo, fixedClock{now: now}, nil, nil)
}

func validAppendInput() AppendInput {
	return AppendInput{
		Scope:        models.ScopeAttendance,
		TenantID:     "tenant-1",
		UserID:       "student-1",
		ActorID:      "faculty-1",
		ActionType:   models.ActionStateTransition,
		ResourceType: models.ResourceAttendanceRecord,
		ResourceID:   "record-1",
		BeforeState:  []byte(`{"status":"UNMARKED"}`),
		AfterState:   []byte(`{"status":"PRESENT"}`),
		Reason:       "marked by faculty",
	}
}

func TestLedgerServicePrepareStampsEntry(t *testing.T) {
	svc := newLedgerServiceForTest(&ledgerRepoStub{})

	entry, err := svc.Prepare(validAppendInput())
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), entry.OccurredAt)
	require.NotNil(t, entry.TenantID)
	assert.Equal(t, "tenant-1", *entry.TenantID)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "faculty-1", *entry.ActorID)

	computed, match, err := verifyChecksum(entry)
	require.NoError(t, err)
	assert.True(t, match)
	assert.Equal(t, entry.Checksum, computed)
}

func TestLedgerServicePrepareValidation(t *testing.T) {
	svc := newLedgerServiceForTest(&ledgerRepoStub{})

	cases := []struct {
		name   string
		mutate func(*AppendInput)
	}{
		{"unknown scope", func(in *AppendInput) { in.Scope = "PLANETARY" }},
		{"unknown action", func(in *AppendInput) { in.ActionType = "DOMAIN_RENAME" }},
		{"missing actor", func(in *AppendInput) { in.ActorID = "  " }},
		{"missing resource id", func(in *AppendInput) { in.ResourceID = "" }},
		{"missing reason for transition", func(in *AppendInput) { in.Reason = "" }},
		{"tenant scope without tenant", func(in *AppendInput) {
			in.Scope = models.ScopeTenant
			in.TenantID = ""
		}},
		{"user scope without user", func(in *AppendInput) {
			in.Scope = models.ScopeUser
			in.UserID = ""
		}},
		{"create without after state", func(in *AppendInput) {
			in.ActionType = models.ActionDomainCreate
			in.AfterState = nil
			in.Reason = ""
		}},
		{"delete without before state", func(in *AppendInput) {
			in.ActionType = models.ActionDomainDelete
			in.BeforeState = nil
			in.Reason = "cleanup"
		}},
		{"transition without before state", func(in *AppendInput) { in.BeforeState = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validAppendInput()
			tc.mutate(&input)
			_, err := svc.Prepare(input)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestLedgerServicePrepareRejectsMalformedSnapshot(t *testing.T) {
	svc := newLedgerServiceForTest(&ledgerRepoStub{})
	input := validAppendInput()
	input.AfterState = []byte(`{broken`)

	_, err := svc.Prepare(input)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLedgerServiceAppendPersists(t *testing.T) {
	repo := &ledgerRepoStub{}
	svc := newLedgerServiceForTest(repo)

	entry, err := svc.Append(context.Background(), validAppendInput())
	require.NoError(t, err)
	require.Len(t, repo.appended, 1)
	assert.Equal(t, entry.ID, repo.appended[0].ID)
	assert.NotEmpty(t, entry.Checksum)
}

func TestLedgerServiceQueryByScopeAuthz(t *testing.T) {
	superadmin := &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin}
	adminA := &models.JWTClaims{UserID: "admin-a", Role: models.RoleAdmin, TenantID: "tenant-a"}
	facultyA := &models.JWTClaims{UserID: "faculty-a", Role: models.RoleFaculty, TenantID: "tenant-a"}
	memberA := &models.JWTClaims{UserID: "member-a", Role: models.RoleMember, TenantID: "tenant-a"}

	cases := []struct {
		name     string
		query    models.LedgerScopeQuery
		actor    *models.JWTClaims
		wantCode string
	}{
		{"global superadmin", models.LedgerScopeQuery{Scope: models.ScopeGlobal}, superadmin, ""},
		{"global admin denied", models.LedgerScopeQuery{Scope: models.ScopeGlobal}, adminA, appErrors.ErrPermissionDenied.Code},
		{"tenant admin own", models.LedgerScopeQuery{Scope: models.ScopeTenant, TenantID: "tenant-a"}, adminA, ""},
		{"tenant admin foreign", models.LedgerScopeQuery{Scope: models.ScopeTenant, TenantID: "tenant-b"}, adminA, appErrors.ErrPermissionDenied.Code},
		{"tenant faculty denied", models.LedgerScopeQuery{Scope: models.ScopeTenant, TenantID: "tenant-a"}, facultyA, appErrors.ErrPermissionDenied.Code},
		{"tenant missing id", models.LedgerScopeQuery{Scope: models.ScopeTenant}, adminA, appErrors.ErrValidation.Code},
		{"user self", models.LedgerScopeQuery{Scope: models.ScopeUser, UserID: "member-a"}, memberA, ""},
		{"user admin other", models.LedgerScopeQuery{Scope: models.ScopeUser, UserID: "member-z"}, adminA, ""},
		{"user admin foreign tenant", models.LedgerScopeQuery{Scope: models.ScopeUser, UserID: "member-z", TenantID: "tenant-b"}, adminA, appErrors.ErrPermissionDenied.Code},
		{"user member other", models.LedgerScopeQuery{Scope: models.ScopeUser, UserID: "member-z"}, memberA, appErrors.ErrPermissionDenied.Code},
		{"user missing id", models.LedgerScopeQuery{Scope: models.ScopeUser}, memberA, appErrors.ErrValidation.Code},
		{"attendance faculty own", models.LedgerScopeQuery{Scope: models.ScopeAttendance, TenantID: "tenant-a"}, facultyA, ""},
		{"attendance faculty foreign", models.LedgerScopeQuery{Scope: models.ScopeAttendance, TenantID: "tenant-b"}, facultyA, appErrors.ErrPermissionDenied.Code},
		{"attendance member denied", models.LedgerScopeQuery{Scope: models.ScopeAttendance, TenantID: "tenant-a"}, memberA, appErrors.ErrPermissionDenied.Code},
		{"invalid scope", models.LedgerScopeQuery{Scope: "PLANETARY"}, superadmin, appErrors.ErrValidation.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newLedgerServiceForTest(&ledgerRepoStub{})
			_, _, err := svc.QueryByScope(context.Background(), tc.query, tc.actor)
			if tc.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, appErrors.FromError(err).Code)
		})
	}
}

func TestLedgerServiceQueryByScopeUserTenantPinning(t *testing.T) {
	repo := &ledgerRepoStub{}
	svc := newLedgerServiceForTest(repo)
	adminA := &models.JWTClaims{UserID: "admin-a", Role: models.RoleAdmin, TenantID: "tenant-a"}

	// An admin reading another user is confined to their own tenant.
	_, _, err := svc.QueryByScope(context.Background(), models.LedgerScopeQuery{
		Scope:  models.ScopeUser,
		UserID: "member-z",
	}, adminA)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", repo.lastQuery.TenantID)

	// Naming another tenant is refused outright, not answered with the
	// pinned (empty) page.
	_, _, err = svc.QueryByScope(context.Background(), models.LedgerScopeQuery{
		Scope:    models.ScopeUser,
		UserID:   "member-z",
		TenantID: "tenant-b",
	}, adminA)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)

	// Reading your own history is not tenant-filtered.
	memberA := &models.JWTClaims{UserID: "member-a", Role: models.RoleMember, TenantID: "tenant-a"}
	_, _, err = svc.QueryByScope(context.Background(), models.LedgerScopeQuery{
		Scope:    models.ScopeUser,
		UserID:   "member-a",
		TenantID: "tenant-b",
	}, memberA)
	require.NoError(t, err)
	assert.Equal(t, "", repo.lastQuery.TenantID)
}

func TestLedgerServiceQueryByScopePagination(t *testing.T) {
	repo := &ledgerRepoStub{total: 57}
	svc := newLedgerServiceForTest(repo)
	superadmin := &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin}

	_, pagination, err := svc.QueryByScope(context.Background(), models.LedgerScopeQuery{
		Scope:    models.ScopeGlobal,
		Page:     -3,
		PageSize: 1000,
	}, superadmin)
	require.NoError(t, err)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 57, pagination.TotalCount)
	assert.Equal(t, 1, repo.lastQuery.Page)
	assert.Equal(t, 20, repo.lastQuery.PageSize)
}

func TestLedgerServiceQueryByResourceTenantFiltering(t *testing.T) {
	tenantA := "tenant-a"
	tenantB := "tenant-b"
	repo := &ledgerRepoStub{entries: []models.LedgerEntry{
		{ID: "e1", TenantID: &tenantA},
		{ID: "e2", TenantID: &tenantB},
		{ID: "e3", TenantID: &tenantA},
	}}
	svc := newLedgerServiceForTest(repo)

	superadmin := &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin}
	all, err := svc.QueryByResource(context.Background(), models.LedgerResourceQuery{
		ResourceType: models.ResourceAttendanceRecord,
		ResourceID:   "record-1",
	}, superadmin)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	adminA := &models.JWTClaims{UserID: "admin-a", Role: models.RoleAdmin, TenantID: "tenant-a"}
	visible, err := svc.QueryByResource(context.Background(), models.LedgerResourceQuery{
		ResourceType: models.ResourceAttendanceRecord,
		ResourceID:   "record-1",
	}, adminA)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, "e1", visible[0].ID)
	assert.Equal(t, "e3", visible[1].ID)
}

func TestLedgerServiceQueryByResourceDeniesForeignResource(t *testing.T) {
	tenantB := "tenant-b"
	repo := &ledgerRepoStub{entries: []models.LedgerEntry{{ID: "e1", TenantID: &tenantB}}}
	svc := newLedgerServiceForTest(repo)
	adminA := &models.JWTClaims{UserID: "admin-a", Role: models.RoleAdmin, TenantID: "tenant-a"}

	_, err := svc.QueryByResource(context.Background(), models.LedgerResourceQuery{
		ResourceType: models.ResourceAttendanceRecord,
		ResourceID:   "record-1",
	}, adminA)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
}

func TestLedgerServiceQueryByResourceValidation(t *testing.T) {
	svc := newLedgerServiceForTest(&ledgerRepoStub{})
	superadmin := &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin}

	_, err := svc.QueryByResource(context.Background(), models.LedgerResourceQuery{}, superadmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.QueryByResource(context.Background(), models.LedgerResourceQuery{ResourceType: "x", ResourceID: "y"}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
