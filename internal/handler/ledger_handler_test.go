package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/internal/service"
)

type ledgerServiceMock struct {
	appendInput *service.AppendInput
	scopeQuery  *models.LedgerScopeQuery
}

func (m *ledgerServiceMock) Append(ctx context.Context, input service.AppendInput) (*models.LedgerEntry, error) {
	m.appendInput = &input
	return &models.LedgerEntry{ID: "entry-1", Checksum: "sha256:abc"}, nil
}

func (m *ledgerServiceMock) QueryByResource(ctx context.Context, q models.LedgerResourceQuery, actor *models.JWTClaims) ([]models.LedgerEntry, error) {
	return nil, nil
}

func (m *ledgerServiceMock) QueryByScope(ctx context.Context, q models.LedgerScopeQuery, actor *models.JWTClaims) ([]models.LedgerEntry, *models.Pagination, error) {
	m.scopeQuery = &q
	return nil, &models.Pagination{Page: q.Page, PageSize: q.PageSize}, nil
}

func TestLedgerHandlerAppendUsesActorFromClaims(t *testing.T) {
	mock := &ledgerServiceMock{}
	handler := NewLedgerHandler(mock)
	c, w := newAttendanceTestContext(t, http.MethodPost, "/ledger/entries",
		`{"scope":"tenant","tenantId":"tenant-1","actionType":"domain_update","resourceType":"tenant_settings","resourceId":"tenant-1","beforeState":{"grace":5},"afterState":{"grace":10},"reason":"policy change"}`)

	handler.Append(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, mock.appendInput)
	require.Equal(t, "faculty-1", mock.appendInput.ActorID)
	require.Equal(t, models.ScopeTenant, mock.appendInput.Scope)
	require.Equal(t, models.ActionDomainUpdate, mock.appendInput.ActionType)
}

func TestLedgerHandlerAppendRejectsUnknownScope(t *testing.T) {
	handler := NewLedgerHandler(&ledgerServiceMock{})
	c, w := newAttendanceTestContext(t, http.MethodPost, "/ledger/entries",
		`{"scope":"PLANETARY","actionType":"DOMAIN_UPDATE","resourceType":"x","resourceId":"y"}`)

	handler.Append(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLedgerHandlerQueryInvalidTimeBound(t *testing.T) {
	handler := NewLedgerHandler(&ledgerServiceMock{})
	c, w := newAttendanceTestContext(t, http.MethodGet, "/ledger/entries?scope=GLOBAL&from=yesterday", "")

	handler.Query(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLedgerHandlerQueryForwardsWindow(t *testing.T) {
	mock := &ledgerServiceMock{}
	handler := NewLedgerHandler(mock)
	c, w := newAttendanceTestContext(t, http.MethodGet,
		"/ledger/entries?scope=attendance&tenantId=tenant-1&from=2026-03-10T00:00:00Z&page=2&pageSize=50", "")

	handler.Query(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.scopeQuery)
	require.Equal(t, models.ScopeAttendance, mock.scopeQuery.Scope)
	require.NotNil(t, mock.scopeQuery.From)
	require.Equal(t, 2, mock.scopeQuery.Page)
	require.Equal(t, 50, mock.scopeQuery.PageSize)
}
