package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/smartattend/integrity-api/internal/dto"
	"github.com/smartattend/integrity-api/internal/middleware"
	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/internal/service"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
)

type exportServiceMock struct {
	query       *models.LedgerScopeQuery
	format      models.ExportFormat
	generateErr error
	download    *service.TrailDownload
	downloadErr error
}

func (m *exportServiceMock) GenerateTrail(ctx context.Context, q models.LedgerScopeQuery, format models.ExportFormat, actor *models.JWTClaims) (*service.TrailExport, error) {
	m.query = &q
	m.format = format
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	return &service.TrailExport{
		ID:         "export-1",
		Token:      "token-1",
		URL:        "/api/v1/export/token-1",
		Format:     format,
		EntryCount: 3,
		ExpiresAt:  time.Now().Add(time.Hour),
	}, nil
}

func (m *exportServiceMock) ResolveDownload(ctx context.Context, token string) (*service.TrailDownload, error) {
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	return m.download, nil
}

func newExportTestContext(t *testing.T, method, target string, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dto.RegisterValidations()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, TenantID: "tenant-1"})
	return c, w
}

func TestExportHandlerCreateReturnsLink(t *testing.T) {
	mock := &exportServiceMock{}
	handler := NewExportHandler(mock)
	c, w := newExportTestContext(t, http.MethodPost, "/ledger/exports",
		`{"scope":"tenant","tenantId":"tenant-1","format":"csv","from":"2026-03-01T00:00:00Z"}`)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, mock.query)
	require.Equal(t, models.ScopeTenant, mock.query.Scope)
	require.Equal(t, "tenant-1", mock.query.TenantID)
	require.NotNil(t, mock.query.From)
	require.Equal(t, models.ExportFormatCSV, mock.format)
	require.Contains(t, w.Body.String(), "token-1")
}

func TestExportHandlerCreateRejectsUnknownFormat(t *testing.T) {
	handler := NewExportHandler(&exportServiceMock{})
	c, w := newExportTestContext(t, http.MethodPost, "/ledger/exports",
		`{"scope":"tenant","format":"xlsx"}`)

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportHandlerCreateRejectsBadWindow(t *testing.T) {
	handler := NewExportHandler(&exportServiceMock{})
	c, w := newExportTestContext(t, http.MethodPost, "/ledger/exports",
		`{"scope":"tenant","format":"csv","from":"yesterday"}`)

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportHandlerDownloadStreamsArtifact(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "trail*.csv")
	require.NoError(t, err)
	_, err = file.WriteString("data")
	require.NoError(t, err)
	_, err = file.Seek(0, 0)
	require.NoError(t, err)

	mock := &exportServiceMock{download: &service.TrailDownload{
		File:      file,
		Filename:  "trail.csv",
		SizeBytes: 4,
		MimeType:  "text/csv",
	}}
	handler := NewExportHandler(mock)
	c, w := newExportTestContext(t, http.MethodGet, "/export/token-1", "")
	c.Params = gin.Params{{Key: "token", Value: "token-1"}}

	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "data", w.Body.String())
	require.Contains(t, w.Header().Get("Content-Disposition"), "trail.csv")
}

func TestExportHandlerDownloadRejectsBadToken(t *testing.T) {
	mock := &exportServiceMock{downloadErr: appErrors.Clone(appErrors.ErrPermissionDenied, "invalid or expired download token")}
	handler := NewExportHandler(mock)
	c, w := newExportTestContext(t, http.MethodGet, "/export/bogus", "")
	c.Params = gin.Params{{Key: "token", Value: "bogus"}}

	handler.Download(c)
	require.Equal(t, http.StatusForbidden, w.Code)

	c2, w2 := newExportTestContext(t, http.MethodGet, "/export/", "")
	handler.Download(c2)
	require.Equal(t, http.StatusBadRequest, w2.Code)
}
