package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smartattend/integrity-api/internal/dto"
	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/internal/service"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
	"github.com/smartattend/integrity-api/pkg/response"
)

type exportService interface {
	GenerateTrail(ctx context.Context, q models.LedgerScopeQuery, format models.ExportFormat, actor *models.JWTClaims) (*service.TrailExport, error)
	ResolveDownload(ctx context.Context, token string) (*service.TrailDownload, error)
}

// ExportHandler hands out rendered extracts of the audit ledger. Creation
// requires an authenticated actor; downloads carry their authorization in
// the signed token.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Create godoc
// @Summary Export an audit-trail extract
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body dto.ExportTrailRequest true "Export parameters"
// @Success 201 {object} response.Envelope
// @Router /ledger/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	var req dto.ExportTrailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid export payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := models.LedgerScopeQuery{
		Scope:    models.LedgerScope(strings.ToUpper(req.Scope)),
		TenantID: req.TenantID,
		UserID:   req.UserID,
	}
	if req.From != "" {
		parsed, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from parameter"))
			return
		}
		query.From = &parsed
	}
	if req.To != "" {
		parsed, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to parameter"))
			return
		}
		query.To = &parsed
	}
	result, err := h.service.GenerateTrail(c.Request.Context(), query, models.ExportFormat(strings.ToLower(req.Format)), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// Download godoc
// @Summary Download a generated export artifact
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.MimeType, result.File, nil)
}
