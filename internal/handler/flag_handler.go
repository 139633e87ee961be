package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smartattend/integrity-api/internal/dto"
	"github.com/smartattend/integrity-api/internal/middleware"
	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/internal/service"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
	"github.com/smartattend/integrity-api/pkg/middleware/requestid"
	"github.com/smartattend/integrity-api/pkg/response"
)

type flagService interface {
	RaiseFlag(ctx context.Context, input service.RaiseFlagInput, actor *models.JWTClaims) (*models.IntegrityFlag, error)
	ResolveFlag(ctx context.Context, input service.ResolveFlagInput, actor *models.JWTClaims) (*models.IntegrityFlag, error)
	ListFlags(ctx context.Context, filter models.FlagFilter, actor *models.JWTClaims) ([]models.IntegrityFlag, *models.Pagination, bool, error)
}

// FlagHandler exposes integrity flag workflows.
type FlagHandler struct {
	service flagService
}

// NewFlagHandler constructs the handler.
func NewFlagHandler(service flagService) *FlagHandler {
	return &FlagHandler{service: service}
}

// Raise godoc
// @Summary Raise an integrity flag on an attendance record
// @Tags Flags
// @Accept json
// @Produce json
// @Param payload body dto.RaiseFlagRequest true "Flag payload"
// @Success 201 {object} response.Envelope
// @Router /flags [post]
func (h *FlagHandler) Raise(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "flag service not configured"))
		return
	}
	var req dto.RaiseFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid flag payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	input := service.RaiseFlagInput{
		RecordID:      req.RecordID,
		FlagType:      models.FlagType(strings.ToUpper(req.FlagType)),
		Severity:      models.FlagSeverity(strings.ToUpper(req.Severity)),
		Reason:        req.Reason,
		CorrelationID: requestid.Value(c),
	}
	flag, err := h.service.RaiseFlag(c.Request.Context(), input, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, flag, nil)
}

// Resolve godoc
// @Summary Resolve an open integrity flag
// @Tags Flags
// @Accept json
// @Produce json
// @Param id path string true "Flag ID"
// @Param payload body dto.ResolveFlagRequest true "Resolution note"
// @Success 200 {object} response.Envelope
// @Router /flags/{id}/resolve [post]
func (h *FlagHandler) Resolve(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "flag service not configured"))
		return
	}
	var req dto.ResolveFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resolution payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	input := service.ResolveFlagInput{
		FlagID:        c.Param("id"),
		Resolution:    req.Resolution,
		CorrelationID: requestid.Value(c),
	}
	flag, err := h.service.ResolveFlag(c.Request.Context(), input, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, flag, nil)
}

// List godoc
// @Summary List integrity flags
// @Tags Flags
// @Produce json
// @Param recordId query string false "Filter by attendance record"
// @Param includeResolved query bool false "Include resolved flags"
// @Param tenantId query string false "Tenant override (superadmin only)"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /flags [get]
func (h *FlagHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "flag service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.FlagFilter{
		RecordID: c.Query("recordId"),
		TenantID: c.Query("tenantId"),
	}
	if raw := c.Query("includeResolved"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid includeResolved parameter"))
			return
		}
		filter.IncludeResolved = include
	}
	filter.Page, filter.PageSize = pageParams(c)
	start := time.Now()
	flags, pagination, cacheHit, err := h.service.ListFlags(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, flags, pagination, meta)
}
