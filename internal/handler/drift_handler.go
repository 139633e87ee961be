package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smartattend/integrity-api/internal/middleware"
	"github.com/smartattend/integrity-api/internal/models"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
	"github.com/smartattend/integrity-api/pkg/response"
)

type driftReader interface {
	ListEvents(ctx context.Context, filter models.DriftEventFilter, actor *models.JWTClaims) ([]models.DriftEvent, *models.Pagination, error)
	Stats(ctx context.Context, tenantID string, from, to time.Time, actor *models.JWTClaims) (*models.DriftStats, bool, error)
}

// DriftHandler exposes read access to the clock drift audit trail. Events
// are produced by the check-in pipeline; nothing here writes.
type DriftHandler struct {
	service driftReader
}

// NewDriftHandler constructs the handler.
func NewDriftHandler(service driftReader) *DriftHandler {
	return &DriftHandler{service: service}
}

// Events godoc
// @Summary List clock drift events
// @Tags Drift
// @Produce json
// @Param tenantId query string false "Tenant override (superadmin only)"
// @Param userId query string false "Filter by user"
// @Param severity query string false "INFO, WARNING or CRITICAL"
// @Param decision query string false "ALLOW, ALLOW_AND_FLAG or BLOCK"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /drift/events [get]
func (h *DriftHandler) Events(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "drift service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.DriftEventFilter{
		TenantID: c.Query("tenantId"),
		UserID:   c.Query("userId"),
	}
	if raw := c.Query("severity"); raw != "" {
		severity := models.DriftSeverity(strings.ToUpper(strings.TrimSpace(raw)))
		if !severity.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown drift severity"))
			return
		}
		filter.Severity = &severity
	}
	if raw := c.Query("decision"); raw != "" {
		decision := models.DriftDecision(strings.ToUpper(strings.TrimSpace(raw)))
		if !decision.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown drift decision"))
			return
		}
		filter.Decision = &decision
	}
	from, err := parseTimeParam(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.From = from
	to, err := parseTimeParam(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.To = to
	filter.Page, filter.PageSize = pageParams(c)
	events, pagination, err := h.service.ListEvents(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Stats godoc
// @Summary Aggregate drift statistics for a tenant
// @Tags Drift
// @Produce json
// @Param tenantId query string false "Tenant (defaults to the actor's)"
// @Param from query string false "RFC3339 window start, defaults to 24h before the end"
// @Param to query string false "RFC3339 window end, defaults to now"
// @Success 200 {object} response.Envelope
// @Router /drift/stats [get]
func (h *DriftHandler) Stats(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "drift service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	tenantID := c.Query("tenantId")
	if tenantID == "" {
		tenantID = claims.TenantID
	}
	var from, to time.Time
	if parsed, err := parseTimeParam(c, "from"); err != nil {
		response.Error(c, err)
		return
	} else if parsed != nil {
		from = *parsed
	}
	if parsed, err := parseTimeParam(c, "to"); err != nil {
		response.Error(c, err)
		return
	} else if parsed != nil {
		to = *parsed
	}
	start := time.Now()
	stats, cacheHit, err := h.service.Stats(c.Request.Context(), tenantID, from, to, claims)
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
	response.JSON(c, http.StatusOK, stats, nil, meta)
}
