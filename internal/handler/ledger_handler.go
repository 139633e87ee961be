package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smartattend/integrity-api/internal/dto"
	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/internal/service"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
	"github.com/smartattend/integrity-api/pkg/middleware/requestid"
	"github.com/smartattend/integrity-api/pkg/response"
)

type ledgerService interface {
	Append(ctx context.Context, input service.AppendInput) (*models.LedgerEntry, error)
	QueryByResource(ctx context.Context, q models.LedgerResourceQuery, actor *models.JWTClaims) ([]models.LedgerEntry, error)
	QueryByScope(ctx context.Context, q models.LedgerScopeQuery, actor *models.JWTClaims) ([]models.LedgerEntry, *models.Pagination, error)
}

// LedgerHandler exposes the audit ledger over REST. Entries appended here
// are subject to the same validation and checksumming as the ones written
// by the attendance and flag pipelines.
type LedgerHandler struct {
	service ledgerService
}

// NewLedgerHandler constructs the handler.
func NewLedgerHandler(service ledgerService) *LedgerHandler {
	return &LedgerHandler{service: service}
}

// Append godoc
// @Summary Append a domain audit entry
// @Tags Ledger
// @Accept json
// @Produce json
// @Param payload body dto.AppendEntryRequest true "Ledger entry payload"
// @Success 201 {object} response.Envelope
// @Router /ledger/entries [post]
func (h *LedgerHandler) Append(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "ledger service not configured"))
		return
	}
	var req dto.AppendEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid ledger entry payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	input := service.AppendInput{
		Scope:         models.LedgerScope(strings.ToUpper(req.Scope)),
		TenantID:      req.TenantID,
		UserID:        req.UserID,
		ActorID:       claims.UserID,
		ActionType:    models.LedgerActionType(strings.ToUpper(req.ActionType)),
		ResourceType:  req.ResourceType,
		ResourceID:    req.ResourceID,
		BeforeState:   req.BeforeState,
		AfterState:    req.AfterState,
		Reason:        req.Reason,
		CorrelationID: requestid.Value(c),
	}
	entry, err := h.service.Append(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, entry, nil)
}

// Query godoc
// @Summary Query ledger entries by scope
// @Tags Ledger
// @Produce json
// @Param scope query string true "GLOBAL, TENANT, USER or ATTENDANCE"
// @Param tenantId query string false "Tenant filter"
// @Param userId query string false "User filter (USER scope)"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /ledger/entries [get]
func (h *LedgerHandler) Query(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "ledger service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := models.LedgerScopeQuery{
		Scope:    models.LedgerScope(strings.ToUpper(c.Query("scope"))),
		TenantID: c.Query("tenantId"),
		UserID:   c.Query("userId"),
	}
	from, err := parseTimeParam(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	query.From = from
	to, err := parseTimeParam(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	query.To = to
	query.Page, query.PageSize = pageParams(c)
	entries, pagination, err := h.service.QueryByScope(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// ResourceHistory godoc
// @Summary Full audit history of one resource
// @Tags Ledger
// @Produce json
// @Param type path string true "Resource type"
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Router /ledger/resources/{type}/{id} [get]
func (h *LedgerHandler) ResourceHistory(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "ledger service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := models.LedgerResourceQuery{
		ResourceType: c.Param("type"),
		ResourceID:   c.Param("id"),
	}
	entries, err := h.service.QueryByResource(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
