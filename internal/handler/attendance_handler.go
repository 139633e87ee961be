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

type attendanceService interface {
	CheckIn(ctx context.Context, input service.CheckInInput, actor *models.JWTClaims) (*service.CheckInResult, error)
	Transition(ctx context.Context, input service.TransitionInput, actor *models.JWTClaims) (*models.AttendanceRecord, error)
	Get(ctx context.Context, recordID string, actor *models.JWTClaims) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter, actor *models.JWTClaims) ([]models.AttendanceRecord, *models.Pagination, error)
}

// AttendanceHandler exposes the attendance state machine over REST.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(service attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// CheckIn godoc
// @Summary Mark attendance for a session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.CheckInRequest true "Check-in payload"
// @Success 201 {object} response.Envelope
// @Router /attendance/check-ins [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "attendance service not configured"))
		return
	}
	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid check-in payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	input := service.CheckInInput{
		TenantID:      req.TenantID,
		SubjectID:     req.SubjectID,
		SessionID:     req.SessionID,
		Status:        models.AttendanceStatus(strings.ToUpper(req.Status)),
		Reason:        req.Reason,
		CorrelationID: requestid.Value(c),
	}
	if req.ClientTimestamp != nil {
		input.ClientTimestamp = *req.ClientTimestamp
	}
	result, err := h.service.CheckIn(c.Request.Context(), input, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// Transition godoc
// @Summary Transition an attendance record to a new status
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.TransitionRequest true "Target status and reason"
// @Success 200 {object} response.Envelope
// @Router /attendance/records/{id}/transition [post]
func (h *AttendanceHandler) Transition(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "attendance service not configured"))
		return
	}
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	input := service.TransitionInput{
		RecordID:      c.Param("id"),
		Target:        models.AttendanceStatus(strings.ToUpper(req.TargetStatus)),
		Reason:        req.Reason,
		CorrelationID: requestid.Value(c),
	}
	record, err := h.service.Transition(c.Request.Context(), input, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Get godoc
// @Summary Get an attendance record
// @Tags Attendance
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/records/{id} [get]
func (h *AttendanceHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "attendance service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param sessionId query string false "Filter by session"
// @Param subjectId query string false "Filter by subject"
// @Param status query string false "Filter by status"
// @Param tenantId query string false "Tenant override (superadmin only)"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance/records [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "attendance service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.AttendanceFilter{
		TenantID:  c.Query("tenantId"),
		SessionID: c.Query("sessionId"),
		SubjectID: c.Query("subjectId"),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		status := models.AttendanceStatus(strings.ToUpper(strings.TrimSpace(rawStatus)))
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown attendance status"))
			return
		}
		filter.Status = &status
	}
	filter.Page, filter.PageSize = pageParams(c)
	records, pagination, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}
