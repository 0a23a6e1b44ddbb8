package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attend-api/internal/models"
	"github.com/noah-isme/sma-attend-api/internal/service"
	appErrors "github.com/noah-isme/sma-attend-api/pkg/errors"
	"github.com/noah-isme/sma-attend-api/pkg/response"
)

// AlertHandler exposes alert management endpoints.
type AlertHandler struct {
	service *service.AlertService
}

// NewAlertHandler constructs the handler.
func NewAlertHandler(svc *service.AlertService) *AlertHandler {
	return &AlertHandler{service: svc}
}

// List handles GET /alerts.
//
// @Summary      List alerts
// @Tags         alerts
// @Produce      json
// @Param        type         query string false "consecutive_absence or low_attendance"
// @Param        student_id   query string false "Filter by student"
// @Param        acknowledged query bool   false "Filter by acknowledged state"
// @Success      200 {object} response.Envelope
// @Router       /alerts [get]
func (h *AlertHandler) List(c *gin.Context) {
	filter := models.AlertFilter{
		StudentID: c.Query("student_id"),
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "page_size", 50),
	}
	if raw := c.Query("type"); raw != "" {
		alertType := models.AlertType(raw)
		if !alertType.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid type filter"))
			return
		}
		filter.Type = &alertType
	}
	if raw := c.Query("acknowledged"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid acknowledged filter"))
			return
		}
		filter.Acknowledged = &value
	}

	alerts, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alerts, pagination)
}

// Scan handles POST /alerts/scan.
//
// @Summary      Run an alert scan now
// @Tags         alerts
// @Produce      json
// @Success      200 {object} response.Envelope
// @Failure      409 {object} response.Envelope "a scan is already running"
// @Router       /alerts/scan [post]
func (h *AlertHandler) Scan(c *gin.Context) {
	result, err := h.service.Scan(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Acknowledge handles POST /alerts/:id/acknowledge.
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Acknowledge(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type acknowledgeManyRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// AcknowledgeMany handles POST /alerts/acknowledge.
func (h *AlertHandler) AcknowledgeMany(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req acknowledgeManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	count, err := h.service.AcknowledgeMany(c.Request.Context(), req.IDs, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"acknowledged": count}, nil)
}

// Dismiss handles DELETE /alerts/:id.
func (h *AlertHandler) Dismiss(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Dismiss(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type notifyAlertRequest struct {
	Recipients []string `json:"recipients"`
}

// Notify handles POST /alerts/:id/notify.
//
// @Summary      Send an alert to the named recipients, or the configured ones
// @Tags         alerts
// @Accept       json
// @Produce      json
// @Param        id      path string             true  "Alert id"
// @Param        request body notifyAlertRequest false "Optional recipient kinds (guardian, student, admin)"
// @Success      204
// @Failure      422 {object} response.Envelope "no reachable recipients"
// @Router       /alerts/{id}/notify [post]
func (h *AlertHandler) Notify(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req notifyAlertRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
			return
		}
	}
	if err := h.service.Notify(c.Request.Context(), c.Param("id"), req.Recipients, claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Config handles GET /alerts/config.
func (h *AlertHandler) Config(c *gin.Context) {
	cfg, err := h.service.Config(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// UpdateConfig handles PUT /alerts/config.
func (h *AlertHandler) UpdateConfig(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateAlertConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	cfg, err := h.service.UpdateConfig(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// LowAttendanceReport handles GET /alerts/reports/low-attendance.
func (h *AlertHandler) LowAttendanceReport(c *gin.Context) {
	filter := models.StudentsSummaryFilter{SubjectID: c.Query("subject_id")}
	var err error
	if filter.DateFrom, err = parseQueryDate(c, "date_from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.DateTo, err = parseQueryDate(c, "date_to"); err != nil {
		response.Error(c, err)
		return
	}

	threshold := 0.0
	if raw := c.Query("threshold"); raw != "" {
		threshold, err = strconv.ParseFloat(raw, 64)
		if err != nil || threshold < 0 || threshold > 100 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "threshold must be between 0 and 100"))
			return
		}
	}

	rows, err := h.service.LowAttendanceReport(c.Request.Context(), filter, threshold)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
