package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attend-api/internal/models"
	"github.com/noah-isme/sma-attend-api/internal/service"
	appErrors "github.com/noah-isme/sma-attend-api/pkg/errors"
	"github.com/noah-isme/sma-attend-api/pkg/response"
)

// AttendanceHandler exposes attendance marking endpoints.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Mark handles POST /attendance.
//
// @Summary      Mark attendance
// @Tags         attendance
// @Accept       json
// @Produce      json
// @Param        payload body service.MarkAttendanceRequest true "Attendance mark"
// @Success      201 {object} response.Envelope
// @Failure      409 {object} response.Envelope "existing record returned in error details"
// @Router       /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	record, err := h.service.Mark(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// BulkMark handles POST /attendance/bulk.
//
// @Summary      Mark attendance for many students
// @Tags         attendance
// @Accept       json
// @Produce      json
// @Param        payload body service.BulkMarkRequest true "Bulk mark"
// @Success      200 {object} response.Envelope
// @Router       /attendance/bulk [post]
func (h *AttendanceHandler) BulkMark(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.BulkMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.service.BulkMark(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List handles GET /attendance.
//
// @Summary      List attendance records
// @Tags         attendance
// @Produce      json
// @Param        student_id query string false "Filter by student"
// @Param        subject_id query string false "Filter by subject"
// @Param        status     query string false "Filter by status"
// @Param        date_from  query string false "Inclusive start date"
// @Param        date_to    query string false "Inclusive end date"
// @Success      200 {object} response.Envelope
// @Router       /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	filter := models.AttendanceFilter{
		StudentID: c.Query("student_id"),
		SubjectID: c.Query("subject_id"),
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "page_size", 50),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.AttendanceStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status filter"))
			return
		}
		filter.Status = &status
	}
	var err error
	if filter.DateFrom, err = parseQueryDate(c, "date_from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.DateTo, err = parseQueryDate(c, "date_to"); err != nil {
		response.Error(c, err)
		return
	}

	records, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get handles GET /attendance/:id.
func (h *AttendanceHandler) Get(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Update handles PATCH /attendance/:id.
//
// @Summary      Update an attendance record
// @Tags         attendance
// @Accept       json
// @Produce      json
// @Param        id      path string true "Record id"
// @Param        payload body service.UpdateAttendanceRequest true "Patch"
// @Success      200 {object} response.Envelope
// @Router       /attendance/{id} [patch]
func (h *AttendanceHandler) Update(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	record, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete handles DELETE /attendance/:id.
func (h *AttendanceHandler) Delete(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
