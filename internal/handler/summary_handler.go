package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attend-api/internal/models"
	"github.com/noah-isme/sma-attend-api/internal/service"
	appErrors "github.com/noah-isme/sma-attend-api/pkg/errors"
	"github.com/noah-isme/sma-attend-api/pkg/response"
)

// SummaryHandler exposes the aggregate views.
type SummaryHandler struct {
	service *service.SummaryService
}

// NewSummaryHandler constructs the handler.
func NewSummaryHandler(svc *service.SummaryService) *SummaryHandler {
	return &SummaryHandler{service: svc}
}

// Daily handles GET /summaries/daily.
//
// @Summary      Daily attendance summary
// @Tags         summaries
// @Produce      json
// @Param        date       query string true  "Day, YYYY-MM-DD"
// @Param        subject_id query string false "Restrict to one subject"
// @Success      200 {object} response.Envelope
// @Router       /summaries/daily [get]
func (h *SummaryHandler) Daily(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}
	summary, err := h.service.DailySummary(c.Request.Context(), date, c.Query("subject_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Subject handles GET /summaries/subjects/:id.
func (h *SummaryHandler) Subject(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}
	summary, err := h.service.SubjectSummary(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Student handles GET /summaries/students/:id.
func (h *SummaryHandler) Student(c *gin.Context) {
	summary, err := h.service.StudentSummary(c.Request.Context(), c.Param("id"), c.Query("subject_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Students handles GET /summaries/students.
func (h *SummaryHandler) Students(c *gin.Context) {
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
	rows, err := h.service.StudentsSummary(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
