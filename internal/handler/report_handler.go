package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attend-api/internal/models"
	"github.com/noah-isme/sma-attend-api/internal/service"
	appErrors "github.com/noah-isme/sma-attend-api/pkg/errors"
	"github.com/noah-isme/sma-attend-api/pkg/response"
)

// ReportHandler exposes downloadable report endpoints.
type ReportHandler struct {
	service *service.ExportService
}

// NewReportHandler constructs the handler.
func NewReportHandler(svc *service.ExportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

func exportFormat(c *gin.Context) service.ExportFormat {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	return format
}

func serveFile(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", `attachment; filename="`+file.FileName+`"`)
	c.Data(200, file.ContentType, file.Content)
}

// Daily handles GET /reports/daily.
//
// @Summary      Download the daily summary as CSV or PDF
// @Tags         reports
// @Produce      text/csv
// @Param        date   query string true  "Day, YYYY-MM-DD"
// @Param        format query string false "csv (default) or pdf"
// @Success      200 {file} file
// @Router       /reports/daily [get]
func (h *ReportHandler) Daily(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}
	file, err := h.service.DailySummaryReport(c.Request.Context(), date, c.Query("subject_id"), exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveFile(c, file)
}

// Students handles GET /reports/students.
func (h *ReportHandler) Students(c *gin.Context) {
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
	file, err := h.service.StudentsSummaryReport(c.Request.Context(), filter, exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveFile(c, file)
}
