package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/noah-isme/sma-attend-api/internal/models"
	appErrors "github.com/noah-isme/sma-attend-api/pkg/errors"
	"github.com/noah-isme/sma-attend-api/pkg/export"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered report ready for download.
type ExportFile struct {
	FileName    string
	ContentType string
	Content     []byte
}

// ExportService renders summary data into downloadable reports.
type ExportService struct {
	summaries *SummaryService
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
}

// NewExportService constructs the export service.
func NewExportService(summaries *SummaryService) *ExportService {
	return &ExportService{
		summaries: summaries,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
	}
}

// DailySummaryReport renders one day's aggregate as a single-row table.
func (s *ExportService) DailySummaryReport(ctx context.Context, date, subjectID string, format ExportFormat) (*ExportFile, error) {
	summary, err := s.summaries.DailySummary(ctx, date, subjectID)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{
		Headers: []string{"Date", "Present", "Absent", "Late", "Excused", "Total", "Rate (%)"},
		Rows: []map[string]string{{
			"Date":     summary.Date.Format("2006-01-02"),
			"Present":  strconv.Itoa(summary.Present),
			"Absent":   strconv.Itoa(summary.Absent),
			"Late":     strconv.Itoa(summary.Late),
			"Excused":  strconv.Itoa(summary.Excused),
			"Total":    strconv.Itoa(summary.Total),
			"Rate (%)": fmt.Sprintf("%.2f", summary.AttendanceRate),
		}},
	}
	return s.render(data, "daily-attendance-"+summary.Date.Format("2006-01-02"), "Daily Attendance Summary", format)
}

// StudentsSummaryReport renders the per-student roll-up.
func (s *ExportService) StudentsSummaryReport(ctx context.Context, filter models.StudentsSummaryFilter, format ExportFormat) (*ExportFile, error) {
	rows, err := s.summaries.StudentsSummary(ctx, filter)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{
		Headers: []string{"Student", "Present", "Absent", "Late", "Excused", "Total", "Rate (%)"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, row := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"Student":  row.StudentName,
			"Present":  strconv.Itoa(row.Present),
			"Absent":   strconv.Itoa(row.Absent),
			"Late":     strconv.Itoa(row.Late),
			"Excused":  strconv.Itoa(row.Excused),
			"Total":    strconv.Itoa(row.Total),
			"Rate (%)": fmt.Sprintf("%.2f", row.AttendanceRate),
		})
	}
	return s.render(data, "students-attendance", "Students Attendance Summary", format)
}

func (s *ExportService) render(data export.Dataset, baseName, title string, format ExportFormat) (*ExportFile, error) {
	switch format {
	case ExportFormatCSV:
		content, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return &ExportFile{FileName: baseName + ".csv", ContentType: "text/csv", Content: content}, nil
	case ExportFormatPDF:
		content, err := s.pdf.Render(data, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return &ExportFile{FileName: baseName + ".pdf", ContentType: "application/pdf", Content: content}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format, expected csv or pdf")
	}
}
