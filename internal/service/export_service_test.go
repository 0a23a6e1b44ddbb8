package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attend-api/internal/models"
	appErrors "github.com/noah-isme/sma-attend-api/pkg/errors"
)

func newTestExportService() *ExportService {
	repo := &summaryRepoStub{
		counts: models.StatusCounts{Present: 18, Absent: 2, Total: 20},
		perStudent: []models.StudentAggregateRow{
			{StudentID: "stu-1", StudentName: "Budi Santoso", Present: 9, Absent: 1, Total: 10},
		},
	}
	return NewExportService(newTestSummaryService(repo, 0, nil))
}

func TestExportServiceDailyCSV(t *testing.T) {
	svc := newTestExportService()

	file, err := svc.DailySummaryReport(context.Background(), "2026-03-02", "", ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "daily-attendance-2026-03-02.csv", file.FileName)
	assert.Equal(t, "text/csv", file.ContentType)

	body := string(file.Content)
	assert.True(t, strings.HasPrefix(body, "Date,Present,Absent"))
	assert.Contains(t, body, "2026-03-02,18,2")
	assert.Contains(t, body, "90.00")
}

func TestExportServiceStudentsPDF(t *testing.T) {
	svc := newTestExportService()

	file, err := svc.StudentsSummaryReport(context.Background(), models.StudentsSummaryFilter{}, ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "students-attendance.pdf", file.FileName)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Content), "%PDF"))
}

func TestExportServiceUnknownFormat(t *testing.T) {
	svc := newTestExportService()

	_, err := svc.DailySummaryReport(context.Background(), "2026-03-02", "", ExportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
