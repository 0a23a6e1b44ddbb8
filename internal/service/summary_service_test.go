package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attend-api/internal/models"
	appErrors "github.com/noah-isme/sma-attend-api/pkg/errors"
)

type summaryRepoStub struct {
	counts     models.StatusCounts
	perSubject []models.SubjectAggregateRow
	perStudent []models.StudentAggregateRow
	countCalls int
}

func (s *summaryRepoStub) CountByStatus(ctx context.Context, date time.Time, subjectID string) (*models.StatusCounts, error) {
	s.countCalls++
	counts := s.counts
	return &counts, nil
}

func (s *summaryRepoStub) StatusCountsForStudent(ctx context.Context, studentID, subjectID string) (*models.StatusCounts, error) {
	counts := s.counts
	return &counts, nil
}

func (s *summaryRepoStub) StatusCountsPerSubject(ctx context.Context, studentID string) ([]models.SubjectAggregateRow, error) {
	return s.perSubject, nil
}

func (s *summaryRepoStub) StatusCountsByStudent(ctx context.Context, filter models.StudentsSummaryFilter) ([]models.StudentAggregateRow, error) {
	return s.perStudent, nil
}

type enrollmentCounterStub struct {
	count int
}

func (s enrollmentCounterStub) ActiveCountBySubject(ctx context.Context, subjectID string) (int, error) {
	return s.count, nil
}

type cacheStub struct {
	sets int
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.sets++
	return nil
}

func newTestSummaryService(repo *summaryRepoStub, enrolled int, cache summaryCache) *SummaryService {
	subjects := subjectStub{subjects: map[string]*models.Subject{
		"sub-1": {ID: "sub-1", Name: "Mathematics"},
	}}
	students := studentStub{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", FullName: "Budi Santoso", Active: true},
	}}
	return NewSummaryService(repo, enrollmentCounterStub{count: enrolled}, subjects, students, cache, time.Minute, nil)
}

func TestSummaryServiceDailyUsesMarkedDenominator(t *testing.T) {
	repo := &summaryRepoStub{counts: models.StatusCounts{Present: 3, Absent: 5, Late: 1, Excused: 1, Total: 10}}
	svc := newTestSummaryService(repo, 0, nil)

	summary, err := svc.DailySummary(context.Background(), "2026-03-02", "")
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Total)
	assert.InDelta(t, 30.0, summary.AttendanceRate, 0.001)
}

func TestSummaryServiceSubjectUsesRosterDenominator(t *testing.T) {
	// Same counts as the daily test, but rated against 30 enrolled students
	// instead of the 10 marked records.
	repo := &summaryRepoStub{counts: models.StatusCounts{Present: 3, Absent: 5, Late: 1, Excused: 1, Total: 10}}
	svc := newTestSummaryService(repo, 30, nil)

	summary, err := svc.SubjectSummary(context.Background(), "sub-1", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, 30, summary.EnrolledCount)
	assert.InDelta(t, 10.0, summary.AttendanceRate, 0.001)
}

func TestSummaryServiceSubjectUnknown(t *testing.T) {
	svc := newTestSummaryService(&summaryRepoStub{}, 0, nil)
	_, err := svc.SubjectSummary(context.Background(), "missing", "2026-03-02")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSummaryServiceStudentCountsLateAsAttended(t *testing.T) {
	repo := &summaryRepoStub{
		counts: models.StatusCounts{Present: 6, Absent: 2, Late: 2, Total: 10},
		perSubject: []models.SubjectAggregateRow{
			{SubjectID: "sub-1", Present: 3, Late: 1, Absent: 1, Total: 5},
		},
	}
	svc := newTestSummaryService(repo, 0, nil)

	summary, err := svc.StudentSummary(context.Background(), "stu-1", "")
	require.NoError(t, err)
	assert.InDelta(t, 80.0, summary.AttendanceRate, 0.001)
	require.Len(t, summary.Subjects, 1)
	assert.InDelta(t, 80.0, summary.Subjects[0].AttendanceRate, 0.001)
}

func TestSummaryServiceStudentsUsesStrictPresentNumerator(t *testing.T) {
	repo := &summaryRepoStub{perStudent: []models.StudentAggregateRow{
		{StudentID: "stu-1", StudentName: "Budi Santoso", Present: 6, Late: 2, Absent: 2, Total: 10},
	}}
	svc := newTestSummaryService(repo, 0, nil)

	rows, err := svc.StudentsSummary(context.Background(), models.StudentsSummaryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	// Late does not count here, unlike the single-student view.
	assert.InDelta(t, 60.0, rows[0].AttendanceRate, 0.001)
}

func TestSummaryServiceDailyWritesCache(t *testing.T) {
	repo := &summaryRepoStub{counts: models.StatusCounts{Present: 1, Total: 1}}
	cache := &cacheStub{}
	svc := newTestSummaryService(repo, 0, cache)

	_, err := svc.DailySummary(context.Background(), "2026-03-02", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.countCalls)
	assert.Equal(t, 1, cache.sets)
}

func TestSummaryServiceEmptyDayYieldsZeroRate(t *testing.T) {
	svc := newTestSummaryService(&summaryRepoStub{}, 0, nil)
	summary, err := svc.DailySummary(context.Background(), "2026-03-02", "")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 0.0, summary.AttendanceRate)
}
