package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-attend-api/internal/models"
	appErrors "github.com/noah-isme/sma-attend-api/pkg/errors"
)

type summaryAttendanceRepository interface {
	CountByStatus(ctx context.Context, date time.Time, subjectID string) (*models.StatusCounts, error)
	StatusCountsForStudent(ctx context.Context, studentID, subjectID string) (*models.StatusCounts, error)
	StatusCountsPerSubject(ctx context.Context, studentID string) ([]models.SubjectAggregateRow, error)
	StatusCountsByStudent(ctx context.Context, filter models.StudentsSummaryFilter) ([]models.StudentAggregateRow, error)
}

type enrollmentCounter interface {
	ActiveCountBySubject(ctx context.Context, subjectID string) (int, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// SummaryService computes attendance roll-ups. Each summary flavour keeps its
// own denominator on purpose: the daily view rates against marked records,
// the subject view against the enrolled roster, and the student view counts
// late arrivals as attended.
type SummaryService struct {
	attendance  summaryAttendanceRepository
	enrollments enrollmentCounter
	subjects    subjectResolver
	students    studentResolver
	cache       summaryCache
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewSummaryService constructs the summary service. cache may be nil.
func NewSummaryService(
	attendance summaryAttendanceRepository,
	enrollments enrollmentCounter,
	subjects subjectResolver,
	students studentResolver,
	cache summaryCache,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{
		attendance:  attendance,
		enrollments: enrollments,
		subjects:    subjects,
		students:    students,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// roundRate keeps two decimal places.
func roundRate(v float64) float64 {
	return math.Round(v*100) / 100
}

func rateOf(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return roundRate(float64(numerator) / float64(denominator) * 100)
}

// DailySummary aggregates one day's marked records. The rate denominator is
// the number of marked records, not any roster size, so an empty day yields
// zero counts and a zero rate rather than an error.
func (s *SummaryService) DailySummary(ctx context.Context, rawDate, subjectID string) (*models.DailySummary, error) {
	date, err := parseDay(rawDate)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("summary:daily:%s:%s", date.Format("2006-01-02"), subjectID)
	if s.cache != nil {
		var cached models.DailySummary
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("daily summary cache read failed", zap.Error(err))
		}
	}

	counts, err := s.attendance.CountByStatus(ctx, date, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate daily attendance")
	}

	summary := &models.DailySummary{
		Date:           date,
		StatusCounts:   *counts,
		AttendanceRate: rateOf(counts.Present, counts.Total),
	}
	if subjectID != "" {
		summary.SubjectID = &subjectID
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, summary, s.cacheTTL); err != nil {
			s.logger.Warn("daily summary cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

// SubjectSummary aggregates a subject for one date against its active
// enrollment roster. Unmarked enrolled students widen the denominator, so the
// rate reflects coverage of the roster rather than of the records.
func (s *SummaryService) SubjectSummary(ctx context.Context, subjectID, rawDate string) (*models.SubjectSummary, error) {
	date, err := parseDay(rawDate)
	if err != nil {
		return nil, err
	}
	if _, err := s.subjects.FindByID(ctx, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject")
	}

	enrolled, err := s.enrollments.ActiveCountBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	counts, err := s.attendance.CountByStatus(ctx, date, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate subject attendance")
	}

	return &models.SubjectSummary{
		SubjectID:      subjectID,
		Date:           date,
		EnrolledCount:  enrolled,
		StatusCounts:   *counts,
		AttendanceRate: rateOf(counts.Present, enrolled),
	}, nil
}

// StudentSummary aggregates one student's full record, overall and per
// subject. Late marks count toward the attended numerator here because the
// student was physically present.
func (s *SummaryService) StudentSummary(ctx context.Context, studentID, subjectID string) (*models.StudentSummary, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}

	counts, err := s.attendance.StatusCountsForStudent(ctx, studentID, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate student attendance")
	}

	summary := &models.StudentSummary{
		StudentID:      studentID,
		StatusCounts:   *counts,
		AttendanceRate: rateOf(counts.Present+counts.Late, counts.Total),
	}

	if subjectID == "" {
		rows, err := s.attendance.StatusCountsPerSubject(ctx, studentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate per-subject attendance")
		}
		for _, row := range rows {
			summary.Subjects = append(summary.Subjects, models.SubjectBreakdown{
				SubjectID:   row.SubjectID,
				SubjectName: row.SubjectName,
				StatusCounts: models.StatusCounts{
					Present: row.Present,
					Absent:  row.Absent,
					Late:    row.Late,
					Excused: row.Excused,
					Total:   row.Total,
				},
				AttendanceRate: rateOf(row.Present+row.Late, row.Total),
			})
		}
	}
	return summary, nil
}

// StudentsSummary rolls up every active student in scope. Rates here use the
// strict present-only numerator.
func (s *SummaryService) StudentsSummary(ctx context.Context, filter models.StudentsSummaryFilter) ([]models.StudentsSummaryRow, error) {
	rows, err := s.attendance.StatusCountsByStudent(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate students attendance")
	}
	out := make([]models.StudentsSummaryRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.StudentsSummaryRow{
			StudentAggregateRow: row,
			AttendanceRate:      rateOf(row.Present, row.Total),
		})
	}
	return out, nil
}
