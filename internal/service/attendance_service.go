package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attend-api/internal/models"
	"github.com/noah-isme/sma-attend-api/internal/repository"
	appErrors "github.com/noah-isme/sma-attend-api/pkg/errors"
	"github.com/noah-isme/sma-attend-api/pkg/notify"
)

type attendanceRepository interface {
	Create(ctx context.Context, record *models.AttendanceRecord) error
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	FindByKey(ctx context.Context, key models.AttendanceKey) (*models.AttendanceRecord, error)
	Update(ctx context.Context, record *models.AttendanceRecord) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
}

type studentResolver interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type subjectResolver interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type enrollmentResolver interface {
	HasActive(ctx context.Context, studentID, subjectID string) (bool, error)
}

type activitySink interface {
	Create(ctx context.Context, log *models.ActivityLog) error
}

// AttendanceService owns the marking rules: uniqueness conflicts, append-only
// edit history, sequential bulk processing and best-effort guardian
// notification.
type AttendanceService struct {
	repo        attendanceRepository
	students    studentResolver
	subjects    subjectResolver
	enrollments enrollmentResolver
	activities  activitySink
	dispatcher  notify.Dispatcher
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger

	// sendThrottle separates sequential notification sends as a
	// cooperative pacing point, not a concurrency primitive.
	sendThrottle time.Duration
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(
	repo attendanceRepository,
	students studentResolver,
	subjects subjectResolver,
	enrollments enrollmentResolver,
	activities activitySink,
	dispatcher notify.Dispatcher,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	sendThrottle time.Duration,
) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AttendanceService{
		repo:         repo,
		students:     students,
		subjects:     subjects,
		enrollments:  enrollments,
		activities:   activities,
		dispatcher:   dispatcher,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		sendThrottle: sendThrottle,
	}
	registerAttendanceValidators(svc.validator)
	return svc
}

func registerAttendanceValidators(v *validator.Validate) {
	_ = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	_ = v.RegisterValidation("time_slot", func(fl validator.FieldLevel) bool {
		return models.TimeSlot(strings.ToLower(fl.Field().String())).Valid()
	})
}

// MarkAttendanceRequest describes the payload for marking attendance.
type MarkAttendanceRequest struct {
	StudentID    string  `json:"student_id" validate:"required"`
	SubjectID    *string `json:"subject_id"`
	Date         string  `json:"date" validate:"required"`
	Status       string  `json:"status" validate:"required,attendance_status"`
	TimeSlot     *string `json:"time_slot" validate:"omitempty,time_slot"`
	ScheduleSlot *string `json:"schedule_slot"`
	Remarks      *string `json:"remarks" validate:"omitempty,max=500"`
}

// UpdateAttendanceRequest patches an existing record. Absent fields keep
// their current values.
type UpdateAttendanceRequest struct {
	Status       *string `json:"status" validate:"omitempty,attendance_status"`
	TimeSlot     *string `json:"time_slot" validate:"omitempty,time_slot"`
	ScheduleSlot *string `json:"schedule_slot"`
	Remarks      *string `json:"remarks" validate:"omitempty,max=500"`
}

// BulkMarkRequest marks many students in one call, sequentially.
type BulkMarkRequest struct {
	SubjectID    *string        `json:"subject_id"`
	Date         string         `json:"date" validate:"required"`
	TimeSlot     *string        `json:"time_slot" validate:"omitempty,time_slot"`
	ScheduleSlot *string        `json:"schedule_slot"`
	Items        []BulkMarkItem `json:"items" validate:"required,min=1,dive"`
}

// BulkMarkItem is one entry of a bulk mark.
type BulkMarkItem struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required,attendance_status"`
	Remarks   *string `json:"remarks" validate:"omitempty,max=500"`
}

// BulkMarkFailure captures one failed bulk item.
type BulkMarkFailure struct {
	Index     int    `json:"index"`
	StudentID string `json:"student_id"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}

// BulkMarkResult summarises a bulk execution. A failure on one item never
// rolls back or aborts the rest.
type BulkMarkResult struct {
	Total      int               `json:"total"`
	Successful []string          `json:"successful"`
	Failed     []BulkMarkFailure `json:"failed"`
}

// Mark creates a single attendance record. When the uniqueness key is
// already occupied the returned CONFLICT error carries the full existing
// record so the caller can reconcile its state. Guardian notification for
// absent/late marks is best-effort and never fails the mark.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest, claims *models.JWTClaims) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	date, err := parseDay(req.Date)
	if err != nil {
		return nil, err
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}

	if req.SubjectID != nil && *req.SubjectID != "" {
		if _, err := s.subjects.FindByID(ctx, *req.SubjectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject")
		}
		enrolled, err := s.enrollments.HasActive(ctx, req.StudentID, *req.SubjectID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		if !enrolled {
			return nil, appErrors.Clone(appErrors.ErrEnrollmentRequired, "student has no active enrollment in subject")
		}
	}

	record := &models.AttendanceRecord{
		StudentID:    req.StudentID,
		SubjectID:    normalizeOptional(req.SubjectID),
		Date:         date,
		Status:       models.AttendanceStatus(strings.ToLower(req.Status)),
		TimeSlot:     toTimeSlot(req.TimeSlot),
		ScheduleSlot: normalizeOptional(req.ScheduleSlot),
		Remarks:      req.Remarks,
		MarkedBy:     claims.UserID,
	}

	key := models.KeyFor(record)
	if existing, err := s.repo.FindByKey(ctx, key); err == nil {
		s.observeConflict()
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "attendance already marked"), existing)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance key")
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// Lost the storage-level race; resolve through the same
			// conflict path as a pre-existing record.
			existing, lookupErr := s.repo.FindByKey(ctx, key)
			if lookupErr == nil {
				s.observeConflict()
				return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "attendance already marked"), existing)
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already marked")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}
	if s.metrics != nil {
		s.metrics.ObserveMark(record.Status)
	}

	if record.Status == models.AttendanceStatusAbsent || record.Status == models.AttendanceStatusLate {
		s.notifyAbsence(ctx, student, record)
	}

	return record, nil
}

// Update applies a patch, pushing the pre-mutation state onto the record's
// history. History grows by exactly one entry per successful update.
func (s *AttendanceService) Update(ctx context.Context, id string, req UpdateAttendanceRequest, claims *models.JWTClaims) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}

	now := time.Now().UTC()
	record.History = append(record.History, record.Snapshot(now, claims.UserID))
	if len(record.History) > models.MaxHistoryEntries {
		record.History = record.History[len(record.History)-models.MaxHistoryEntries:]
	}

	if req.Status != nil {
		record.Status = models.AttendanceStatus(strings.ToLower(*req.Status))
	}
	if req.TimeSlot != nil {
		record.TimeSlot = toTimeSlot(req.TimeSlot)
	}
	if req.ScheduleSlot != nil {
		record.ScheduleSlot = normalizeOptional(req.ScheduleSlot)
	}
	if req.Remarks != nil {
		record.Remarks = req.Remarks
	}
	record.EditedAt = &now
	actor := claims.UserID
	record.EditedBy = &actor

	if err := s.repo.Update(ctx, record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance record")
	}
	return record, nil
}

// BulkMark processes items strictly in input order, one Mark per item. Items
// fail independently; only a missing target subject aborts the whole batch
// before it starts.
func (s *AttendanceService) BulkMark(ctx context.Context, req BulkMarkRequest, claims *models.JWTClaims) (*BulkMarkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if _, err := parseDay(req.Date); err != nil {
		return nil, err
	}
	if req.SubjectID != nil && *req.SubjectID != "" {
		if _, err := s.subjects.FindByID(ctx, *req.SubjectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject")
		}
	}

	result := &BulkMarkResult{Total: len(req.Items), Successful: []string{}, Failed: []BulkMarkFailure{}}
	for i, item := range req.Items {
		record, err := s.Mark(ctx, MarkAttendanceRequest{
			StudentID:    item.StudentID,
			SubjectID:    req.SubjectID,
			Date:         req.Date,
			Status:       item.Status,
			TimeSlot:     req.TimeSlot,
			ScheduleSlot: req.ScheduleSlot,
			Remarks:      item.Remarks,
		}, claims)
		if err != nil {
			appErr := appErrors.FromError(err)
			result.Failed = append(result.Failed, BulkMarkFailure{
				Index:     i,
				StudentID: item.StudentID,
				Code:      appErr.Code,
				Error:     appErr.Message,
			})
			continue
		}
		result.Successful = append(result.Successful, record.ID)
	}
	return result, nil
}

// Delete removes a record permanently and records the deletion in the
// activity trail. The trail write is fire-and-forget.
func (s *AttendanceService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance record")
	}

	old, _ := json.Marshal(record)
	actor := claims.UserID
	if err := s.activities.Create(ctx, &models.ActivityLog{
		ActorID:    &actor,
		Action:     models.ActivityAttendanceDelete,
		Resource:   "attendance_record",
		ResourceID: &record.ID,
		OldValues:  old,
	}); err != nil {
		s.logger.Warn("activity log write failed", zap.String("record_id", record.ID), zap.Error(err))
	}
	return nil
}

// List returns paginated attendance records.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	filter.Page = page
	filter.PageSize = size
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance records")
	}
	return rows, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one record by id.
func (s *AttendanceService) Get(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	return record, nil
}

func (s *AttendanceService) notifyAbsence(ctx context.Context, student *models.Student, record *models.AttendanceRecord) {
	if s.dispatcher == nil {
		return
	}
	subject := fmt.Sprintf("Attendance notice for %s", student.FullName)
	body := fmt.Sprintf("%s was marked %s on %s.", student.FullName, record.Status, record.Date.Format("2006-01-02"))
	if record.Remarks != nil && *record.Remarks != "" {
		body += " Remarks: " + *record.Remarks
	}

	recipients := []string{}
	if student.GuardianEmail != nil && *student.GuardianEmail != "" {
		recipients = append(recipients, *student.GuardianEmail)
	}
	if student.Email != nil && *student.Email != "" {
		recipients = append(recipients, *student.Email)
	}

	for i, to := range recipients {
		if i > 0 && s.sendThrottle > 0 {
			time.Sleep(s.sendThrottle)
		}
		if err := s.dispatcher.Send(ctx, to, subject, body); err != nil {
			s.logger.Warn("absence notification failed",
				zap.String("student_id", student.ID), zap.String("to", to), zap.Error(err))
			if s.metrics != nil {
				s.metrics.ObserveNotification(false)
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.ObserveNotification(true)
		}
	}
}

func (s *AttendanceService) observeConflict() {
	if s.metrics != nil {
		s.metrics.ObserveConflict()
	}
}

func parseDay(raw string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	return models.NormalizeDate(parsed), nil
}

func normalizeOptional(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	return value
}

func toTimeSlot(value *string) *models.TimeSlot {
	if value == nil || *value == "" {
		return nil
	}
	slot := models.TimeSlot(strings.ToLower(*value))
	return &slot
}
