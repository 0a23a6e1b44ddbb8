package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attend-api/internal/models"
	"github.com/noah-isme/sma-attend-api/internal/repository"
	appErrors "github.com/noah-isme/sma-attend-api/pkg/errors"
)

type attendanceRepoStub struct {
	byID    map[string]*models.AttendanceRecord
	byKey   map[string]*models.AttendanceRecord
	created int
}

func newAttendanceRepoStub() *attendanceRepoStub {
	return &attendanceRepoStub{
		byID:  map[string]*models.AttendanceRecord{},
		byKey: map[string]*models.AttendanceRecord{},
	}
}

func keyString(key models.AttendanceKey) string {
	slot := ""
	if key.TimeSlot != nil {
		slot = string(*key.TimeSlot)
	}
	schedule := ""
	if key.ScheduleSlot != nil {
		schedule = *key.ScheduleSlot
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		key.Scope, key.StudentID, key.SubjectID, key.Date.Format("2006-01-02"), schedule, slot)
}

func (s *attendanceRepoStub) Create(ctx context.Context, record *models.AttendanceRecord) error {
	key := keyString(models.KeyFor(record))
	if _, ok := s.byKey[key]; ok {
		return repository.ErrDuplicateKey
	}
	s.created++
	record.ID = fmt.Sprintf("att-%d", s.created)
	s.byID[record.ID] = record
	s.byKey[key] = record
	return nil
}

func (s *attendanceRepoStub) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	record, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return record, nil
}

func (s *attendanceRepoStub) FindByKey(ctx context.Context, key models.AttendanceKey) (*models.AttendanceRecord, error) {
	record, ok := s.byKey[keyString(key)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return record, nil
}

func (s *attendanceRepoStub) Update(ctx context.Context, record *models.AttendanceRecord) error {
	if _, ok := s.byID[record.ID]; !ok {
		return sql.ErrNoRows
	}
	s.byID[record.ID] = record
	return nil
}

func (s *attendanceRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.byID[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.byID, id)
	return nil
}

func (s *attendanceRepoStub) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	rows := []models.AttendanceRecord{}
	for _, record := range s.byID {
		rows = append(rows, *record)
	}
	return rows, len(rows), nil
}

type studentStub struct {
	students map[string]*models.Student
}

func (s studentStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	student, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

type subjectStub struct {
	subjects map[string]*models.Subject
}

func (s subjectStub) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	subject, ok := s.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return subject, nil
}

type enrollmentStub struct {
	enrolled map[string]bool
}

func (s enrollmentStub) HasActive(ctx context.Context, studentID, subjectID string) (bool, error) {
	return s.enrolled[studentID+"|"+subjectID], nil
}

type activityStub struct {
	logs []*models.ActivityLog
}

func (s *activityStub) Create(ctx context.Context, log *models.ActivityLog) error {
	s.logs = append(s.logs, log)
	return nil
}

type dispatcherStub struct {
	sent []string
	fail bool
}

func (d *dispatcherStub) Send(ctx context.Context, to, subject, body string) error {
	if d.fail {
		return fmt.Errorf("smtp down")
	}
	d.sent = append(d.sent, to)
	return nil
}

func strPtr(v string) *string { return &v }

func testClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
}

func newTestAttendanceService(repo *attendanceRepoStub, dispatcher *dispatcherStub) (*AttendanceService, *activityStub) {
	guardian := strPtr("guardian@example.com")
	students := studentStub{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", FullName: "Budi Santoso", GuardianEmail: guardian, Active: true},
		"stu-2": {ID: "stu-2", FullName: "Siti Rahma", Active: true},
	}}
	subjects := subjectStub{subjects: map[string]*models.Subject{
		"sub-1": {ID: "sub-1", Name: "Mathematics"},
	}}
	enrollments := enrollmentStub{enrolled: map[string]bool{
		"stu-1|sub-1": true,
		"stu-2|sub-1": true,
	}}
	activities := &activityStub{}
	svc := NewAttendanceService(repo, students, subjects, enrollments, activities,
		dispatcher, nil, validator.New(), nil, 0)
	return svc, activities
}

func TestAttendanceServiceMarkPresent(t *testing.T) {
	repo := newAttendanceRepoStub()
	dispatcher := &dispatcherStub{}
	svc, _ := newTestAttendanceService(repo, dispatcher)

	record, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		SubjectID: strPtr("sub-1"),
		Date:      "2026-03-02",
		Status:    "present",
	}, testClaims())
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, record.Status)
	assert.Equal(t, "teacher-1", record.MarkedBy)
	assert.Empty(t, dispatcher.sent, "present marks must not notify")
}

func TestAttendanceServiceMarkAbsentNotifiesGuardian(t *testing.T) {
	repo := newAttendanceRepoStub()
	dispatcher := &dispatcherStub{}
	svc, _ := newTestAttendanceService(repo, dispatcher)

	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		Date:      "2026-03-02",
		Status:    "absent",
	}, testClaims())
	require.NoError(t, err)
	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, "guardian@example.com", dispatcher.sent[0])
}

func TestAttendanceServiceMarkNotificationFailureIsNonFatal(t *testing.T) {
	repo := newAttendanceRepoStub()
	dispatcher := &dispatcherStub{fail: true}
	svc, _ := newTestAttendanceService(repo, dispatcher)

	record, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		Date:      "2026-03-02",
		Status:    "absent",
	}, testClaims())
	require.NoError(t, err)
	require.NotEmpty(t, record.ID)
}

func TestAttendanceServiceMarkConflictCarriesExistingRecord(t *testing.T) {
	repo := newAttendanceRepoStub()
	svc, _ := newTestAttendanceService(repo, &dispatcherStub{})

	first, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		SubjectID: strPtr("sub-1"),
		Date:      "2026-03-02",
		Status:    "present",
	}, testClaims())
	require.NoError(t, err)

	_, err = svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		SubjectID: strPtr("sub-1"),
		Date:      "2026-03-02",
		Status:    "late",
	}, testClaims())
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	existing, ok := appErr.Details.(*models.AttendanceRecord)
	require.True(t, ok, "conflict details must carry the existing record")
	assert.Equal(t, first.ID, existing.ID)
}

func TestAttendanceServiceMarkSameDayDifferentScopes(t *testing.T) {
	repo := newAttendanceRepoStub()
	svc, _ := newTestAttendanceService(repo, &dispatcherStub{})

	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		Date:      "2026-03-02",
		Status:    "present",
	}, testClaims())
	require.NoError(t, err)

	// A subject-scoped mark on the same day lives under a different key.
	_, err = svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		SubjectID: strPtr("sub-1"),
		Date:      "2026-03-02",
		Status:    "present",
	}, testClaims())
	require.NoError(t, err)
}

func TestAttendanceServiceMarkRequiresEnrollment(t *testing.T) {
	repo := newAttendanceRepoStub()
	guardian := strPtr("guardian@example.com")
	students := studentStub{students: map[string]*models.Student{
		"stu-3": {ID: "stu-3", FullName: "Andi", GuardianEmail: guardian, Active: true},
	}}
	subjects := subjectStub{subjects: map[string]*models.Subject{
		"sub-1": {ID: "sub-1", Name: "Mathematics"},
	}}
	svc := NewAttendanceService(repo, students, subjects, enrollmentStub{enrolled: map[string]bool{}},
		&activityStub{}, nil, nil, validator.New(), nil, 0)

	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-3",
		SubjectID: strPtr("sub-1"),
		Date:      "2026-03-02",
		Status:    "present",
	}, testClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEnrollmentRequired.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceUpdateAppendsHistory(t *testing.T) {
	repo := newAttendanceRepoStub()
	svc, _ := newTestAttendanceService(repo, &dispatcherStub{})

	record, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		Date:      "2026-03-02",
		Status:    "present",
	}, testClaims())
	require.NoError(t, err)
	require.Empty(t, record.History)

	updated, err := svc.Update(context.Background(), record.ID, UpdateAttendanceRequest{
		Status: strPtr("late"),
	}, testClaims())
	require.NoError(t, err)
	require.Len(t, updated.History, 1)
	assert.Equal(t, models.AttendanceStatusPresent, updated.History[0].Status)
	assert.Equal(t, models.AttendanceStatusLate, updated.Status)
	require.NotNil(t, updated.EditedAt)
	require.NotNil(t, updated.EditedBy)

	updated, err = svc.Update(context.Background(), record.ID, UpdateAttendanceRequest{
		Remarks: strPtr("arrived after first period"),
	}, testClaims())
	require.NoError(t, err)
	require.Len(t, updated.History, 2, "each update appends exactly one entry")
	assert.Equal(t, models.AttendanceStatusLate, updated.History[1].Status)
}

func TestAttendanceServiceBulkMarkPartialFailure(t *testing.T) {
	repo := newAttendanceRepoStub()
	svc, _ := newTestAttendanceService(repo, &dispatcherStub{})

	// Occupy stu-2's key up front so the middle item collides.
	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-2",
		SubjectID: strPtr("sub-1"),
		Date:      "2026-03-02",
		Status:    "present",
	}, testClaims())
	require.NoError(t, err)

	result, err := svc.BulkMark(context.Background(), BulkMarkRequest{
		SubjectID: strPtr("sub-1"),
		Date:      "2026-03-02",
		Items: []BulkMarkItem{
			{StudentID: "stu-1", Status: "present"},
			{StudentID: "stu-2", Status: "absent"},
			{StudentID: "unknown", Status: "present"},
		},
	}, testClaims())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Len(t, result.Successful, 1)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, 1, result.Failed[0].Index)
	assert.Equal(t, appErrors.ErrConflict.Code, result.Failed[0].Code)
	assert.Equal(t, 2, result.Failed[1].Index)
	assert.Equal(t, appErrors.ErrNotFound.Code, result.Failed[1].Code)
}

func TestAttendanceServiceBulkMarkUnknownSubjectAborts(t *testing.T) {
	repo := newAttendanceRepoStub()
	svc, _ := newTestAttendanceService(repo, &dispatcherStub{})

	_, err := svc.BulkMark(context.Background(), BulkMarkRequest{
		SubjectID: strPtr("missing"),
		Date:      "2026-03-02",
		Items:     []BulkMarkItem{{StudentID: "stu-1", Status: "present"}},
	}, testClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.created, "nothing may be written when the subject is unknown")
}

func TestAttendanceServiceDeleteWritesActivityTrail(t *testing.T) {
	repo := newAttendanceRepoStub()
	svc, activities := newTestAttendanceService(repo, &dispatcherStub{})

	record, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		Date:      "2026-03-02",
		Status:    "present",
	}, testClaims())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), record.ID, testClaims()))
	require.Len(t, activities.logs, 1)
	assert.Equal(t, models.ActivityAttendanceDelete, activities.logs[0].Action)

	err = svc.Delete(context.Background(), record.ID, testClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceMarkRejectsBadPayload(t *testing.T) {
	repo := newAttendanceRepoStub()
	svc, _ := newTestAttendanceService(repo, &dispatcherStub{})

	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		Date:      "02-03-2026",
		Status:    "present",
	}, testClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		Date:      "2026-03-02",
		Status:    "vacation",
	}, testClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
