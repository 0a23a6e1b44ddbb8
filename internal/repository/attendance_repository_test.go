package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attend-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func attendanceRows(record *models.AttendanceRecord) *sqlmock.Rows {
	history, _ := record.History.Value()
	return sqlmock.NewRows([]string{
		"id", "student_id", "subject_id", "date", "status", "time_slot", "schedule_slot",
		"remarks", "marked_by", "edited_at", "edited_by", "history", "created_at", "updated_at",
	}).AddRow(
		record.ID, record.StudentID, record.SubjectID, record.Date, record.Status,
		record.TimeSlot, record.ScheduleSlot, record.Remarks, record.MarkedBy,
		record.EditedAt, record.EditedBy, history, record.CreatedAt, record.UpdatedAt)
}

func TestAttendanceRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.AttendanceRecord{
		StudentID: "stu-1",
		Date:      models.NormalizeDate(time.Now()),
		Status:    models.AttendanceStatusPresent,
		MarkedBy:  "teacher-1",
	}
	require.NoError(t, repo.Create(context.Background(), record))
	require.NotEmpty(t, record.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateDuplicateKey(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.AttendanceRecord{
		StudentID: "stu-1",
		Date:      models.NormalizeDate(time.Now()),
		Status:    models.AttendanceStatusAbsent,
		MarkedBy:  "teacher-1",
	})
	require.ErrorIs(t, err, ErrDuplicateKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFindByKeySubjectScope(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	subjectID := "sub-1"
	slot := models.TimeSlotArrival
	date := models.NormalizeDate(time.Now())
	existing := &models.AttendanceRecord{
		ID:        "att-1",
		StudentID: "stu-1",
		SubjectID: &subjectID,
		Date:      date,
		Status:    models.AttendanceStatusPresent,
		TimeSlot:  &slot,
		MarkedBy:  "teacher-1",
	}
	mock.ExpectQuery(regexp.QuoteMeta("AND schedule_slot IS NOT DISTINCT FROM $4 AND time_slot IS NOT DISTINCT FROM $5")).
		WithArgs("stu-1", subjectID, date, nil, &slot).
		WillReturnRows(attendanceRows(existing))

	found, err := repo.FindByKey(context.Background(), models.AttendanceKey{
		Scope:     models.KeyScopeSubject,
		StudentID: "stu-1",
		SubjectID: subjectID,
		Date:      date,
		TimeSlot:  &slot,
	})
	require.NoError(t, err)
	require.Equal(t, "att-1", found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFindByKeyDailyScope(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	date := models.NormalizeDate(time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND date = $2 AND subject_id IS NULL")).
		WithArgs("stu-1", date).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByKey(context.Background(), models.AttendanceKey{
		Scope:     models.KeyScopeDaily,
		StudentID: "stu-1",
		Date:      date,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpdateMissingRow(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.AttendanceRecord{
		ID:     "missing",
		Status: models.AttendanceStatusLate,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	status := models.AttendanceStatusAbsent
	record := &models.AttendanceRecord{
		ID:        "att-1",
		StudentID: "stu-1",
		Date:      models.NormalizeDate(time.Now()),
		Status:    status,
		MarkedBy:  "teacher-1",
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records")).
		WithArgs("stu-1", status).
		WillReturnRows(attendanceRows(record))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance_records")).
		WithArgs("stu-1", status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows, total, err := repo.List(context.Background(), models.AttendanceFilter{
		StudentID: "stu-1",
		Status:    &status,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, rows, 1)
	require.Equal(t, "att-1", rows[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCountByStatusFolding(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	date := models.NormalizeDate(time.Now())
	rows := sqlmock.NewRows([]string{"status", "cnt"}).
		AddRow("present", 20).
		AddRow("absent", 3).
		AddRow("late", 2)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY status")).
		WithArgs(date, "").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), date, "")
	require.NoError(t, err)
	require.Equal(t, 20, counts.Present)
	require.Equal(t, 3, counts.Absent)
	require.Equal(t, 2, counts.Late)
	require.Equal(t, 0, counts.Excused)
	require.Equal(t, 25, counts.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryRecentByStudentOrder(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	record := &models.AttendanceRecord{
		ID:        "att-9",
		StudentID: "stu-1",
		Date:      models.NormalizeDate(time.Now()),
		Status:    models.AttendanceStatusAbsent,
		MarkedBy:  "teacher-1",
	}
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY date DESC, created_at DESC")).
		WithArgs("stu-1").
		WillReturnRows(attendanceRows(record))

	rows, err := repo.RecentByStudent(context.Background(), "stu-1", 14)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
