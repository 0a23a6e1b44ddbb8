package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-attend-api/internal/models"
	"github.com/noah-isme/sma-attend-api/pkg/database"
)

// ErrDuplicateKey signals a storage-level attendance key conflict. Two
// concurrent marks for the same key race at the unique index; exactly one
// insert succeeds and the loser surfaces here.
var ErrDuplicateKey = errors.New("duplicate attendance key")

const attendanceColumns = `id, student_id, subject_id, date, status, time_slot, schedule_slot, remarks,
marked_by, edited_at, edited_by, history, created_at, updated_at`

// AttendanceRepository handles persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Create inserts a new attendance record. Unique-index conflicts are
// reported as ErrDuplicateKey so the service can resolve them through its
// conflict path.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.AttendanceRecord) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.History == nil {
		record.History = models.HistoryEntries{}
	}
	query := `INSERT INTO attendance_records (` + attendanceColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.StudentID, record.SubjectID, record.Date, record.Status,
		record.TimeSlot, record.ScheduleSlot, record.Remarks, record.MarkedBy,
		record.EditedAt, record.EditedBy, record.History, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create attendance record: %w", err)
	}
	return nil
}

// FindByID fetches a record by primary key.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE id = $1`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByKey looks up the record occupying the given uniqueness key. The key
// is a tagged union: subject-scoped keys match on the full tuple with
// NULL-safe slot comparison, daily keys match on (student, date) with no
// subject. Returns sql.ErrNoRows when the key is free.
func (r *AttendanceRepository) FindByKey(ctx context.Context, key models.AttendanceKey) (*models.AttendanceRecord, error) {
	var (
		query string
		args  []interface{}
	)
	switch key.Scope {
	case models.KeyScopeSubject:
		query = `SELECT ` + attendanceColumns + ` FROM attendance_records
WHERE student_id = $1 AND subject_id = $2 AND date = $3
AND schedule_slot IS NOT DISTINCT FROM $4 AND time_slot IS NOT DISTINCT FROM $5`
		args = []interface{}{key.StudentID, key.SubjectID, key.Date, key.ScheduleSlot, key.TimeSlot}
	case models.KeyScopeDaily:
		query = `SELECT ` + attendanceColumns + ` FROM attendance_records
WHERE student_id = $1 AND date = $2 AND subject_id IS NULL`
		args = []interface{}{key.StudentID, key.Date}
	default:
		return nil, fmt.Errorf("unsupported attendance key scope %q", key.Scope)
	}
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		return nil, err
	}
	return &record, nil
}

// Update persists the mutable fields and the appended history of a record.
func (r *AttendanceRepository) Update(ctx context.Context, record *models.AttendanceRecord) error {
	record.UpdatedAt = time.Now().UTC()
	query := `UPDATE attendance_records
SET status = $2, time_slot = $3, schedule_slot = $4, remarks = $5,
    edited_at = $6, edited_by = $7, history = $8, updated_at = $9
WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query,
		record.ID, record.Status, record.TimeSlot, record.ScheduleSlot, record.Remarks,
		record.EditedAt, record.EditedBy, record.History, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update attendance record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update attendance record: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a record permanently.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attendance record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete attendance record: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns attendance rows matching the provided filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		where = append(where, fmt.Sprintf("subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"date":       "date",
		"status":     "status",
		"created_at": "created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT `+attendanceColumns+` FROM attendance_records
WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, whereClause, sortColumn, order, size, offset)

	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM attendance_records WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}
	return rows, total, nil
}

// RecentByStudent returns a student's most recent records, newest first.
// The consecutive-absence walk reads threshold+buffer rows through this.
func (r *AttendanceRepository) RecentByStudent(ctx context.Context, studentID string, limit int) ([]models.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT `+attendanceColumns+` FROM attendance_records
WHERE student_id = $1 ORDER BY date DESC, created_at DESC LIMIT %d`, limit)
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("recent attendance for student: %w", err)
	}
	return rows, nil
}

type statusCountRow struct {
	Status models.AttendanceStatus `db:"status"`
	Count  int                     `db:"cnt"`
}

// CountByStatus groups marked records for a day by status, optionally
// scoped to one subject.
func (r *AttendanceRepository) CountByStatus(ctx context.Context, date time.Time, subjectID string) (*models.StatusCounts, error) {
	query := `SELECT status, COUNT(*) AS cnt FROM attendance_records
WHERE date = $1 AND ($2 = '' OR subject_id = $2)
GROUP BY status`
	var rows []statusCountRow
	if err := r.db.SelectContext(ctx, &rows, query, date, subjectID); err != nil {
		return nil, fmt.Errorf("count attendance by status: %w", err)
	}
	counts := &models.StatusCounts{}
	for _, row := range rows {
		counts.Add(row.Status, row.Count)
	}
	return counts, nil
}

// StatusCountsForStudent aggregates one student's records by status,
// optionally scoped to a subject.
func (r *AttendanceRepository) StatusCountsForStudent(ctx context.Context, studentID, subjectID string) (*models.StatusCounts, error) {
	query := `SELECT status, COUNT(*) AS cnt FROM attendance_records
WHERE student_id = $1 AND ($2 = '' OR subject_id = $2)
GROUP BY status`
	var rows []statusCountRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, subjectID); err != nil {
		return nil, fmt.Errorf("student status counts: %w", err)
	}
	counts := &models.StatusCounts{}
	for _, row := range rows {
		counts.Add(row.Status, row.Count)
	}
	return counts, nil
}

// StatusCountsPerSubject breaks one student's records down per subject.
func (r *AttendanceRepository) StatusCountsPerSubject(ctx context.Context, studentID string) ([]models.SubjectAggregateRow, error) {
	query := `SELECT ar.subject_id, sub.name AS subject_name,
COUNT(*) FILTER (WHERE ar.status = 'present') AS present,
COUNT(*) FILTER (WHERE ar.status = 'absent') AS absent,
COUNT(*) FILTER (WHERE ar.status = 'late') AS late,
COUNT(*) FILTER (WHERE ar.status = 'excused') AS excused,
COUNT(*) AS total
FROM attendance_records ar
JOIN subjects sub ON sub.id = ar.subject_id
WHERE ar.student_id = $1 AND ar.subject_id IS NOT NULL
GROUP BY ar.subject_id, sub.name
ORDER BY sub.name`
	var rows []models.SubjectAggregateRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("per-subject status counts: %w", err)
	}
	return rows, nil
}

// StatusCountsByStudent aggregates records per active student for the
// students roll-up and the low-attendance reporting view.
func (r *AttendanceRepository) StatusCountsByStudent(ctx context.Context, filter models.StudentsSummaryFilter) ([]models.StudentAggregateRow, error) {
	where := []string{"s.active = true"}
	args := []interface{}{}
	if filter.SubjectID != "" {
		where = append(where, fmt.Sprintf("ar.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("ar.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("ar.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	query := fmt.Sprintf(`SELECT s.id AS student_id, s.full_name AS student_name,
COUNT(*) FILTER (WHERE ar.status = 'present') AS present,
COUNT(*) FILTER (WHERE ar.status = 'absent') AS absent,
COUNT(*) FILTER (WHERE ar.status = 'late') AS late,
COUNT(*) FILTER (WHERE ar.status = 'excused') AS excused,
COUNT(*) AS total
FROM attendance_records ar
JOIN students s ON s.id = ar.student_id
WHERE %s
GROUP BY s.id, s.full_name
ORDER BY s.full_name`, strings.Join(where, " AND "))
	var rows []models.StudentAggregateRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("per-student status counts: %w", err)
	}
	return rows, nil
}
