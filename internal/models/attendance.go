package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// TimeSlot distinguishes arrival and departure marks.
type TimeSlot string

const (
	TimeSlotArrival   TimeSlot = "arrival"
	TimeSlotDeparture TimeSlot = "departure"
)

// Valid returns true when the time slot is a supported value.
func (t TimeSlot) Valid() bool {
	return t == TimeSlotArrival || t == TimeSlotDeparture
}

// MaxRemarksLength bounds the free-text remarks column.
const MaxRemarksLength = 500

// MaxHistoryEntries caps the embedded edit history; the oldest snapshot is
// dropped once the cap is reached so heavily edited rows stay bounded.
const MaxHistoryEntries = 100

// HistoryEntry is a pre-edit snapshot of an attendance record.
type HistoryEntry struct {
	Status       AttendanceStatus `json:"status"`
	TimeSlot     *TimeSlot        `json:"time_slot,omitempty"`
	ScheduleSlot *string          `json:"schedule_slot,omitempty"`
	Remarks      *string          `json:"remarks,omitempty"`
	EditedAt     time.Time        `json:"edited_at"`
	EditedBy     string           `json:"edited_by"`
}

// HistoryEntries is the append-only edit history stored as JSONB.
type HistoryEntries []HistoryEntry

// Value implements driver.Valuer for JSONB storage.
func (h HistoryEntries) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner for JSONB storage.
func (h *HistoryEntries) Scan(src interface{}) error {
	if src == nil {
		*h = HistoryEntries{}
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported history type %T", src)
	}
	return json.Unmarshal(raw, h)
}

// AttendanceRecord is a single attendance mark for a student.
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	SubjectID    *string          `db:"subject_id" json:"subject_id,omitempty"`
	Date         time.Time        `db:"date" json:"date"`
	Status       AttendanceStatus `db:"status" json:"status"`
	TimeSlot     *TimeSlot        `db:"time_slot" json:"time_slot,omitempty"`
	ScheduleSlot *string          `db:"schedule_slot" json:"schedule_slot,omitempty"`
	Remarks      *string          `db:"remarks" json:"remarks,omitempty"`
	MarkedBy     string           `db:"marked_by" json:"marked_by"`
	EditedAt     *time.Time       `db:"edited_at" json:"edited_at,omitempty"`
	EditedBy     *string          `db:"edited_by" json:"edited_by,omitempty"`
	History      HistoryEntries   `db:"history" json:"history"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// Snapshot captures the current mutable state as a history entry.
func (r *AttendanceRecord) Snapshot(editedAt time.Time, editedBy string) HistoryEntry {
	return HistoryEntry{
		Status:       r.Status,
		TimeSlot:     r.TimeSlot,
		ScheduleSlot: r.ScheduleSlot,
		Remarks:      r.Remarks,
		EditedAt:     editedAt,
		EditedBy:     editedBy,
	}
}

// KeyScope tags the two uniqueness scopes of an attendance key.
type KeyScope string

const (
	// KeyScopeSubject keys on (student, subject, date, scheduleSlot, timeSlot).
	KeyScopeSubject KeyScope = "subject"
	// KeyScopeDaily keys on (student, date) for arrival-only marks.
	KeyScopeDaily KeyScope = "daily"
)

// AttendanceKey is the tagged uniqueness key of a mark. Scope decides which
// fields participate; callers dispatch on it with a switch.
type AttendanceKey struct {
	Scope        KeyScope
	StudentID    string
	SubjectID    string
	Date         time.Time
	ScheduleSlot *string
	TimeSlot     *TimeSlot
}

// KeyFor derives the uniqueness key for a record. A subject-less mark and a
// subject-scoped mark for the same student/date live in different scopes.
func KeyFor(record *AttendanceRecord) AttendanceKey {
	if record.SubjectID != nil && *record.SubjectID != "" {
		return AttendanceKey{
			Scope:        KeyScopeSubject,
			StudentID:    record.StudentID,
			SubjectID:    *record.SubjectID,
			Date:         record.Date,
			ScheduleSlot: record.ScheduleSlot,
			TimeSlot:     record.TimeSlot,
		}
	}
	return AttendanceKey{Scope: KeyScopeDaily, StudentID: record.StudentID, Date: record.Date}
}

// NormalizeDate truncates a timestamp to day granularity in UTC.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AttendanceFilter defines listing filters.
type AttendanceFilter struct {
	StudentID string
	SubjectID string
	Status    *AttendanceStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StatusCounts groups record counts by attendance status.
type StatusCounts struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Excused int `json:"excused"`
	Total   int `json:"total"`
}

// Add accumulates one row of a GROUP BY status aggregation.
func (c *StatusCounts) Add(status AttendanceStatus, count int) {
	switch status {
	case AttendanceStatusPresent:
		c.Present += count
	case AttendanceStatusAbsent:
		c.Absent += count
	case AttendanceStatusLate:
		c.Late += count
	case AttendanceStatusExcused:
		c.Excused += count
	}
	c.Total += count
}

// DailySummary aggregates marked records for one day.
type DailySummary struct {
	Date      time.Time `json:"date"`
	SubjectID *string   `json:"subject_id,omitempty"`
	StatusCounts
	AttendanceRate float64 `json:"attendance_rate"`
}

// SubjectSummary aggregates a subject on a date against its active roster.
type SubjectSummary struct {
	SubjectID     string    `json:"subject_id"`
	Date          time.Time `json:"date"`
	EnrolledCount int       `json:"enrolled_count"`
	StatusCounts
	AttendanceRate float64 `json:"attendance_rate"`
}

// SubjectBreakdown is a per-subject slice of a student summary.
type SubjectBreakdown struct {
	SubjectID   string  `json:"subject_id"`
	SubjectName *string `json:"subject_name,omitempty"`
	StatusCounts
	AttendanceRate float64 `json:"attendance_rate"`
}

// StudentSummary aggregates one student's records overall and per subject.
type StudentSummary struct {
	StudentID string `json:"student_id"`
	StatusCounts
	AttendanceRate float64            `json:"attendance_rate"`
	Subjects       []SubjectBreakdown `json:"subjects,omitempty"`
}

// SubjectAggregateRow is a per-subject aggregate for one student.
type SubjectAggregateRow struct {
	SubjectID   string  `db:"subject_id" json:"subject_id"`
	SubjectName *string `db:"subject_name" json:"subject_name,omitempty"`
	Present     int     `db:"present" json:"present"`
	Absent      int     `db:"absent" json:"absent"`
	Late        int     `db:"late" json:"late"`
	Excused     int     `db:"excused" json:"excused"`
	Total       int     `db:"total" json:"total"`
}

// StudentAggregateRow is a per-student aggregate produced by a grouped query.
type StudentAggregateRow struct {
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	Present     int    `db:"present" json:"present"`
	Absent      int    `db:"absent" json:"absent"`
	Late        int    `db:"late" json:"late"`
	Excused     int    `db:"excused" json:"excused"`
	Total       int    `db:"total" json:"total"`
}

// StudentsSummaryRow extends the aggregate row with the derived rate.
type StudentsSummaryRow struct {
	StudentAggregateRow
	AttendanceRate float64 `json:"attendance_rate"`
}

// StudentsSummaryFilter scopes the per-student roll-up.
type StudentsSummaryFilter struct {
	SubjectID string
	DateFrom  *time.Time
	DateTo    *time.Time
}
