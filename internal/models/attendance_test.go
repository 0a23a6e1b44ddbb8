package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyForSubjectScope(t *testing.T) {
	subjectID := "sub-1"
	slot := TimeSlotArrival
	record := &AttendanceRecord{
		StudentID: "stu-1",
		SubjectID: &subjectID,
		Date:      NormalizeDate(time.Now()),
		TimeSlot:  &slot,
	}

	key := KeyFor(record)
	assert.Equal(t, KeyScopeSubject, key.Scope)
	assert.Equal(t, "sub-1", key.SubjectID)
	require.NotNil(t, key.TimeSlot)
}

func TestKeyForDailyScope(t *testing.T) {
	record := &AttendanceRecord{StudentID: "stu-1", Date: NormalizeDate(time.Now())}
	key := KeyFor(record)
	assert.Equal(t, KeyScopeDaily, key.Scope)
	assert.Empty(t, key.SubjectID)

	// An empty subject id string is a daily mark, not a subject mark.
	empty := ""
	record.SubjectID = &empty
	assert.Equal(t, KeyScopeDaily, KeyFor(record).Scope)
}

func TestNormalizeDateTruncatesToUTCDay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	stamp := time.Date(2026, 3, 2, 14, 45, 30, 0, loc)

	normalized := NormalizeDate(stamp)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), normalized)
}

func TestStatusCountsAdd(t *testing.T) {
	counts := StatusCounts{}
	counts.Add(AttendanceStatusPresent, 20)
	counts.Add(AttendanceStatusAbsent, 3)
	counts.Add(AttendanceStatusLate, 2)
	counts.Add(AttendanceStatusExcused, 1)

	assert.Equal(t, 20, counts.Present)
	assert.Equal(t, 26, counts.Total)
}

func TestHistoryEntriesScanRoundTrip(t *testing.T) {
	remarks := "sick"
	entries := HistoryEntries{{
		Status:   AttendanceStatusAbsent,
		Remarks:  &remarks,
		EditedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		EditedBy: "teacher-1",
	}}

	raw, err := entries.Value()
	require.NoError(t, err)

	var decoded HistoryEntries
	require.NoError(t, decoded.Scan(raw))
	require.Len(t, decoded, 1)
	assert.Equal(t, AttendanceStatusAbsent, decoded[0].Status)
	require.NotNil(t, decoded[0].Remarks)
	assert.Equal(t, "sick", *decoded[0].Remarks)
}

func TestSnapshotCapturesMutableState(t *testing.T) {
	remarks := "traffic"
	record := &AttendanceRecord{
		Status:  AttendanceStatusLate,
		Remarks: &remarks,
	}
	at := time.Now().UTC()
	entry := record.Snapshot(at, "teacher-2")
	assert.Equal(t, AttendanceStatusLate, entry.Status)
	assert.Equal(t, "teacher-2", entry.EditedBy)
	assert.Equal(t, at, entry.EditedAt)
}
