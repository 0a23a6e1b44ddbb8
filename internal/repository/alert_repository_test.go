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

func newAlertRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAlertRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAlertRepoMock(t)
	defer cleanup()

	repo := NewAlertRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO alerts")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	days := 4
	alert := &models.Alert{
		Type:      models.AlertTypeConsecutiveAbsence,
		Severity:  models.AlertSeverityWarning,
		StudentID: "stu-1",
		Message:   "absent 4 consecutive days",
		Details:   models.AlertDetails{ConsecutiveDays: &days, Threshold: 3},
	}
	require.NoError(t, repo.Create(context.Background(), alert))
	require.NotEmpty(t, alert.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepositoryUnacknowledged(t *testing.T) {
	db, mock, cleanup := newAlertRepoMock(t)
	defer cleanup()

	repo := NewAlertRepository(db)
	details, _ := models.AlertDetails{Threshold: 3}.Value()
	rows := sqlmock.NewRows([]string{
		"id", "type", "severity", "student_id", "subject_id", "message", "details",
		"acknowledged", "acknowledged_at", "acknowledged_by", "notification_sent", "notified_at", "created_at",
	}).AddRow("alert-1", "consecutive_absence", "warning", "stu-1", nil, "msg", details,
		false, nil, nil, false, nil, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("AND acknowledged = false")).
		WithArgs("stu-1", models.AlertTypeConsecutiveAbsence).
		WillReturnRows(rows)

	alerts, err := repo.Unacknowledged(context.Background(), "stu-1", models.AlertTypeConsecutiveAbsence)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "alert-1", alerts[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepositoryAcknowledgeMissing(t *testing.T) {
	db, mock, cleanup := newAlertRepoMock(t)
	defer cleanup()

	repo := NewAlertRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE alerts SET acknowledged = true")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Acknowledge(context.Background(), "missing", "admin-1", time.Now())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepositoryAcknowledgeMany(t *testing.T) {
	db, mock, cleanup := newAlertRepoMock(t)
	defer cleanup()

	repo := NewAlertRepository(db)
	at := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ANY($1) AND acknowledged = false")).
		WithArgs(pq.Array([]string{"a-1", "a-2", "a-3"}), at, "admin-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := repo.AcknowledgeMany(context.Background(), []string{"a-1", "a-2", "a-3"}, "admin-1", at)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepositoryMarkNotified(t *testing.T) {
	db, mock, cleanup := newAlertRepoMock(t)
	defer cleanup()

	repo := NewAlertRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE alerts SET notification_sent = true")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkNotified(context.Background(), "alert-1", time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertConfigRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newAlertRepoMock(t)
	defer cleanup()

	repo := NewAlertConfigRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM alert_settings")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertConfigRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newAlertRepoMock(t)
	defer cleanup()

	repo := NewAlertConfigRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	cfg := models.DefaultAlertConfig()
	cfg.ConsecutiveAbsenceThreshold = 5
	require.NoError(t, repo.Upsert(context.Background(), cfg))
	require.NoError(t, mock.ExpectationsWereMet())
}
