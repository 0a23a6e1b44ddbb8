package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-attend-api/internal/models"
)

const alertColumns = `id, type, severity, student_id, subject_id, message, details,
acknowledged, acknowledged_at, acknowledged_by, notification_sent, notified_at, created_at`

// AlertRepository handles persistence for generated alerts.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository constructs the repository.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	alert.CreatedAt = time.Now().UTC()
	query := `INSERT INTO alerts (` + alertColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.Type, alert.Severity, alert.StudentID, alert.SubjectID,
		alert.Message, alert.Details, alert.Acknowledged, alert.AcknowledgedAt,
		alert.AcknowledgedBy, alert.NotificationSent, alert.NotifiedAt, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// FindByID fetches an alert by primary key.
func (r *AlertRepository) FindByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	var alert models.Alert
	if err := r.db.GetContext(ctx, &alert, query, id); err != nil {
		return nil, err
	}
	return &alert, nil
}

// List returns alerts matching the filter, newest first.
func (r *AlertRepository) List(ctx context.Context, filter models.AlertFilter) ([]models.AlertDetail, int, error) {
	base := `FROM alerts a JOIN students s ON s.id = a.student_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Type != nil && filter.Type.Valid() {
		where = append(where, fmt.Sprintf("a.type = $%d", len(args)+1))
		args = append(args, *filter.Type)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Acknowledged != nil {
		where = append(where, fmt.Sprintf("a.acknowledged = $%d", len(args)+1))
		args = append(args, *filter.Acknowledged)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.type, a.severity, a.student_id, a.subject_id, a.message, a.details,
a.acknowledged, a.acknowledged_at, a.acknowledged_by, a.notification_sent, a.notified_at, a.created_at,
s.full_name AS student_name
%s WHERE %s ORDER BY a.created_at DESC LIMIT %d OFFSET %d`, base, whereClause, size, offset)

	var rows []models.AlertDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}
	return rows, total, nil
}

// Unacknowledged returns a student's open alerts of the given type. The scan
// dedup policies read these.
func (r *AlertRepository) Unacknowledged(ctx context.Context, studentID string, alertType models.AlertType) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
WHERE student_id = $1 AND type = $2 AND acknowledged = false
ORDER BY created_at DESC`
	var rows []models.Alert
	if err := r.db.SelectContext(ctx, &rows, query, studentID, alertType); err != nil {
		return nil, fmt.Errorf("unacknowledged alerts: %w", err)
	}
	return rows, nil
}

// Acknowledge marks one alert as reviewed. The alert itself is retained.
func (r *AlertRepository) Acknowledge(ctx context.Context, id, actorID string, at time.Time) error {
	query := `UPDATE alerts SET acknowledged = true, acknowledged_at = $2, acknowledged_by = $3
WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, at, actorID)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AcknowledgeMany marks a batch of alerts as reviewed and reports how many
// rows changed.
func (r *AlertRepository) AcknowledgeMany(ctx context.Context, ids []string, actorID string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `UPDATE alerts SET acknowledged = true, acknowledged_at = $2, acknowledged_by = $3
WHERE id = ANY($1) AND acknowledged = false`
	result, err := r.db.ExecContext(ctx, query, pq.Array(ids), at, actorID)
	if err != nil {
		return 0, fmt.Errorf("acknowledge alerts: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("acknowledge alerts: %w", err)
	}
	return int(affected), nil
}

// Delete removes an alert permanently (dismiss).
func (r *AlertRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkNotified stamps a successful notification on the alert.
func (r *AlertRepository) MarkNotified(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE alerts SET notification_sent = true, notified_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("mark alert notified: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark alert notified: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
