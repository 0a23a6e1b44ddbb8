package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-attend-api/internal/models"
)

// alertConfigID pins the settings table to a single row.
const alertConfigID = "singleton"

// AlertConfigRepository persists the alert threshold singleton.
type AlertConfigRepository struct {
	db *sqlx.DB
}

// NewAlertConfigRepository constructs the repository.
func NewAlertConfigRepository(db *sqlx.DB) *AlertConfigRepository {
	return &AlertConfigRepository{db: db}
}

// Get returns the singleton row. sql.ErrNoRows passes through so the service
// can fall back to built-in defaults.
func (r *AlertConfigRepository) Get(ctx context.Context) (*models.AlertConfig, error) {
	query := `SELECT id, consecutive_absence_threshold, low_attendance_threshold,
enable_consecutive_alerts, enable_low_attendance_alerts, enable_pattern_alerts,
auto_send_email, email_recipients, updated_by, updated_at
FROM alert_settings WHERE id = $1`
	var cfg models.AlertConfig
	if err := r.db.GetContext(ctx, &cfg, query, alertConfigID); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Upsert writes the singleton row, creating it when absent.
func (r *AlertConfigRepository) Upsert(ctx context.Context, cfg *models.AlertConfig) error {
	cfg.ID = alertConfigID
	cfg.UpdatedAt = time.Now().UTC()
	query := `INSERT INTO alert_settings (id, consecutive_absence_threshold, low_attendance_threshold,
enable_consecutive_alerts, enable_low_attendance_alerts, enable_pattern_alerts,
auto_send_email, email_recipients, updated_by, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
consecutive_absence_threshold = EXCLUDED.consecutive_absence_threshold,
low_attendance_threshold = EXCLUDED.low_attendance_threshold,
enable_consecutive_alerts = EXCLUDED.enable_consecutive_alerts,
enable_low_attendance_alerts = EXCLUDED.enable_low_attendance_alerts,
enable_pattern_alerts = EXCLUDED.enable_pattern_alerts,
auto_send_email = EXCLUDED.auto_send_email,
email_recipients = EXCLUDED.email_recipients,
updated_by = EXCLUDED.updated_by,
updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		cfg.ID, cfg.ConsecutiveAbsenceThreshold, cfg.LowAttendanceThreshold,
		cfg.EnableConsecutiveAlerts, cfg.EnableLowAttendanceAlerts, cfg.EnablePatternAlerts,
		cfg.AutoSendEmail, cfg.EmailRecipients, cfg.UpdatedBy, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert alert settings: %w", err)
	}
	return nil
}
