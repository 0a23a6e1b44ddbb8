package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AlertType classifies generated alerts.
type AlertType string

const (
	AlertTypeConsecutiveAbsence AlertType = "consecutive_absence"
	AlertTypeLowAttendance      AlertType = "low_attendance"
)

// Valid returns true when the alert type is supported.
func (t AlertType) Valid() bool {
	return t == AlertTypeConsecutiveAbsence || t == AlertTypeLowAttendance
}

// AlertSeverity grades an alert at generation time.
type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertDetails is the tagged payload of an alert. Consecutive-absence alerts
// fill ConsecutiveDays/StartDate/EndDate, low-attendance alerts fill
// AttendanceRate; Threshold is set by both.
type AlertDetails struct {
	ConsecutiveDays *int       `json:"consecutive_days,omitempty"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	AttendanceRate  *float64   `json:"attendance_rate,omitempty"`
	Threshold       float64    `json:"threshold"`
}

// Value implements driver.Valuer for JSONB storage.
func (d AlertDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner for JSONB storage.
func (d *AlertDetails) Scan(src interface{}) error {
	if src == nil {
		*d = AlertDetails{}
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported alert details type %T", src)
	}
	return json.Unmarshal(raw, d)
}

// Alert is an operational alert derived from attendance history.
type Alert struct {
	ID               string        `db:"id" json:"id"`
	Type             AlertType     `db:"type" json:"type"`
	Severity         AlertSeverity `db:"severity" json:"severity"`
	StudentID        string        `db:"student_id" json:"student_id"`
	SubjectID        *string       `db:"subject_id" json:"subject_id,omitempty"`
	Message          string        `db:"message" json:"message"`
	Details          AlertDetails  `db:"details" json:"details"`
	Acknowledged     bool          `db:"acknowledged" json:"acknowledged"`
	AcknowledgedAt   *time.Time    `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	AcknowledgedBy   *string       `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	NotificationSent bool          `db:"notification_sent" json:"notification_sent"`
	NotifiedAt       *time.Time    `db:"notified_at" json:"notified_at,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

// AlertFilter scopes alert listing.
type AlertFilter struct {
	Type         *AlertType
	StudentID    string
	Acknowledged *bool
	Page         int
	PageSize     int
}

// AlertDetail enriches an alert with the student name for listings.
type AlertDetail struct {
	Alert
	StudentName string `db:"student_name" json:"student_name"`
}

// AlertRecipient identifies who should receive an alert notification.
type AlertRecipient string

const (
	AlertRecipientGuardian AlertRecipient = "guardian"
	AlertRecipientStudent  AlertRecipient = "student"
	AlertRecipientAdmin    AlertRecipient = "admin"
)

// Valid returns true when the recipient kind is supported.
func (r AlertRecipient) Valid() bool {
	switch r {
	case AlertRecipientGuardian, AlertRecipientStudent, AlertRecipientAdmin:
		return true
	default:
		return false
	}
}

// Alert config bounds and defaults.
const (
	MinConsecutiveThreshold     = 1
	MaxConsecutiveThreshold     = 30
	DefaultConsecutiveThreshold = 3
	DefaultLowAttendanceRate    = 80.0

	// CriticalConsecutiveRun is the run length at which a consecutive
	// absence alert escalates from warning to critical.
	CriticalConsecutiveRun = 5

	// ScanSampleFloor is the minimum record count before the automatic
	// scan evaluates low attendance; ReportSampleFloor applies to the
	// on-demand reporting view only.
	ScanSampleFloor   = 10
	ReportSampleFloor = 5
)

// AlertConfig is the singleton of tunable alerting thresholds.
type AlertConfig struct {
	ID                          string     `db:"id" json:"id"`
	ConsecutiveAbsenceThreshold int        `db:"consecutive_absence_threshold" json:"consecutive_absence_threshold"`
	LowAttendanceThreshold      float64    `db:"low_attendance_threshold" json:"low_attendance_threshold"`
	EnableConsecutiveAlerts     bool       `db:"enable_consecutive_alerts" json:"enable_consecutive_alerts"`
	EnableLowAttendanceAlerts   bool       `db:"enable_low_attendance_alerts" json:"enable_low_attendance_alerts"`
	EnablePatternAlerts         bool       `db:"enable_pattern_alerts" json:"enable_pattern_alerts"`
	AutoSendEmail               bool       `db:"auto_send_email" json:"auto_send_email"`
	EmailRecipients             Recipients `db:"email_recipients" json:"email_recipients"`
	UpdatedBy                   *string    `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt                   time.Time  `db:"updated_at" json:"updated_at"`
}

// Recipients is the recipient set stored as JSONB.
type Recipients []AlertRecipient

// Value implements driver.Valuer for JSONB storage.
func (r Recipients) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner for JSONB storage.
func (r *Recipients) Scan(src interface{}) error {
	if src == nil {
		*r = Recipients{}
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported recipients type %T", src)
	}
	return json.Unmarshal(raw, r)
}

// Contains reports whether the set includes the recipient kind.
func (r Recipients) Contains(kind AlertRecipient) bool {
	for _, item := range r {
		if item == kind {
			return true
		}
	}
	return false
}

// DefaultAlertConfig returns the built-in thresholds used when no singleton
// row exists. The engine never fails on a missing config.
func DefaultAlertConfig() *AlertConfig {
	return &AlertConfig{
		ConsecutiveAbsenceThreshold: DefaultConsecutiveThreshold,
		LowAttendanceThreshold:      DefaultLowAttendanceRate,
		EnableConsecutiveAlerts:     true,
		EnableLowAttendanceAlerts:   true,
		EnablePatternAlerts:         false,
		AutoSendEmail:               false,
		EmailRecipients:             Recipients{AlertRecipientGuardian},
	}
}
