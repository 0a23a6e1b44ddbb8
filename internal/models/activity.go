package models

import "time"

// Activity actions recorded by the engine.
const (
	ActivityAttendanceDelete  = "ATTENDANCE_DELETE"
	ActivityAlertDismiss      = "ALERT_DISMISS"
	ActivityAlertConfigUpdate = "ALERT_CONFIG_UPDATE"
)

// ActivityLog is a fire-and-forget compliance trail record.
type ActivityLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
