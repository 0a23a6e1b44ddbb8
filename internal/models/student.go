package models

import "time"

// Student represents a learner registered in the institution.
type Student struct {
	ID            string    `db:"id" json:"id"`
	NIS           string    `db:"nis" json:"nis"`
	FullName      string    `db:"full_name" json:"full_name"`
	Email         *string   `db:"email" json:"email,omitempty"`
	GuardianName  *string   `db:"guardian_name" json:"guardian_name,omitempty"`
	GuardianEmail *string   `db:"guardian_email" json:"guardian_email,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
