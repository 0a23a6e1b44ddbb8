package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-attend-api/internal/models"
)

// EnrollmentRepository provides read-only enrollment membership lookups.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// HasActive reports whether the student holds an active enrollment in the
// subject. Subject-scoped marks are rejected without one.
func (r *EnrollmentRepository) HasActive(ctx context.Context, studentID, subjectID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM enrollments
WHERE student_id = $1 AND subject_id = $2 AND status = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, subjectID, models.EnrollmentStatusActive); err != nil {
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return exists, nil
}

// ActiveCountBySubject returns the active roster size for a subject. This is
// the subject summary denominator, distinct from marked-record counts.
func (r *EnrollmentRepository) ActiveCountBySubject(ctx context.Context, subjectID string) (int, error) {
	query := `SELECT COUNT(*) FROM enrollments WHERE subject_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, subjectID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}
