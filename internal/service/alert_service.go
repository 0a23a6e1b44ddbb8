package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attend-api/internal/models"
	appErrors "github.com/noah-isme/sma-attend-api/pkg/errors"
	"github.com/noah-isme/sma-attend-api/pkg/notify"
)

type alertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	FindByID(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context, filter models.AlertFilter) ([]models.AlertDetail, int, error)
	Unacknowledged(ctx context.Context, studentID string, alertType models.AlertType) ([]models.Alert, error)
	Acknowledge(ctx context.Context, id, actorID string, at time.Time) error
	AcknowledgeMany(ctx context.Context, ids []string, actorID string, at time.Time) (int, error)
	Delete(ctx context.Context, id string) error
	MarkNotified(ctx context.Context, id string, at time.Time) error
}

type alertConfigRepository interface {
	Get(ctx context.Context) (*models.AlertConfig, error)
	Upsert(ctx context.Context, cfg *models.AlertConfig) error
}

type studentLister interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListActive(ctx context.Context) ([]models.Student, error)
}

type scanAttendanceRepository interface {
	RecentByStudent(ctx context.Context, studentID string, limit int) ([]models.AttendanceRecord, error)
	StatusCountsForStudent(ctx context.Context, studentID, subjectID string) (*models.StatusCounts, error)
	StatusCountsByStudent(ctx context.Context, filter models.StudentsSummaryFilter) ([]models.StudentAggregateRow, error)
}

// AlertService generates and manages attendance alerts. Scans walk every
// active student sequentially; a broken student record skips that student,
// never the scan.
type AlertService struct {
	alerts     alertRepository
	configs    alertConfigRepository
	students   studentLister
	attendance scanAttendanceRepository
	activities activitySink
	dispatcher notify.Dispatcher
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger

	adminAddress string
	sendThrottle time.Duration

	scanning int32
}

// NewAlertService constructs the alert service.
func NewAlertService(
	alerts alertRepository,
	configs alertConfigRepository,
	students studentLister,
	attendance scanAttendanceRepository,
	activities activitySink,
	dispatcher notify.Dispatcher,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	adminAddress string,
	sendThrottle time.Duration,
) *AlertService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AlertService{
		alerts:       alerts,
		configs:      configs,
		students:     students,
		attendance:   attendance,
		activities:   activities,
		dispatcher:   dispatcher,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		adminAddress: adminAddress,
		sendThrottle: sendThrottle,
	}
	_ = svc.validator.RegisterValidation("alert_recipient", func(fl validator.FieldLevel) bool {
		return models.AlertRecipient(strings.ToLower(fl.Field().String())).Valid()
	})
	return svc
}

// Config returns the threshold singleton, falling back to built-in defaults
// when no row has been stored yet.
func (s *AlertService) Config(ctx context.Context) (*models.AlertConfig, error) {
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultAlertConfig(), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load alert config")
	}
	return cfg, nil
}

// UpdateAlertConfigRequest patches the threshold singleton. Absent fields
// keep their stored values.
type UpdateAlertConfigRequest struct {
	ConsecutiveAbsenceThreshold *int      `json:"consecutive_absence_threshold" validate:"omitempty,min=1,max=30"`
	LowAttendanceThreshold      *float64  `json:"low_attendance_threshold" validate:"omitempty,min=0,max=100"`
	EnableConsecutiveAlerts     *bool     `json:"enable_consecutive_alerts"`
	EnableLowAttendanceAlerts   *bool     `json:"enable_low_attendance_alerts"`
	EnablePatternAlerts         *bool     `json:"enable_pattern_alerts"`
	AutoSendEmail               *bool     `json:"auto_send_email"`
	EmailRecipients             *[]string `json:"email_recipients" validate:"omitempty,dive,alert_recipient"`
}

// UpdateConfig merges a partial update into the singleton and persists it.
func (s *AlertService) UpdateConfig(ctx context.Context, req UpdateAlertConfigRequest, claims *models.JWTClaims) (*models.AlertConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	cfg, err := s.Config(ctx)
	if err != nil {
		return nil, err
	}
	old, _ := json.Marshal(cfg)

	if req.ConsecutiveAbsenceThreshold != nil {
		cfg.ConsecutiveAbsenceThreshold = *req.ConsecutiveAbsenceThreshold
	}
	if req.LowAttendanceThreshold != nil {
		cfg.LowAttendanceThreshold = *req.LowAttendanceThreshold
	}
	if req.EnableConsecutiveAlerts != nil {
		cfg.EnableConsecutiveAlerts = *req.EnableConsecutiveAlerts
	}
	if req.EnableLowAttendanceAlerts != nil {
		cfg.EnableLowAttendanceAlerts = *req.EnableLowAttendanceAlerts
	}
	if req.EnablePatternAlerts != nil {
		cfg.EnablePatternAlerts = *req.EnablePatternAlerts
	}
	if req.AutoSendEmail != nil {
		cfg.AutoSendEmail = *req.AutoSendEmail
	}
	if req.EmailRecipients != nil {
		recipients := make(models.Recipients, 0, len(*req.EmailRecipients))
		for _, kind := range *req.EmailRecipients {
			recipients = append(recipients, models.AlertRecipient(strings.ToLower(kind)))
		}
		cfg.EmailRecipients = recipients
	}
	actor := claims.UserID
	cfg.UpdatedBy = &actor

	if err := s.configs.Upsert(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save alert config")
	}

	if err := s.activities.Create(ctx, &models.ActivityLog{
		ActorID:   &actor,
		Action:    models.ActivityAlertConfigUpdate,
		Resource:  "alert_config",
		OldValues: old,
	}); err != nil {
		s.logger.Warn("activity log write failed", zap.Error(err))
	}
	return cfg, nil
}

// ScanResult summarises one alert scan.
type ScanResult struct {
	StudentsScanned int           `json:"students_scanned"`
	AlertsCreated   int           `json:"alerts_created"`
	Skipped         int           `json:"skipped"`
	Duration        time.Duration `json:"-"`
	DurationMillis  int64         `json:"duration_ms"`
}

// Scan evaluates every active student against the configured thresholds. Only
// one scan runs at a time; concurrent callers get an error instead of a
// second pass.
func (s *AlertService) Scan(ctx context.Context) (*ScanResult, error) {
	if !atomic.CompareAndSwapInt32(&s.scanning, 0, 1) {
		return nil, appErrors.Clone(appErrors.ErrScanRunning, "alert scan already running")
	}
	defer atomic.StoreInt32(&s.scanning, 0)

	started := time.Now()
	cfg, err := s.Config(ctx)
	if err != nil {
		return nil, err
	}

	studentRows, err := s.students.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active students")
	}

	result := &ScanResult{StudentsScanned: len(studentRows)}
	for i := range studentRows {
		student := &studentRows[i]
		created, err := s.scanStudent(ctx, cfg, student)
		if err != nil {
			result.Skipped++
			s.logger.Warn("alert scan skipped student",
				zap.String("student_id", student.ID), zap.Error(err))
			continue
		}
		result.AlertsCreated += created
	}

	result.Duration = time.Since(started)
	result.DurationMillis = result.Duration.Milliseconds()
	if s.metrics != nil {
		s.metrics.ObserveScanDuration(result.Duration)
	}
	s.logger.Info("alert scan finished",
		zap.Int("students", result.StudentsScanned),
		zap.Int("alerts", result.AlertsCreated),
		zap.Int("skipped", result.Skipped),
		zap.Duration("took", result.Duration))
	return result, nil
}

func (s *AlertService) scanStudent(ctx context.Context, cfg *models.AlertConfig, student *models.Student) (int, error) {
	created := 0
	if cfg.EnableConsecutiveAlerts {
		alert, err := s.checkConsecutiveAbsence(ctx, cfg, student)
		if err != nil {
			return created, err
		}
		if alert != nil {
			created++
			if cfg.AutoSendEmail {
				s.sendAlertNotifications(ctx, cfg.EmailRecipients, student, alert)
			}
		}
	}
	if cfg.EnableLowAttendanceAlerts {
		alert, err := s.checkLowAttendance(ctx, cfg, student)
		if err != nil {
			return created, err
		}
		if alert != nil {
			created++
			if cfg.AutoSendEmail {
				s.sendAlertNotifications(ctx, cfg.EmailRecipients, student, alert)
			}
		}
	}
	return created, nil
}

// checkConsecutiveAbsence walks the student's recent marks newest-first and
// measures the unbroken run of absent days. Days without any record (weekends,
// holidays) do not break the run; a day with a present or late mark does.
func (s *AlertService) checkConsecutiveAbsence(ctx context.Context, cfg *models.AlertConfig, student *models.Student) (*models.Alert, error) {
	// A margin past the threshold keeps the window wide enough to
	// measure runs that exceed it.
	limit := (cfg.ConsecutiveAbsenceThreshold + 7) * 4
	records, err := s.attendance.RecentByStudent(ctx, student.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent attendance: %w", err)
	}

	run, start, end := consecutiveAbsentRun(records)
	if run < cfg.ConsecutiveAbsenceThreshold {
		return nil, nil
	}

	existing, err := s.alerts.Unacknowledged(ctx, student.ID, models.AlertTypeConsecutiveAbsence)
	if err != nil {
		return nil, fmt.Errorf("load open alerts: %w", err)
	}
	// Fuzzy dedup: an open alert covering the same run (give or take the
	// day that elapsed since it fired) suppresses a new one, so a run
	// that merely grew by one day does not re-alert every scan.
	for _, open := range existing {
		if open.Details.ConsecutiveDays != nil && *open.Details.ConsecutiveDays >= run-1 {
			return nil, nil
		}
	}

	severity := models.AlertSeverityWarning
	if run >= models.CriticalConsecutiveRun {
		severity = models.AlertSeverityCritical
	}
	days := run
	alert := &models.Alert{
		Type:      models.AlertTypeConsecutiveAbsence,
		Severity:  severity,
		StudentID: student.ID,
		Message: fmt.Sprintf("%s has been absent %d consecutive school days (since %s)",
			student.FullName, run, start.Format("2006-01-02")),
		Details: models.AlertDetails{
			ConsecutiveDays: &days,
			StartDate:       &start,
			EndDate:         &end,
			Threshold:       float64(cfg.ConsecutiveAbsenceThreshold),
		},
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveAlert(models.AlertTypeConsecutiveAbsence)
	}
	return alert, nil
}

// consecutiveAbsentRun folds records (ordered newest-first) into per-day
// outcomes and counts the leading run of fully absent days. A day with any
// present or late mark attends; excused-only days break the run without
// counting as absent.
func consecutiveAbsentRun(records []models.AttendanceRecord) (run int, start, end time.Time) {
	type dayState struct {
		absent   bool
		attended bool
	}
	days := map[string]*dayState{}
	order := []string{}
	for _, record := range records {
		key := record.Date.Format("2006-01-02")
		state, ok := days[key]
		if !ok {
			state = &dayState{}
			days[key] = state
			order = append(order, key)
		}
		switch record.Status {
		case models.AttendanceStatusAbsent:
			state.absent = true
		case models.AttendanceStatusPresent, models.AttendanceStatusLate:
			state.attended = true
		}
	}

	for _, key := range order {
		state := days[key]
		if !state.absent || state.attended {
			break
		}
		day, _ := time.Parse("2006-01-02", key)
		if run == 0 {
			end = day
		}
		start = day
		run++
	}
	return run, start, end
}

// checkLowAttendance compares the student's overall rate to the configured
// floor. Excused absences count toward the attended numerator so medical
// leave does not trip the alert.
func (s *AlertService) checkLowAttendance(ctx context.Context, cfg *models.AlertConfig, student *models.Student) (*models.Alert, error) {
	counts, err := s.attendance.StatusCountsForStudent(ctx, student.ID, "")
	if err != nil {
		return nil, fmt.Errorf("aggregate attendance: %w", err)
	}
	if counts.Total < models.ScanSampleFloor {
		return nil, nil
	}

	rate := rateOf(counts.Present+counts.Late+counts.Excused, counts.Total)
	if rate >= cfg.LowAttendanceThreshold {
		return nil, nil
	}

	existing, err := s.alerts.Unacknowledged(ctx, student.ID, models.AlertTypeLowAttendance)
	if err != nil {
		return nil, fmt.Errorf("load open alerts: %w", err)
	}
	// Strict dedup: any open low-attendance alert suppresses a new one,
	// regardless of how far the rate has moved since it fired.
	if len(existing) > 0 {
		return nil, nil
	}

	alert := &models.Alert{
		Type:      models.AlertTypeLowAttendance,
		Severity:  models.AlertSeverityWarning,
		StudentID: student.ID,
		Message: fmt.Sprintf("%s attendance rate %.2f%% is below the %.2f%% threshold",
			student.FullName, rate, cfg.LowAttendanceThreshold),
		Details: models.AlertDetails{
			AttendanceRate: &rate,
			Threshold:      cfg.LowAttendanceThreshold,
		},
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveAlert(models.AlertTypeLowAttendance)
	}
	return alert, nil
}

// List returns paginated alerts with the student name joined in.
func (s *AlertService) List(ctx context.Context, filter models.AlertFilter) ([]models.AlertDetail, *models.Pagination, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	filter.Page = page
	filter.PageSize = size
	rows, total, err := s.alerts.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list alerts")
	}
	return rows, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Acknowledge marks one alert as handled. Acknowledging an already handled
// alert is a no-op success.
func (s *AlertService) Acknowledge(ctx context.Context, id string, claims *models.JWTClaims) error {
	if err := s.alerts.Acknowledge(ctx, id, claims.UserID, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "alert not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acknowledge alert")
	}
	return nil
}

// AcknowledgeMany acknowledges a batch and reports how many rows actually
// flipped; already acknowledged or missing ids are silently skipped.
func (s *AlertService) AcknowledgeMany(ctx context.Context, ids []string, claims *models.JWTClaims) (int, error) {
	if len(ids) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "no alert ids provided")
	}
	count, err := s.alerts.AcknowledgeMany(ctx, ids, claims.UserID, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acknowledge alerts")
	}
	return count, nil
}

// Dismiss deletes an alert permanently and records the dismissal in the
// activity trail.
func (s *AlertService) Dismiss(ctx context.Context, id string, claims *models.JWTClaims) error {
	alert, err := s.alerts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "alert not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load alert")
	}
	if err := s.alerts.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "alert not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to dismiss alert")
	}

	old, _ := json.Marshal(alert)
	actor := claims.UserID
	if err := s.activities.Create(ctx, &models.ActivityLog{
		ActorID:    &actor,
		Action:     models.ActivityAlertDismiss,
		Resource:   "alert",
		ResourceID: &alert.ID,
		OldValues:  old,
	}); err != nil {
		s.logger.Warn("activity log write failed", zap.String("alert_id", alert.ID), zap.Error(err))
	}
	return nil
}

// Notify sends the alert to the named recipient kinds, falling back to the
// configured recipients when none are given. Failing is reserved for an empty
// address list; delivery errors to resolved addresses are logged, never
// returned.
func (s *AlertService) Notify(ctx context.Context, id string, recipients []string, claims *models.JWTClaims) error {
	kinds := make(models.Recipients, 0, len(recipients))
	for _, kind := range recipients {
		parsed := models.AlertRecipient(strings.ToLower(kind))
		if !parsed.Valid() {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown recipient kind %q", kind))
		}
		kinds = append(kinds, parsed)
	}

	alert, err := s.alerts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "alert not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load alert")
	}
	if len(kinds) == 0 {
		cfg, err := s.Config(ctx)
		if err != nil {
			return err
		}
		kinds = cfg.EmailRecipients
	}
	student, err := s.students.FindByID(ctx, alert.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}

	addresses := s.resolveRecipientAddresses(kinds, student)
	if len(addresses) == 0 {
		return appErrors.Clone(appErrors.ErrNoRecipients, "no reachable recipients for alert")
	}
	if sent := s.deliverAlert(ctx, addresses, student, alert); sent == 0 {
		s.logger.Warn("alert notification reached no recipients",
			zap.String("alert_id", alert.ID), zap.Int("addresses", len(addresses)))
	}
	return nil
}

// sendAlertNotifications is the auto-send path used by the scan: resolve,
// then deliver best-effort.
func (s *AlertService) sendAlertNotifications(ctx context.Context, recipients models.Recipients, student *models.Student, alert *models.Alert) int {
	return s.deliverAlert(ctx, s.resolveRecipientAddresses(recipients, student), student, alert)
}

// resolveRecipientAddresses maps recipient kinds to the addresses known for
// the student; kinds without an address on file are dropped.
func (s *AlertService) resolveRecipientAddresses(recipients models.Recipients, student *models.Student) []string {
	addresses := []string{}
	if recipients.Contains(models.AlertRecipientGuardian) && student.GuardianEmail != nil && *student.GuardianEmail != "" {
		addresses = append(addresses, *student.GuardianEmail)
	}
	if recipients.Contains(models.AlertRecipientStudent) && student.Email != nil && *student.Email != "" {
		addresses = append(addresses, *student.Email)
	}
	if recipients.Contains(models.AlertRecipientAdmin) && s.adminAddress != "" {
		addresses = append(addresses, s.adminAddress)
	}
	return addresses
}

// deliverAlert sends sequentially with the configured pacing. Returns the
// number of successful sends and stamps the alert when that number is
// positive.
func (s *AlertService) deliverAlert(ctx context.Context, addresses []string, student *models.Student, alert *models.Alert) int {
	if s.dispatcher == nil {
		return 0
	}

	subject := fmt.Sprintf("Attendance alert: %s", student.FullName)
	sent := 0
	for i, to := range addresses {
		if i > 0 && s.sendThrottle > 0 {
			time.Sleep(s.sendThrottle)
		}
		if err := s.dispatcher.Send(ctx, to, subject, alert.Message); err != nil {
			s.logger.Warn("alert notification failed",
				zap.String("alert_id", alert.ID), zap.String("to", to), zap.Error(err))
			if s.metrics != nil {
				s.metrics.ObserveNotification(false)
			}
			continue
		}
		sent++
		if s.metrics != nil {
			s.metrics.ObserveNotification(true)
		}
	}

	if sent > 0 {
		now := time.Now().UTC()
		if err := s.alerts.MarkNotified(ctx, alert.ID, now); err != nil {
			s.logger.Warn("failed to stamp alert as notified", zap.String("alert_id", alert.ID), zap.Error(err))
		} else {
			alert.NotificationSent = true
			alert.NotifiedAt = &now
		}
	}
	return sent
}

// LowAttendanceReport lists students below the given rate without creating
// alerts. The report uses a smaller sample floor than the scanner so early
// term data is visible to staff before the engine starts alerting on it.
func (s *AlertService) LowAttendanceReport(ctx context.Context, filter models.StudentsSummaryFilter, threshold float64) ([]models.StudentsSummaryRow, error) {
	if threshold <= 0 {
		cfg, err := s.Config(ctx)
		if err != nil {
			return nil, err
		}
		threshold = cfg.LowAttendanceThreshold
	}

	rows, err := s.attendance.StatusCountsByStudent(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate students attendance")
	}

	out := []models.StudentsSummaryRow{}
	for _, row := range rows {
		if row.Total < models.ReportSampleFloor {
			continue
		}
		rate := rateOf(row.Present+row.Late+row.Excused, row.Total)
		if rate >= threshold {
			continue
		}
		out = append(out, models.StudentsSummaryRow{
			StudentAggregateRow: row,
			AttendanceRate:      rate,
		})
	}
	return out, nil
}
