package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/sma-attend-api/internal/models"
)

// MetricsService exposes the engine's operational counters. All service
// callers treat it as optional; a nil receiver is never dereferenced by the
// callers themselves.
type MetricsService struct {
	marksTotal         *prometheus.CounterVec
	conflictsTotal     prometheus.Counter
	alertsTotal        *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	scanDuration       prometheus.Histogram
}

// NewMetricsService registers the engine collectors on the given registerer.
func NewMetricsService(reg prometheus.Registerer) *MetricsService {
	m := &MetricsService{
		marksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_marks_total",
			Help: "Attendance records created, by status.",
		}, []string{"status"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_mark_conflicts_total",
			Help: "Marks rejected because the uniqueness key was occupied.",
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_alerts_created_total",
			Help: "Alerts created by the scanner, by type.",
		}, []string{"type"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_notifications_total",
			Help: "Notification send attempts, by outcome.",
		}, []string{"outcome"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attendance_alert_scan_duration_seconds",
			Help:    "Wall time of a full alert scan.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.marksTotal, m.conflictsTotal, m.alertsTotal, m.notificationsTotal, m.scanDuration)
	return m
}

// ObserveMark counts a successful mark.
func (m *MetricsService) ObserveMark(status models.AttendanceStatus) {
	m.marksTotal.WithLabelValues(string(status)).Inc()
}

// ObserveConflict counts a rejected duplicate mark.
func (m *MetricsService) ObserveConflict() {
	m.conflictsTotal.Inc()
}

// ObserveAlert counts a created alert.
func (m *MetricsService) ObserveAlert(alertType models.AlertType) {
	m.alertsTotal.WithLabelValues(string(alertType)).Inc()
}

// ObserveNotification counts a notification attempt.
func (m *MetricsService) ObserveNotification(ok bool) {
	outcome := "sent"
	if !ok {
		outcome = "failed"
	}
	m.notificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveScanDuration records a completed scan's wall time.
func (m *MetricsService) ObserveScanDuration(d time.Duration) {
	m.scanDuration.Observe(d.Seconds())
}
