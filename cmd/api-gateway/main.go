package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sma-attend-api/api/swagger"
	"github.com/noah-isme/sma-attend-api/internal/handler"
	"github.com/noah-isme/sma-attend-api/internal/middleware"
	"github.com/noah-isme/sma-attend-api/internal/models"
	"github.com/noah-isme/sma-attend-api/internal/repository"
	"github.com/noah-isme/sma-attend-api/internal/service"
	"github.com/noah-isme/sma-attend-api/pkg/cache"
	"github.com/noah-isme/sma-attend-api/pkg/config"
	"github.com/noah-isme/sma-attend-api/pkg/database"
	"github.com/noah-isme/sma-attend-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-attend-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-attend-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-attend-api/pkg/notify"
	"github.com/noah-isme/sma-attend-api/pkg/scheduler"
)

// @title SMA Attendance API
// @version 0.1.0
// @description Attendance marking, summaries and alerting engine
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Summaries degrade to uncached reads without Redis.
		logr.Sugar().Warnw("redis unavailable, summary caching disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	attendanceRepo := repository.NewAttendanceRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	alertConfigRepo := repository.NewAlertConfigRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	var dispatcher notify.Dispatcher
	var queue *notify.Queue
	if cfg.Notifier.Enabled {
		smtp := notify.NewSMTPDispatcher(
			cfg.Notifier.SMTPHost, cfg.Notifier.SMTPPort,
			cfg.Notifier.SMTPUser, cfg.Notifier.SMTPPassword,
			cfg.Notifier.FromAddress)
		queue = notify.NewQueue(smtp, notify.QueueConfig{
			Workers:    cfg.Notifier.Workers,
			BufferSize: cfg.Notifier.BufferSize,
			MaxRetries: cfg.Notifier.MaxRetries,
			RetryDelay: cfg.Notifier.RetryDelay,
			Suppressed: cfg.Notifier.Suppressed,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()
		dispatcher = queue
	}

	metrics := service.NewMetricsService(prometheus.DefaultRegisterer)
	validate := validator.New()

	attendanceSvc := service.NewAttendanceService(
		attendanceRepo, studentRepo, subjectRepo, enrollmentRepo, activityRepo,
		dispatcher, metrics, validate, logr, cfg.Notifier.SendThrottle)
	summarySvc := service.NewSummaryService(
		attendanceRepo, enrollmentRepo, subjectRepo, studentRepo,
		cacheRepo, cfg.Summaries.CacheTTL, logr)
	alertSvc := service.NewAlertService(
		alertRepo, alertConfigRepo, studentRepo, attendanceRepo, activityRepo,
		dispatcher, metrics, validate, logr,
		cfg.Notifier.AdminAddress, cfg.Notifier.SendThrottle)
	exportSvc := service.NewExportService(summarySvc)

	var scanScheduler *scheduler.Scheduler
	if cfg.Alerts.ScanEnabled {
		scanScheduler = scheduler.New(func(ctx context.Context) error {
			_, err := alertSvc.Scan(ctx)
			return err
		}, cfg.Alerts.ScanAt, cfg.Alerts.Timezone, nil, logr)
		scanScheduler.Start(ctx)
		defer scanScheduler.Stop()
	}

	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	summaryHandler := handler.NewSummaryHandler(summarySvc)
	alertHandler := handler.NewAlertHandler(alertSvc)
	reportHandler := handler.NewReportHandler(exportSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWTAuth(cfg.JWT.Secret))
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	attendance := api.Group("/attendance")
	{
		attendance.POST("", attendanceHandler.Mark)
		attendance.POST("/bulk", attendanceHandler.BulkMark)
		attendance.GET("", attendanceHandler.List)
		attendance.GET("/:id", attendanceHandler.Get)
		attendance.PATCH("/:id", attendanceHandler.Update)
		attendance.DELETE("/:id", adminOnly, attendanceHandler.Delete)
	}

	summaries := api.Group("/summaries")
	{
		summaries.GET("/daily", summaryHandler.Daily)
		summaries.GET("/subjects/:id", summaryHandler.Subject)
		summaries.GET("/students", summaryHandler.Students)
		summaries.GET("/students/:id", summaryHandler.Student)
	}

	alerts := api.Group("/alerts")
	{
		alerts.GET("", alertHandler.List)
		alerts.POST("/scan", adminOnly, alertHandler.Scan)
		alerts.POST("/acknowledge", alertHandler.AcknowledgeMany)
		alerts.POST("/:id/acknowledge", alertHandler.Acknowledge)
		alerts.POST("/:id/notify", alertHandler.Notify)
		alerts.DELETE("/:id", adminOnly, alertHandler.Dismiss)
		alerts.GET("/config", alertHandler.Config)
		alerts.PUT("/config", adminOnly, alertHandler.UpdateConfig)
		alerts.GET("/reports/low-attendance", alertHandler.LowAttendanceReport)
	}

	reports := api.Group("/reports")
	{
		reports.GET("/daily", reportHandler.Daily)
		reports.GET("/students", reportHandler.Students)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
