package main

import (
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	_ "github.com/classcove/tuition-api/api/swagger"
	"github.com/classcove/tuition-api/internal/handler"
	"github.com/classcove/tuition-api/internal/repository"
	"github.com/classcove/tuition-api/internal/router"
	"github.com/classcove/tuition-api/internal/service"
	"github.com/classcove/tuition-api/pkg/cache"
	"github.com/classcove/tuition-api/pkg/config"
	"github.com/classcove/tuition-api/pkg/database"
	"github.com/classcove/tuition-api/pkg/export"
	"github.com/classcove/tuition-api/pkg/logger"
	"github.com/classcove/tuition-api/pkg/mail"
)

// @title Tuition Portal API
// @version 1.0.0
// @description Backend for a tutoring-institute management portal
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("postgres connection failed", "error", err)
	}
	defer db.Close()

	cacheRepo := repository.NewCacheRepository(nil, logr)
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	defer cacheRepo.Close()

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metrics, cfg.Cache.StatusTTL, logr, cfg.Cache.Enabled)

	var sender mail.Sender = mail.NopSender{}
	if cfg.Mail.Enabled && cfg.Mail.SendgridKey != "" {
		sender = mail.NewSendgridSender(cfg.Mail, logr)
	}

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	libraryRepo := repository.NewLibraryRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	authService := service.NewAuthService(userRepo, studentRepo, cfg.JWT, validate, logr)
	notificationService := service.NewNotificationService(notificationRepo, studentRepo, sender, logr, cfg.Notifications.Enabled)
	paymentService := service.NewPaymentService(paymentRepo, attendanceRepo, classRepo, studentRepo, cacheService, metrics, notificationService, validate, logr, cfg.Payments.MinPresentDays)
	studentService := service.NewStudentService(studentRepo, userRepo, classRepo, cacheService, validate, logr)
	classService := service.NewClassService(classRepo, studentRepo, cacheService, validate, logr)
	attendanceService := service.NewAttendanceService(attendanceRepo, classRepo, studentRepo, cacheService, validate, logr)
	libraryService := service.NewLibraryService(libraryRepo, cfg.Library.Categories, validate, logr)
	statementService := service.NewStatementService(paymentService, studentRepo, classRepo, export.NewPDFExporter(), logr)

	handlers := router.Handlers{
		Auth:         handler.NewAuthHandler(authService),
		Student:      handler.NewStudentHandler(studentService),
		Class:        handler.NewClassHandler(classService),
		Attendance:   handler.NewAttendanceHandler(attendanceService),
		Payment:      handler.NewPaymentHandler(paymentService),
		Library:      handler.NewLibraryHandler(libraryService),
		Notification: handler.NewNotificationHandler(notificationService),
		Statement:    handler.NewStatementHandler(statementService),
	}

	engine := router.New(cfg, logr, authService, metrics, handlers)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := engine.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
