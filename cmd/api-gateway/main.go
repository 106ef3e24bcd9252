package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lms-api/api/swagger"
	"github.com/noah-isme/lms-api/internal/handler"
	"github.com/noah-isme/lms-api/internal/middleware"
	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/repository"
	"github.com/noah-isme/lms-api/internal/service"
	"github.com/noah-isme/lms-api/pkg/cache"
	"github.com/noah-isme/lms-api/pkg/config"
	"github.com/noah-isme/lms-api/pkg/database"
	"github.com/noah-isme/lms-api/pkg/jobs"
	"github.com/noah-isme/lms-api/pkg/logger"
	"github.com/noah-isme/lms-api/pkg/mail"
	corsmiddleware "github.com/noah-isme/lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lms-api/pkg/middleware/requestid"
)

// @title LMS API
// @version 1.0.0
// @description Course enrollment, assignment routing and notification delivery.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey TokenAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, running without cache and job locks", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metricsSvc, cfg.Mail.SiteCacheTTL, logr, redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	groupRepo := repository.NewStudentGroupRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	profileRepo := repository.NewStudentProfileRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	atomRepo := repository.NewAtomNotificationRepository(db)
	emailQueueRepo := repository.NewEmailQueueRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	siteRepo := repository.NewSiteRepository(db)
	geoRepo := repository.NewGeoRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.Token.Secret,
		Expiration: cfg.Token.Expiration,
		Issuer:     cfg.Token.Issuer,
	})
	notificationSvc := service.NewNotificationService(courseRepo, assignmentRepo, notificationRepo, atomRepo, userRepo, projectRepo, emailQueueRepo, metricsSvc, logr)
	groupSvc := service.NewStudentGroupService(groupRepo, enrollmentRepo, assignmentRepo, courseRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(courseRepo, profileRepo, userRepo, groupSvc, groupRepo, enrollmentRepo, assignmentRepo, emailQueueRepo, logr)
	reviewerSvc := service.NewReviewerService(assignmentRepo, courseRepo, metricsSvc, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, courseRepo, enrollmentRepo, groupRepo, reviewerSvc, notificationSvc, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, notificationSvc, validate, logr)
	projectSvc := service.NewProjectService(projectRepo, notificationSvc, validate, logr)
	studentSvc := service.NewStudentService(profileRepo, userRepo, emailQueueRepo, validate, logr)
	geoSvc := service.NewGeoService(geoRepo, cacheSvc, 24*time.Hour, logr)
	exportSvc := service.NewExportService(assignmentRepo, courseRepo, logr)

	scheduler, err := buildScheduler(cfg, logr, redisClient, notificationRepo, atomRepo, emailQueueRepo, notificationSvc, service.NewCachedSiteResolver(siteRepo, cacheSvc, cfg.Mail.SiteCacheTTL, cfg.Mail.DefaultSiteID, logr), metricsSvc)
	if err != nil {
		logr.Fatal("failed to configure dispatch jobs", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	deps := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, cfg.APIPrefix))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, deps)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Docs.Enabled {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	authHandler := handler.NewAuthHandler(authSvc)
	api.POST("/token/", authHandler.Token)

	secured := api.Group("")
	secured.Use(middleware.Auth(authSvc))

	teachers := middleware.RequireRoles(models.RoleTeacher)
	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleCurator)
	students := middleware.RequireRoles(models.RoleStudent)
	curators := middleware.RequireRoles(models.RoleCurator)

	courseHandler := handler.NewCourseHandler(courseSvc)
	secured.GET("/courses/", staff, courseHandler.List)
	secured.POST("/courses/:id/news/", teachers, courseHandler.PostNews)
	secured.POST("/surveys/:id/publish/", teachers, courseHandler.PublishSurvey)

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	secured.GET("/courses/:id/enrollments/", staff, enrollmentHandler.List)
	secured.POST("/courses/:id/enrollments/", students, enrollmentHandler.Enroll)
	secured.DELETE("/courses/:id/enrollments/", students, enrollmentHandler.Leave)
	secured.POST("/admin/courses/:id/enrollments/", curators, enrollmentHandler.AdminEnroll)

	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc, reviewerSvc)
	secured.GET("/courses/:id/assignments/", teachers, assignmentHandler.List)
	secured.POST("/courses/:id/assignments/", teachers, assignmentHandler.Create)
	secured.PUT("/courses/:id/assignments/:aid/students/:sid/", teachers, assignmentHandler.UpdateGrade)
	secured.PATCH("/courses/:id/assignments/:aid/students/:sid/", teachers, assignmentHandler.UpdateGrade)
	secured.PATCH("/assignments/:id/deadline/", teachers, assignmentHandler.ChangeDeadline)
	secured.POST("/personal-assignments/:id/comments/", middleware.RequireRoles(models.RoleStudent, models.RoleTeacher), assignmentHandler.AddComment)
	secured.POST("/personal-assignments/:id/reviewer/", teachers, assignmentHandler.ClaimReviewer)

	exportHandler := handler.NewExportHandler(exportSvc)
	secured.GET("/courses/:id/gradebook/export", teachers, exportHandler.Gradebook)

	groupHandler := handler.NewStudentGroupHandler(groupSvc)
	secured.GET("/student-groups/:id/safe-targets/", teachers, groupHandler.SafeTargets)
	secured.POST("/student-groups/:id/transfer/", teachers, groupHandler.Transfer)
	secured.PUT("/student-groups/:id/", teachers, groupHandler.Update)
	secured.POST("/admin/courses/:id/departments/", curators, groupHandler.AttachDepartment)

	projectHandler := handler.NewProjectHandler(projectSvc)
	secured.POST("/projects/:id/reports/", students, projectHandler.SubmitReport)
	secured.POST("/project-reports/:id/comments/", projectHandler.CommentReport)

	studentHandler := handler.NewStudentHandler(studentSvc)
	secured.PUT("/students/:id/student-id/", curators, studentHandler.UpdateStudentNumber)
	secured.GET("/alumni/", curators, studentHandler.ListAlumni)
	secured.POST("/alumni/promote/", curators, studentHandler.Promote)

	geoHandler := handler.NewGeoHandler(geoSvc)
	secured.GET("/countries/", geoHandler.Countries)
	secured.GET("/cities/", geoHandler.Cities)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildScheduler wires the notification dispatch jobs. It returns nil when
// dispatch is disabled on this replica.
func buildScheduler(
	cfg *config.Config,
	logr *zap.Logger,
	redisClient *redis.Client,
	notifications *repository.NotificationRepository,
	atoms *repository.AtomNotificationRepository,
	queue *repository.EmailQueueRepository,
	reminders *service.NotificationService,
	sites service.SiteResolver,
	metricsSvc *service.MetricsService,
) (*jobs.Scheduler, error) {
	if !cfg.Dispatch.Enabled {
		return nil, nil
	}

	loc, err := time.LoadLocation(cfg.Dispatch.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load dispatch timezone %q: %w", cfg.Dispatch.Timezone, err)
	}
	renderer, err := mail.NewRenderer()
	if err != nil {
		return nil, err
	}

	var (
		smtp     mail.SiteSender
		provider mail.Sender
	)
	if cfg.Mail.Console {
		console := mail.NewConsoleSender(logr.Named("mail"))
		smtp, provider = console, console
	} else {
		smtp = mail.NewSMTPSender(30 * time.Second)
		provider = mail.NewSendGridSender(cfg.SendGrid.APIKey, mail.Address{Name: cfg.SendGrid.FromName, Email: cfg.SendGrid.FromEmail}, cfg.SendGrid.SubjectPrefix)
	}

	dispatch := service.NewDispatchService(
		notifications, atoms, queue, reminders, sites, renderer, smtp, provider,
		cache.NewLocker(redisClient, "lms:"),
		metricsSvc,
		service.DispatchConfig{
			BatchSize:        cfg.Dispatch.BatchSize,
			SendCooldown:     cfg.Dispatch.SendCooldown,
			LockTTL:          cfg.Dispatch.LockTTL,
			Location:         loc,
			AutumnStartMonth: time.Month(cfg.Dispatch.AutumnStartMonth),
			SpringStartMonth: time.Month(cfg.Dispatch.SpringStartMonth),
		},
		logr,
	)

	scheduler := jobs.NewScheduler(loc, logr.Named("scheduler"))
	tasks := dispatch.Tasks(service.DispatchSchedules{
		Assignments: cfg.Dispatch.AssignmentSchedule,
		Projects:    cfg.Dispatch.ProjectSchedule,
		MailQueue:   cfg.Dispatch.MailQueueSchedule,
		Reminders:   cfg.Dispatch.ReminderSchedule,
		Cleanup:     cfg.Dispatch.CleanupSchedule,
	})
	for _, task := range tasks {
		if err := scheduler.Register(task); err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}
