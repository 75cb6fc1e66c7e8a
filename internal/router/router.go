package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/classcove/tuition-api/internal/handler"
	"github.com/classcove/tuition-api/internal/middleware"
	"github.com/classcove/tuition-api/internal/models"
	"github.com/classcove/tuition-api/internal/service"
	"github.com/classcove/tuition-api/pkg/config"
	"github.com/classcove/tuition-api/pkg/logger"
	corsmiddleware "github.com/classcove/tuition-api/pkg/middleware/cors"
	reqidmiddleware "github.com/classcove/tuition-api/pkg/middleware/requestid"
)

// Handlers bundles the HTTP handlers served by the router.
type Handlers struct {
	Auth         *handler.AuthHandler
	Student      *handler.StudentHandler
	Class        *handler.ClassHandler
	Attendance   *handler.AttendanceHandler
	Payment      *handler.PaymentHandler
	Library      *handler.LibraryHandler
	Notification *handler.NotificationHandler
	Statement    *handler.StatementHandler
}

// New builds the gin engine with all middleware and routes.
func New(cfg *config.Config, logr *zap.Logger, authService *service.AuthService, metrics *service.MetricsService, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	studentOnly := middleware.RequireRoles(models.RoleStudent)
	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleStudent)
	staffOrSelf := middleware.RBAC(string(models.RoleAdmin), string(models.RoleStaff), "SELF")

	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", middleware.JWT(authService), h.Auth.Logout)
		auth.POST("/change-password", middleware.JWT(authService), h.Auth.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), h.Auth.Me)
	}

	students := api.Group("/students")
	{
		students.POST("/register", h.Student.Register)

		protected := students.Group("", middleware.JWT(authService))
		protected.GET("", staff, h.Student.List)
		protected.GET("/:studentId", staffOrSelf, h.Student.Get)
		protected.PUT("/:studentId", staff, h.Student.Update)
		protected.POST("/:studentId/approve", staff, h.Student.Approve)
		protected.GET("/:studentId/enrollments", staffOrSelf, h.Student.Enrollments)
		protected.POST("/:studentId/enrollments", staff, h.Student.Enroll)
		protected.DELETE("/:studentId/enrollments/:classId", staff, h.Student.Unenroll)
		protected.PUT("/:studentId/enrollments/:classId/free", adminOnly, h.Student.SetFreeClass)
	}

	classes := api.Group("/classes", middleware.JWT(authService))
	{
		classes.GET("", anyRole, h.Class.List)
		classes.GET("/:classId", anyRole, h.Class.Get)
		classes.POST("", staff, h.Class.Create)
		classes.PUT("/:classId", staff, h.Class.Update)
		classes.DELETE("/:classId", adminOnly, h.Class.Deactivate)
		classes.GET("/:classId/students", staff, h.Class.Students)
		classes.GET("/:classId/monitors", staff, h.Class.Monitors)
		classes.POST("/:classId/monitors", staff, h.Class.AddMonitor)
		classes.DELETE("/:classId/monitors/:studentId", staff, h.Class.RemoveMonitor)
	}

	attendance := api.Group("/attendance", middleware.JWT(authService))
	{
		attendance.POST("/sheets", anyRole, h.Attendance.CreateSheet)
		attendance.GET("/sheets/:sheetId", anyRole, h.Attendance.GetSheet)
		attendance.PUT("/sheets/:sheetId/entries", anyRole, h.Attendance.Mark)
		attendance.PUT("/sheets/:sheetId/entries/bulk", anyRole, h.Attendance.BulkMark)
		attendance.POST("/sheets/:sheetId/finalize", staff, h.Attendance.Finalize)
		attendance.GET("/classes/:classId/sheets", anyRole, h.Attendance.SheetsForMonth)
		attendance.GET("/students/:studentId/classes/:classId", staffOrSelf, h.Attendance.StudentHistory)
	}

	payments := api.Group("/payments", middleware.JWT(authService))
	{
		payments.GET("/student/:classId/:year", studentOnly, h.Payment.StudentYear)
		payments.POST("/submit", studentOnly, h.Payment.Submit)
		payments.PUT("/:paymentId", studentOnly, h.Payment.UpdateOwn)
		payments.GET("/admin/:classId/:year/:month", staff, h.Payment.AdminMonth)
		payments.PUT("/admin/:paymentId/process", staff, h.Payment.Process)
		payments.PUT("/admin/bulk-process", staff, h.Payment.BulkProcess)
	}

	admin := api.Group("/admin", middleware.JWT(authService), staff)
	{
		admin.GET("/payment-requests", h.Payment.AdminList)
		admin.PUT("/payment-requests/:paymentId/status", h.Payment.UpdateStatus)
		admin.DELETE("/payment-requests/:paymentId", h.Payment.Delete)
	}

	library := api.Group("/library", middleware.JWT(authService))
	{
		library.GET("/categories", anyRole, h.Library.Categories)
		library.GET("/:category/folders", anyRole, h.Library.ListFolders)
		library.POST("/:category/folders", staff, h.Library.CreateFolder)
		library.PUT("/:category/folders/:folderId", staff, h.Library.UpdateFolder)
		library.DELETE("/:category/folders/:folderId", staff, h.Library.DeleteFolder)
		library.GET("/:category/folders/:folderId/files", anyRole, h.Library.ListFiles)
		library.POST("/:category/folders/:folderId/files", staff, h.Library.CreateFile)
		library.PUT("/:category/folders/:folderId/files/:fileId", staff, h.Library.UpdateFile)
		library.DELETE("/:category/folders/:folderId/files/:fileId", staff, h.Library.DeleteFile)
	}

	notifications := api.Group("/notifications", middleware.JWT(authService))
	{
		notifications.GET("", anyRole, h.Notification.List)
		notifications.POST("/:notificationId/read", anyRole, h.Notification.MarkRead)
		notifications.POST("/read-all", anyRole, h.Notification.MarkAllRead)
	}

	statements := api.Group("/statements", middleware.JWT(authService))
	{
		statements.GET("/students/:studentId/classes/:classId/:year", staffOrSelf, h.Statement.StudentYear)
		statements.GET("/classes/:classId/:year/:month", staff, h.Statement.ClassMonth)
	}

	return r
}
