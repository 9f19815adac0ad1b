package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/provalia/cbt-backend/internal/config"
	"github.com/provalia/cbt-backend/internal/handler"
	"github.com/provalia/cbt-backend/internal/middleware"
	"github.com/provalia/cbt-backend/internal/response"
	"github.com/provalia/cbt-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Exam    *handler.ExamHandler
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth Group (Public) ────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/candidate/login", handlers.Auth.CandidateLogin)
		auth.POST("/proctor/login", handlers.Auth.ProctorLogin)

		auth.GET("/candidate/me", middleware.RequireCandidateJWT(authService), handlers.Auth.Me)
		auth.GET("/proctor/me", middleware.RequireProctorJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Proctor Group (Exam Authoring) ─────────────────────────────
	proctorAPI := router.Group("/api/v1/exams")
	proctorAPI.Use(middleware.RequireProctorJWT(authService))
	{
		proctorAPI.POST("", handlers.Exam.Create)
		proctorAPI.GET("", handlers.Exam.List)
		proctorAPI.GET("/:exam_id", handlers.Exam.Get)
		proctorAPI.PUT("/:exam_id/sections", handlers.Exam.ReplaceSections)
		proctorAPI.PUT("/:exam_id/questions", handlers.Exam.ReplaceQuestions)
		proctorAPI.POST("/:exam_id/publish", handlers.Exam.Publish)
		proctorAPI.POST("/:exam_id/archive", handlers.Exam.Archive)
	}

	// Proctor read access to persisted attempts, scoped by exam authorship.
	proctorAttempts := router.Group("/api/v1/attempts")
	proctorAttempts.Use(middleware.RequireProctorJWT(authService))
	{
		proctorAttempts.GET("/:attempt_id/review", handlers.Attempt.Review)
	}

	// ─── 3. Candidate Group (Attempt Lifecycle) ────────────────────────
	candidateAPI := router.Group("/api/v1")
	candidateAPI.Use(middleware.RequireCandidateJWT(authService))
	{
		candidateAPI.GET("/exams/:exam_id/payload", handlers.Exam.Payload)
		candidateAPI.POST("/exams/:exam_id/join", handlers.Attempt.Join)

		candidateAPI.GET("/attempts/:attempt_id", handlers.Attempt.State)
		candidateAPI.GET("/attempts/:attempt_id/summary", handlers.Attempt.Summary)
		candidateAPI.GET("/attempts/:attempt_id/log", handlers.Attempt.Log)
		candidateAPI.POST("/attempts/:attempt_id/navigate", handlers.Attempt.Navigate)
		candidateAPI.PUT("/attempts/:attempt_id/answer", handlers.Attempt.Buffer)
		candidateAPI.POST("/attempts/:attempt_id/answer/save", handlers.Attempt.Save)
		candidateAPI.POST("/attempts/:attempt_id/answer/clear", handlers.Attempt.Clear)
		candidateAPI.POST("/attempts/:attempt_id/mark", handlers.Attempt.ToggleMark)
		candidateAPI.POST("/attempts/:attempt_id/pause", handlers.Attempt.Pause)
		candidateAPI.POST("/attempts/:attempt_id/resume", handlers.Attempt.Resume)
		candidateAPI.POST("/attempts/:attempt_id/submit", handlers.Attempt.Submit)
	}

	// ─── 4. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService))
	{
		ws.GET("/attempts/:attempt_id/clock", handlers.WS.ClockStream)
	}

	return router
}
