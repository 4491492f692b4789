package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/handler"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Submission *handler.SubmissionHandler
	Monitor    *handler.MonitorHandler
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── Student (exam taking) ─────────────────────────────────────────
	student := router.Group("/api/v1/student")
	student.Use(middleware.RequireStudentJWT(authService))
	{
		student.POST("/exams/:exam_id/start", handlers.Submission.Start)

		submissions := student.Group("/submissions/:id")
		submissions.POST("/resume", handlers.Submission.Resume)
		submissions.GET("/questions/:order", handlers.Submission.GetQuestion)
		submissions.PUT("/answers", handlers.Submission.SaveAnswer)
		submissions.PUT("/remaining-time", handlers.Submission.UpdateRemainingTime)
		submissions.POST("/submit", handlers.Submission.Submit)
	}

	// ─── Proctor (WebSocket, token in query) ───────────────────────────
	proctorWS := router.Group("/ws/v1/proctor")
	proctorWS.Use(middleware.RequireProctorWSAuth(authService))
	{
		proctorWS.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExam)
	}

	return router
}
