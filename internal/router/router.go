package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/handler"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	Stream  *handler.StreamHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// Attempt writes and the stream reject guests at the edge. limiter may be
// nil to disable rate limiting of attempt writes.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.GinMode != gin.TestMode {
		router.Use(gin.Logger())
	}

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.NoStore(),
		middleware.Brotli(),
	)

	writes := []gin.HandlerFunc{middleware.RejectGuests()}
	if limiter != nil {
		writes = append(writes, limiter.Middleware())
	}
	with := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, writes...), h)
	}

	exam := studentAPI.Group("/exams/:exam_id")
	{
		exam.GET("/attempt", handlers.Attempt.Open)
		exam.POST("/attempt/start", with(handlers.Attempt.Start)...)
		exam.POST("/attempt/answers", with(handlers.Attempt.Answer)...)
		exam.POST("/attempt/review", with(handlers.Attempt.ToggleReview)...)
		exam.POST("/attempt/paginate", with(handlers.Attempt.Paginate)...)
		exam.POST("/attempt/submit", with(handlers.Attempt.Submit)...)
		exam.GET("/result", handlers.Attempt.Result)
		exam.GET("/rank", handlers.Attempt.Rank)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService), middleware.RejectGuests())
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.Stream.ExamStream)
	}

	return router
}
