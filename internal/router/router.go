package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/handler"
	"github.com/stemsi/testplatform-backend/internal/middleware"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/response"
	"github.com/stemsi/testplatform-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Session *handler.SessionHandler
	Admin   *handler.AdminHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds the background work of the rate limiters.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:       middleware.DefaultBrotliConfig.Quality,
		MinLength:     middleware.DefaultBrotliConfig.MinLength,
		ExcludedPaths: []string{"/ws/"},
	}))

	router.GET("/health", handlers.System.Health)

	authLimiter := middleware.NewRateLimiter(ctx, 30, time.Minute, middleware.ByClientIP)
	warningLimiter := middleware.NewRateLimiter(ctx, 60, time.Minute, middleware.ByUser)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)
		auth.GET("/me", middleware.RequireJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Student Group (JWT + test-taking capability) ───────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireJWT(authService),
		middleware.RequireCapability(model.CapTakeTests),
		middleware.RequireActiveAccount(authService),
		middleware.NoStore(),
	)
	{
		studentAPI.POST("/tests/:test_id/sessions", handlers.Session.StartSession)
		studentAPI.GET("/sessions", handlers.Session.ListSessions)
		studentAPI.GET("/sessions/:session_id", handlers.Session.GetSession)
		studentAPI.PATCH("/sessions/:session_id/answers", handlers.Session.UpdateAnswers)
		studentAPI.POST("/sessions/:session_id/complete", handlers.Session.CompleteSession)
		studentAPI.POST("/sessions/:session_id/warnings", warningLimiter.Middleware(), handlers.Session.LogWarning)
	}

	// ─── 3. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireJWT(authService),
		middleware.RequireCapability(model.CapTakeTests),
		middleware.RequireActiveAccount(authService),
	)
	{
		ws.GET("/student/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	// ─── 4. Admin Group (JWT + capabilities) ───────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireJWT(authService), middleware.NoStore())
	{
		adminAPI.POST("/sessions/sweep",
			middleware.RequireCapability(model.CapSweepSessions),
			handlers.Admin.SweepSessions,
		)
		adminAPI.POST("/sessions/:session_id/expire",
			middleware.RequireCapability(model.CapSweepSessions),
			handlers.Admin.ExpireSession,
		)
		adminAPI.GET("/sessions/:session_id/warnings",
			middleware.RequireCapability(model.CapMonitorTests),
			handlers.Admin.ListWarnings,
		)
		adminAPI.GET("/tests/:test_id/monitor",
			middleware.RequireCapability(model.CapMonitorTests),
			handlers.Monitor.MonitorTestSSE,
		)
		adminAPI.GET("/system/metrics",
			middleware.RequireCapability(model.CapSweepSessions),
			handlers.System.Metrics,
		)
	}

	return router
}
