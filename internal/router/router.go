package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/mocktest-backend/internal/config"
	"github.com/stemsi/mocktest-backend/internal/handler"
	"github.com/stemsi/mocktest-backend/internal/middleware"
	"github.com/stemsi/mocktest-backend/internal/response"
	"github.com/stemsi/mocktest-backend/internal/service"
	"github.com/stemsi/mocktest-backend/internal/session"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Health   *handler.HealthHandler
	MockTest *handler.MockTestHandler
	WS       *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	registry *session.Registry,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", handlers.Health.Health)

	// ─── 1. Catalog (Public, cached) ───────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.Brotli(), middleware.OptionalJWT(authService))
	{
		api.GET("/tests", middleware.CacheControl(300), handlers.MockTest.ListTests)
	}

	// Opening sessions allocates a runner, so it is rate limited per IP.
	openLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 2. Sessions (Optional JWT + ownership) ────────────────────────
	api.POST("/sessions", openLimiter.Middleware(), handlers.MockTest.OpenSession)

	sessions := api.Group("/sessions/:session_id")
	sessions.Use(middleware.LoadSession(registry))
	{
		sessions.GET("", handlers.MockTest.GetSession)
		sessions.DELETE("", handlers.MockTest.CloseSession)
		sessions.POST("/start", handlers.MockTest.StartTest)
		sessions.POST("/choice", handlers.MockTest.SubmitChoice)
		sessions.POST("/text", handlers.MockTest.SubmitText)
		sessions.POST("/advance", handlers.MockTest.Advance)
		sessions.POST("/pause", handlers.MockTest.Pause)
		sessions.POST("/resume", handlers.MockTest.Resume)
		sessions.POST("/finish", handlers.MockTest.Finish)
		sessions.POST("/reset", handlers.MockTest.Reset)
		sessions.GET("/result", handlers.MockTest.GetResult)
	}

	// ─── 3. WebSocket (token via query string) ─────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.OptionalJWT(authService))
	{
		ws.GET("/sessions/:session_id/stream", middleware.LoadSession(registry), handlers.WS.SessionStream)
	}

	return router
}
