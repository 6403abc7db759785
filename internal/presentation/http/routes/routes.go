package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fisarsiv/fisarsiv-api/internal/config"
	"github.com/fisarsiv/fisarsiv-api/internal/presentation/http/handler"
	"github.com/fisarsiv/fisarsiv-api/internal/presentation/http/middleware"
	"github.com/fisarsiv/fisarsiv-api/pkg/utils"
)

// Handlers holds all the HTTP handlers used for route registration.
type Handlers struct {
	Auth    *handler.AuthHandler
	Receipt *handler.ReceiptHandler
}

// Deps holds shared dependencies needed by the routes.
type Deps struct {
	JWTManager *utils.JWTManager
	Cfg        *config.Config
}

// Setup creates the Gin router and registers all routes.
func Setup(h *Handlers, deps *Deps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(&deps.Cfg.CORS))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": deps.Cfg.App.Name,
		})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Public routes (no authentication required)
		registerAuthRoutes(v1, h)

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(deps.JWTManager))

		// Per-user rate limiter
		rateLimiter := middleware.NewUserRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(deps.Cfg.RateLimit.Requests) / float64(deps.Cfg.RateLimit.Duration),
			BurstSize:         deps.Cfg.RateLimit.Requests,
			CleanupInterval:   5 * time.Minute,
			EntryTTL:          10 * time.Minute,
		})
		protected.Use(rateLimiter.Middleware())

		registerProtectedRoutes(protected, h)
	}

	return router
}

func registerAuthRoutes(v1 *gin.RouterGroup, h *Handlers) {
	auth := v1.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/register", h.Auth.Register)
		auth.POST("/refresh", h.Auth.RefreshToken)
		auth.POST("/forgot-password", h.Auth.ForgotPassword)
		auth.POST("/reset-password", h.Auth.ResetPassword)
		// Google OAuth routes
		auth.GET("/google", h.Auth.GoogleAuthURL)
		auth.POST("/google/callback", h.Auth.GoogleLogin)
	}
}

func registerProtectedRoutes(protected *gin.RouterGroup, h *Handlers) {
	// Auth/Profile routes
	protected.POST("/auth/logout", h.Auth.Logout)
	protected.GET("/profile", h.Auth.GetProfile)
	protected.PUT("/profile/password", h.Auth.ChangePassword)

	// Receipts
	registerReceiptRoutes(protected, h)
}

func registerReceiptRoutes(protected *gin.RouterGroup, h *Handlers) {
	receipts := protected.Group("/receipts")
	{
		receipts.POST("/scan", h.Receipt.Scan)
		receipts.POST("", h.Receipt.Create)
		receipts.GET("", h.Receipt.List)
		receipts.GET("/trash", h.Receipt.ListTrash)
		receipts.DELETE("/trash", h.Receipt.EmptyTrash)
		receipts.POST("/migrate-local", h.Receipt.MigrateLocal)
		receipts.POST("/backfill", h.Receipt.Backfill)
		receipts.GET("/:id", h.Receipt.Get)
		receipts.DELETE("/:id", h.Receipt.Delete)
		receipts.POST("/:id/restore", h.Receipt.Restore)
		receipts.DELETE("/:id/permanent", h.Receipt.HardDelete)
	}
}
