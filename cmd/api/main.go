package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fisarsiv/fisarsiv-api/internal/application/normalizer"
	"github.com/fisarsiv/fisarsiv-api/internal/application/service"
	"github.com/fisarsiv/fisarsiv-api/internal/config"
	"github.com/fisarsiv/fisarsiv-api/internal/infrastructure/database"
	"github.com/fisarsiv/fisarsiv-api/internal/infrastructure/repository"
	"github.com/fisarsiv/fisarsiv-api/internal/presentation/http/handler"
	"github.com/fisarsiv/fisarsiv-api/internal/presentation/http/routes"
	"github.com/fisarsiv/fisarsiv-api/pkg/email"
	"github.com/fisarsiv/fisarsiv-api/pkg/oauth"
	"github.com/fisarsiv/fisarsiv-api/pkg/utils"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run auto-migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize JWT manager
	jwtManager := utils.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.ExpiryHours,
		cfg.JWT.RefreshExpiryHours,
	)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	passwordResetRepo := repository.NewPasswordResetTokenRepository(db)

	// Purge expired password reset tokens once a day
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := passwordResetRepo.DeleteExpired(context.Background()); err != nil {
				log.Printf("Failed to purge expired reset tokens: %v", err)
			}
		}
	}()

	// Initialize email service
	emailService := email.NewEmailService(email.EmailConfig{
		SMTPHost:     cfg.Email.SMTPHost,
		SMTPPort:     cfg.Email.SMTPPort,
		SMTPUsername: cfg.Email.SMTPUsername,
		SMTPPassword: cfg.Email.SMTPPassword,
		FromName:     cfg.Email.FromName,
		FromEmail:    cfg.Email.FromEmail,
		FrontendURL:  cfg.Email.FrontendURL,
	})

	// Initialize Google OAuth service
	googleOAuthService := oauth.NewGoogleOAuthService(oauth.GoogleOAuthConfig{
		ClientID:           cfg.OAuth.GoogleClientID,
		ClientSecret:       cfg.OAuth.GoogleClientSecret,
		RedirectURL:        cfg.OAuth.GoogleRedirectURL,
		FrontendSuccessURL: cfg.OAuth.FrontendSuccessURL,
		FrontendErrorURL:   cfg.OAuth.FrontendErrorURL,
	})

	// Initialize services
	authService := service.NewAuthService(userRepo, passwordResetRepo, jwtManager, emailService, googleOAuthService)
	receiptService := service.NewReceiptService(receiptRepo, normalizer.New())

	// Initialize handlers
	handlers := &routes.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Receipt: handler.NewReceiptHandler(receiptService),
	}

	// Setup routes
	router := routes.Setup(handlers, &routes.Deps{
		JWTManager: jwtManager,
		Cfg:        cfg,
	})

	// Get port from environment or use default
	port := cfg.App.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting %s server on port %s...", cfg.App.Name, port)
	log.Printf("Environment: %s", cfg.App.Env)

	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
		os.Exit(1)
	}
}
