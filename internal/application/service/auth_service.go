package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/fisarsiv/fisarsiv-api/internal/domain/entity"
	"github.com/fisarsiv/fisarsiv-api/internal/domain/repository"
	"github.com/fisarsiv/fisarsiv-api/pkg/apperror"
	"github.com/fisarsiv/fisarsiv-api/pkg/email"
	"github.com/fisarsiv/fisarsiv-api/pkg/oauth"
	"github.com/fisarsiv/fisarsiv-api/pkg/utils"
)

// AuthService handles authentication-related operations
type AuthService struct {
	userRepo          repository.UserRepository
	passwordResetRepo repository.PasswordResetTokenRepository
	jwtManager        *utils.JWTManager
	emailService      *email.EmailService
	googleOAuth       *oauth.GoogleOAuthService
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo repository.UserRepository,
	passwordResetRepo repository.PasswordResetTokenRepository,
	jwtManager *utils.JWTManager,
	emailService *email.EmailService,
	googleOAuth *oauth.GoogleOAuthService,
) *AuthService {
	return &AuthService{
		userRepo:          userRepo,
		passwordResetRepo: passwordResetRepo,
		jwtManager:        jwtManager,
		emailService:      emailService,
		googleOAuth:       googleOAuth,
	}
}

// LoginInput represents the login input
type LoginInput struct {
	Email    string
	Password string
}

// LoginOutput represents the login output
type LoginOutput struct {
	User         *entity.User
	AccessToken  string
	RefreshToken string
}

// Login authenticates a user and returns tokens
func (s *AuthService) Login(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.ErrInvalidCredentials
	}

	if !utils.CheckPasswordHash(input.Password, user.Password) {
		return nil, apperror.ErrInvalidCredentials
	}

	return s.issueTokens(user)
}

// RegisterInput represents the registration input
type RegisterInput struct {
	Name     string
	Surname  string
	Email    string
	Password string
}

// Register creates a new user account
func (s *AuthService) Register(ctx context.Context, input *RegisterInput) (*entity.User, error) {
	existingUser, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if existingUser != nil {
		return nil, apperror.NewConflictError("Email already registered")
	}

	hashedPassword, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := &entity.User{
		Name:     input.Name,
		Surname:  input.Surname,
		Email:    input.Email,
		Password: hashedPassword,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// RefreshToken generates new tokens from a refresh token
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*LoginOutput, error) {
	userID, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperror.ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.ErrNotFound
	}

	return s.issueTokens(user)
}

// GetCurrentUser returns the current user by ID
func (s *AuthService) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*entity.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.ErrNotFound
	}
	return user, nil
}

// ChangePasswordInput represents the change password input
type ChangePasswordInput struct {
	UserID          uuid.UUID
	CurrentPassword string
	NewPassword     string
}

// ChangePassword changes the user's password
func (s *AuthService) ChangePassword(ctx context.Context, input *ChangePasswordInput) error {
	user, err := s.userRepo.GetByID(ctx, input.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return apperror.ErrNotFound
	}

	if !utils.CheckPasswordHash(input.CurrentPassword, user.Password) {
		return apperror.NewBadRequestError("Current password is incorrect")
	}

	hashedPassword, err := utils.HashPassword(input.NewPassword)
	if err != nil {
		return err
	}

	user.Password = hashedPassword
	return s.userRepo.Update(ctx, user)
}

// ForgotPasswordInput represents the forgot password input
type ForgotPasswordInput struct {
	Email string
}

// ForgotPassword initiates the password reset process. It reports success
// even for unknown addresses to prevent email enumeration.
func (s *AuthService) ForgotPassword(ctx context.Context, input *ForgotPasswordInput) error {
	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil
	}
	if user == nil {
		return nil
	}

	_ = s.passwordResetRepo.DeleteByEmail(ctx, input.Email)

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return err
	}
	token := hex.EncodeToString(tokenBytes)

	resetToken := &entity.PasswordResetToken{
		Email:     input.Email,
		Token:     token,
		ExpiresAt: time.Now().Add(1 * time.Hour),
		Used:      false,
	}
	if err := s.passwordResetRepo.Create(ctx, resetToken); err != nil {
		return err
	}

	return s.emailService.SendPasswordResetEmail(input.Email, token)
}

// ResetPasswordInput represents the reset password input
type ResetPasswordInput struct {
	Email       string
	Token       string
	NewPassword string
}

// ResetPassword resets the user's password using a valid token
func (s *AuthService) ResetPassword(ctx context.Context, input *ResetPasswordInput) error {
	resetToken, err := s.passwordResetRepo.GetByToken(ctx, input.Token)
	if err != nil {
		return err
	}
	if resetToken == nil || resetToken.Email != input.Email || !resetToken.IsValid() {
		return apperror.NewBadRequestError("Invalid or expired reset token")
	}

	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		return err
	}
	if user == nil {
		return apperror.NewBadRequestError("Invalid or expired reset token")
	}

	hashedPassword, err := utils.HashPassword(input.NewPassword)
	if err != nil {
		return err
	}
	user.Password = hashedPassword
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}

	if err := s.passwordResetRepo.MarkAsUsed(ctx, input.Token); err != nil {
		// Password was already changed, so don't fail the call
		return nil
	}
	_ = s.passwordResetRepo.DeleteByEmail(ctx, input.Email)

	return nil
}

// GoogleAuthURL returns the Google consent page URL for the given state.
func (s *AuthService) GoogleAuthURL(state string) (string, error) {
	if !s.googleOAuth.IsConfigured() {
		return "", apperror.NewBadRequestError("Google sign-in is not configured")
	}
	return s.googleOAuth.GetAuthURL(state), nil
}

// LoginWithGoogle exchanges an OAuth authorization code, provisioning an
// account on first sign-in, and returns tokens.
func (s *AuthService) LoginWithGoogle(ctx context.Context, code string) (*LoginOutput, error) {
	token, err := s.googleOAuth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, apperror.NewBadRequestError("Invalid authorization code")
	}

	info, err := s.googleOAuth.GetUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByEmail(ctx, info.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &entity.User{
			Name:       info.GivenName,
			Surname:    info.FamilyName,
			Email:      info.Email,
			Provider:   "google",
			ProviderID: &info.ID,
		}
		if info.Picture != "" {
			user.Photo = &info.Picture
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, err
		}
	}

	return s.issueTokens(user)
}

func (s *AuthService) issueTokens(user *entity.User) (*LoginOutput, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginOutput{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
