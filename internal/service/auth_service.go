package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"graphrag-gateway/internal/dto"
	"graphrag-gateway/internal/entity"
	"graphrag-gateway/internal/mapper"
	"graphrag-gateway/internal/pkg/logger"
	"graphrag-gateway/internal/pkg/serverutils"
	"graphrag-gateway/internal/repository/contract"
	"graphrag-gateway/internal/repository/specification"
	"graphrag-gateway/pkg/authtoken"
	"graphrag-gateway/pkg/events"

	"golang.org/x/crypto/bcrypt"
)

const (
	LoginResultSuccess = "success"
	LoginResultFailure = "failure"
	LoginResultLocked  = "locked"
)

type IAuthService interface {
	Login(ctx context.Context, req *dto.LoginRequest, ipAddress string) (*dto.LoginResponse, error)
	Refresh(ctx context.Context, req *dto.RefreshRequest) (*dto.TokenResponse, error)
	// Logout is stateless: tokens stay valid until they expire.
	Logout(ctx context.Context) *dto.MessageResponse
}

type AuthSettings struct {
	Secret         []byte
	AccessTTL      int64
	MaxAttempts    int
	LockoutWindow  time.Duration
	OnLoginOutcome func(result string)
}

type authService struct {
	users     contract.UserRepository
	attempts  contract.LoginAttemptRepository
	codec     *authtoken.Codec
	settings  AuthSettings
	publisher IPublisherService
	logger    logger.ILogger
	mapper    *mapper.UserMapper
	now       func() time.Time
}

func NewAuthService(
	users contract.UserRepository,
	attempts contract.LoginAttemptRepository,
	codec *authtoken.Codec,
	settings AuthSettings,
	publisher IPublisherService,
	log logger.ILogger,
) IAuthService {
	if settings.AccessTTL <= 0 {
		settings.AccessTTL = authtoken.DefaultAccessTTLSeconds
	}
	return &authService{
		users:     users,
		attempts:  attempts,
		codec:     codec,
		settings:  settings,
		publisher: publisher,
		logger:    log,
		mapper:    mapper.NewUserMapper(),
		now:       time.Now,
	}
}

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest, ipAddress string) (*dto.LoginResponse, error) {
	attemptKey := strings.ToLower(req.Username)

	if s.settings.MaxAttempts > 0 {
		failures, err := s.attempts.Failures(ctx, attemptKey)
		if err != nil {
			s.logger.Warn("AuthService", "Login attempt store unavailable, skipping throttle", map[string]interface{}{
				"error": err,
			})
		} else if failures >= s.settings.MaxAttempts {
			s.observe(LoginResultLocked)
			return nil, serverutils.TooManyRequests("Too many failed login attempts, try again later")
		}
	}

	user, err := s.users.FindOne(ctx,
		specification.ByUsername{Username: req.Username},
		specification.ActiveUsers{},
	)
	if err != nil {
		return nil, serverutils.Internal(err)
	}
	if user == nil {
		return nil, s.failLogin(ctx, attemptKey, req.Username, ipAddress)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, s.failLogin(ctx, attemptKey, req.Username, ipAddress)
		}
		return nil, serverutils.Internal(err)
	}

	if s.settings.MaxAttempts > 0 {
		if err := s.attempts.Reset(ctx, attemptKey); err != nil {
			s.logger.Warn("AuthService", "Failed to reset login attempts", map[string]interface{}{
				"error": err,
			})
		}
	}

	if err := s.users.TouchLastLogin(ctx, user.Id, s.now().UTC()); err != nil {
		return nil, serverutils.Internal(err)
	}

	tokens, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	s.observe(LoginResultSuccess)
	s.publisher.Publish(ctx, events.New(events.TypeUserLogin, map[string]interface{}{
		"user_id":    user.Id.String(),
		"username":   user.Username,
		"ip_address": ipAddress,
	}))

	return &dto.LoginResponse{
		TokenResponse: *tokens,
		User:          s.mapper.ToResponse(user),
	}, nil
}

func (s *authService) failLogin(ctx context.Context, attemptKey, username, ipAddress string) error {
	if s.settings.MaxAttempts > 0 {
		if _, err := s.attempts.RecordFailure(ctx, attemptKey, s.settings.LockoutWindow); err != nil {
			s.logger.Warn("AuthService", "Failed to record login failure", map[string]interface{}{
				"error": err,
			})
		}
	}
	s.observe(LoginResultFailure)
	s.publisher.Publish(ctx, events.New(events.TypeLoginFailed, map[string]interface{}{
		"username":   username,
		"ip_address": ipAddress,
	}))
	return serverutils.Unauthorized()
}

func (s *authService) Refresh(ctx context.Context, req *dto.RefreshRequest) (*dto.TokenResponse, error) {
	claims, err := s.codec.Verify(req.RefreshToken, s.settings.Secret)
	if err != nil {
		s.logger.Info("AuthService", "Refresh token rejected", map[string]interface{}{
			"reason": err.Error(),
		})
		return nil, serverutils.Unauthorized()
	}

	user, err := s.users.FindOne(ctx,
		specification.ByID{ID: claims.UserID()},
		specification.ActiveUsers{},
	)
	if err != nil {
		return nil, serverutils.Internal(err)
	}
	if user == nil {
		return nil, serverutils.Unauthorized()
	}

	tokens, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.New(events.TypeTokenRefreshed, map[string]interface{}{
		"user_id": user.Id.String(),
	}))
	return tokens, nil
}

func (s *authService) Logout(ctx context.Context) *dto.MessageResponse {
	return &dto.MessageResponse{Message: "Logged out successfully"}
}

func (s *authService) issue(user *entity.User) (*dto.TokenResponse, error) {
	pair, err := s.codec.IssuePair(user.Id, user.Username, string(user.Role), s.settings.Secret, s.settings.AccessTTL)
	if err != nil {
		return nil, serverutils.Internal(err)
	}
	return &dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

func (s *authService) observe(result string) {
	if s.settings.OnLoginOutcome != nil {
		s.settings.OnLoginOutcome(result)
	}
}
