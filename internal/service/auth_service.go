package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/auth"
	"github.com/spec-kit/repairdesk/internal/config"
	apperrors "github.com/spec-kit/repairdesk/pkg/util/errorutil"
)

// adminSubject is the token subject of the single admin API principal.
const adminSubject = "admin"

// AuthService issues admin API tokens.
type AuthService struct {
	tokenMgr     *auth.TokenManager
	passwordHash string
	logger       *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		tokenMgr:     auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		passwordHash: cfg.Auth.AdminPasswordHash,
		logger:       logger,
	}
}

// Login checks the admin password and returns a bearer token.
func (s *AuthService) Login(_ context.Context, password string) (string, time.Time, error) {
	if err := auth.ComparePassword(s.passwordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordNotConfigured) {
			s.logger.Warn("admin login attempted without a configured password hash")
		}
		return "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(adminSubject, auth.RoleAdmin)
	if err != nil {
		return "", time.Time{}, apperrors.NewInternalError(err)
	}
	s.logger.Info("admin token issued", zap.Time("expires_at", exp))
	return token, exp, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
