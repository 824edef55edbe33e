package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/repairdesk/internal/auth"
	"github.com/spec-kit/repairdesk/internal/config"
	apperrors "github.com/spec-kit/repairdesk/pkg/util/errorutil"
)

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	hash, err := auth.HashPassword("hunter2", bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "s", AccessTokenTTLMinutes: 5, AdminPasswordHash: hash}}
	svc := NewAuthService(cfg, zap.NewNop())

	t.Run("correct password", func(t *testing.T) {
		token, _, err := svc.Login(ctx, "hunter2")
		require.NoError(t, err)
		claims, err := svc.TokenManager().ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, claims.Role)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "hunter3")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	})

	t.Run("no hash configured", func(t *testing.T) {
		bare := NewAuthService(config.Config{Auth: config.AuthConfig{JWTSecret: "s"}}, zap.NewNop())
		_, _, err := bare.Login(ctx, "")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	})
}
