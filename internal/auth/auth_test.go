package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/spec-kit/repairdesk/pkg/util/errorutil"
)

func TestTokenManager(t *testing.T) {
	tm := NewTokenManager("secret", 30)

	t.Run("round trip", func(t *testing.T) {
		token, exp, err := tm.GenerateToken("admin", RoleAdmin)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(30*time.Minute), exp, time.Minute)

		claims, err := tm.ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, "admin", claims.Subject)
		assert.Equal(t, RoleAdmin, claims.Role)
	})

	t.Run("other secret rejected", func(t *testing.T) {
		token, _, err := NewTokenManager("other", 30).GenerateToken("admin", RoleAdmin)
		require.NoError(t, err)
		_, err = tm.ParseToken(token)
		assert.Error(t, err)
	})

	t.Run("expired rejected", func(t *testing.T) {
		past := NewTokenManager("secret", 1)
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, _, err := past.GenerateToken("admin", RoleAdmin)
		require.NoError(t, err)
		_, err = tm.ParseToken(token)
		assert.Error(t, err)
	})
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NoError(t, ComparePassword(hash, "s3cret"))
	assert.Error(t, ComparePassword(hash, "wrong"))
	assert.ErrorIs(t, ComparePassword("", "s3cret"), ErrPasswordNotConfigured)
}

func newProtectedApp(tm *TokenManager) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	app.Get("/admin", NewAuthMiddleware(tm).Handle, RequireRole(RoleAdmin), func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		return c.SendString(principal.Subject)
	})
	app.Get("/other", NewAuthMiddleware(tm).Handle, RequireRole("auditor"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	app := newProtectedApp(tm)
	token, _, err := tm.GenerateToken("admin", RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{name: "missing header", path: "/admin", status: fiber.StatusUnauthorized},
		{name: "wrong scheme", path: "/admin", header: "Basic abc", status: fiber.StatusUnauthorized},
		{name: "garbage token", path: "/admin", header: "Bearer abc", status: fiber.StatusUnauthorized},
		{name: "valid", path: "/admin", header: "Bearer " + token, status: fiber.StatusOK},
		{name: "wrong role", path: "/other", header: "Bearer " + token, status: fiber.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
