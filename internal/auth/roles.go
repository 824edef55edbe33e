package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/repairdesk/pkg/util/errorutil"
)

// Role is the privilege carried by a token.
type Role string

// RoleAdmin is the only role the admin API issues.
const RoleAdmin Role = "admin"

// RequireRole ensures the authenticated principal holds role.
func RequireRole(role Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.Role != role {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
