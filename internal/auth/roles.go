package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// RequireStaff ensures an admin of any tier is authenticated.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || !principal.Role.IsStaff() {
			return apperrors.NewPermissionDenied("admin role required")
		}
		return c.Next()
	}
}

// RequireOwner ensures the principal holds the OWNER tier.
func RequireOwner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.Role.IsOwner() {
			return apperrors.NewPermissionDenied("owner role required")
		}
		return c.Next()
	}
}
