package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/task-service/internal/domain"
	apperrors "github.com/spec-kit/task-service/pkg/util"
)

// RequireRole ensures the authenticated user has one of the allowed roles.
// With no arguments it only requires authentication.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		user, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[user.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
