package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/platform/apperr"
)

// RequireRole returns middleware that checks the session holds one of roles.
// Admins pass every role check.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	denied := fmt.Sprintf("required role: %s", strings.Join(names, " or "))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, ok := SessionFromContext(c.Request().Context())
			if !ok {
				return apperr.HTTP(apperr.Auth(nil))
			}
			if sess.IsAdmin() {
				return next(c)
			}
			for _, r := range roles {
				if sess.Role == r {
					return next(c)
				}
			}
			return apperr.HTTP(apperr.Forbidden(denied))
		}
	}
}
