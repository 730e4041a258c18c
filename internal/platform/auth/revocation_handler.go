package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/platform/apperr"
)

// RegisterLogoutRoute mounts POST /logout, which revokes the presented token.
func RegisterLogoutRoute(g *echo.Group, store RevocationStore) {
	g.POST("/logout", handleLogout(store), RequireRole(RoleDoctor, RolePatient, RoleAdmin))
}

func handleLogout(store RevocationStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := RequireSession(c.Request().Context())
		if err != nil {
			return apperr.HTTP(err)
		}
		if err := store.Revoke(c.Request().Context(), sess.TokenID, sess.ExpiresAt); err != nil {
			return apperr.HTTP(apperr.Persistence(err))
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "Logged out"})
	}
}
