package auth

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/platform/apperr"
)

type JWTConfig struct {
	Issuer      *Issuer
	Revocations RevocationStore
	// Skipper bypasses authentication; defaults to AuthSkipper.
	Skipper func(c echo.Context) bool
}

var errMissingBearer = errors.New("missing bearer token")

// JWTMiddleware verifies the bearer token and puts the caller's Session on
// the request context. Every failure is the same 401.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	skip := cfg.Skipper
	if skip == nil {
		skip = AuthSkipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip(c) {
				return next(c)
			}

			tokenStr, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return apperr.HTTP(apperr.Auth(errMissingBearer))
			}

			sess, err := cfg.Issuer.Parse(tokenStr)
			if err != nil {
				return apperr.HTTP(err)
			}

			if cfg.Revocations != nil {
				revoked, err := cfg.Revocations.IsRevoked(c.Request().Context(), sess.TokenID)
				if err != nil {
					return apperr.HTTP(apperr.Persistence(err))
				}
				if revoked {
					return apperr.HTTP(apperr.Auth(nil))
				}
			}

			c.Set("user_id", sess.UserID.String())
			c.Set("role", string(sess.Role))
			c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), sess)))
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
