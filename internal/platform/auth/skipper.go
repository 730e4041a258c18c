package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths are reachable without a bearer token: liveness, registration
// and the three login endpoints.
var publicPaths = map[string]bool{
	"/health":               true,
	"/api/register":         true,
	"/api/login":            true,
	"/api/doctors/register": true,
	"/api/doctors/login":    true,
	"/api/admin/login":      true,
}

const uploadsPrefix = "/uploads/"

// AuthSkipper returns true for requests that skip authentication.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Request().URL.Path)
}

func IsPublicPath(path string) bool {
	return publicPaths[path] || strings.HasPrefix(path, uploadsPrefix)
}
