package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists routes reachable without a bearer token.
var publicPaths = map[string]bool{
	"/health":           true,
	"/health/db":        true,
	"/api/auth/signup":  true,
	"/api/auth/login":   true,
	"/api/openapi.json": true,
	"/api/docs":         true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
