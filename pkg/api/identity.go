package api

import (
	"net/http"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/auth"
)

// contextKeyUser is where the echo JWT middleware stores the parsed token.
const contextKeyUser = "user"

// callerIdentity resolves the authenticated caller from the verified token
// on the request context.
func callerIdentity(c echo.Context) (auth.Identity, error) {
	token, ok := c.Get(contextKeyUser).(*gojwt.Token)
	if !ok {
		return auth.Identity{}, apiError(http.StatusUnauthorized, CodeUnauthenticated, "Missing or invalid token")
	}
	id, err := auth.IdentityFromToken(token)
	if err != nil {
		return auth.Identity{}, apiError(http.StatusUnauthorized, CodeUnauthenticated, "Missing or invalid token")
	}
	return id, nil
}
