package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/govlink/govlink/internal/apperr"
	"github.com/govlink/govlink/internal/logging"
)

// RequireRole must run after RequireLogin. The role comes from the stored
// principal, not the token, so a demotion takes effect immediately.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			pr, ok := Principal(c)
			if !ok {
				return apperr.InvalidToken(apperr.MsgInvalidAccessToken, nil)
			}
			if _, ok := allowed[pr.Role]; !ok {
				logging.FromContext(c.Request().Context()).Warn("role_denied", "principal_id", pr.ID, "role", pr.Role)
				return apperr.Forbidden("Insufficient permissions")
			}
			return next(c)
		}
	}
}
