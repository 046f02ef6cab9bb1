package auth

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/govlink/govlink/internal/apperr"
	"github.com/govlink/govlink/internal/models"
	"github.com/govlink/govlink/internal/partition"
	"github.com/govlink/govlink/internal/tokens"
)

type Authenticator interface {
	Partition() partition.Config
	Authenticate(ctx context.Context, accessToken string) (*models.Principal, *tokens.Claims, error)
}

// RequireLogin admits requests carrying a valid access token for the
// authenticator's partition whose principal passes the status gate.
func RequireLogin(a Authenticator) echo.MiddlewareFunc {
	cookie := a.Partition().AccessCookie
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := AccessToken(c, cookie)
			if raw == "" {
				return apperr.InvalidToken(apperr.MsgInvalidAccessToken, nil)
			}
			pr, claims, err := a.Authenticate(c.Request().Context(), raw)
			if err != nil {
				return err
			}
			setPrincipal(c, pr, claims)
			return next(c)
		}
	}
}
