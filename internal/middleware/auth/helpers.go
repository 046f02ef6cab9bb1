package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/govlink/govlink/internal/models"
	"github.com/govlink/govlink/internal/tokens"
)

const (
	ctxPrincipal = "principal"
	ctxClaims    = "claims"
)

// AccessToken reads the partition's access cookie, then falls back to an
// Authorization: Bearer header.
func AccessToken(c echo.Context, cookieName string) string {
	if ck, err := c.Cookie(cookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func setPrincipal(c echo.Context, pr *models.Principal, claims *tokens.Claims) {
	c.Set(ctxPrincipal, pr)
	c.Set(ctxClaims, claims)
}

func Principal(c echo.Context) (*models.Principal, bool) {
	pr, ok := c.Get(ctxPrincipal).(*models.Principal)
	return pr, ok && pr != nil
}

func Claims(c echo.Context) (*tokens.Claims, bool) {
	cl, ok := c.Get(ctxClaims).(*tokens.Claims)
	return cl, ok && cl != nil
}
