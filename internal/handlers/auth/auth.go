package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/govlink/govlink/internal/apperr"
	"github.com/govlink/govlink/internal/logging"
	authmw "github.com/govlink/govlink/internal/middleware/auth"
	"github.com/govlink/govlink/internal/service"
	"github.com/govlink/govlink/internal/tokens"
	"github.com/govlink/govlink/internal/transport"
)

// AuthHandler serves the /auth/{partition} routes for one partition.
type AuthHandler struct {
	Svc *service.AuthService
	// Secure marks cookies Secure; on in production.
	Secure bool
}

func bindError(err error) error {
	return apperr.Validation("Invalid request body", err.Error())
}

func (h *AuthHandler) setSession(c echo.Context, pair *tokens.Pair) {
	p := h.Svc.Partition()
	c.SetCookie(CreateCookie(p.AccessCookie, pair.AccessToken, p.AccessTTL, h.Secure))
	c.SetCookie(CreateCookie(p.RefreshCookie, pair.RefreshToken, p.RefreshTTL, h.Secure))
}

func (h *AuthHandler) clearSession(c echo.Context) {
	p := h.Svc.Partition()
	c.SetCookie(DeleteCookie(p.AccessCookie, h.Secure))
	c.SetCookie(DeleteCookie(p.RefreshCookie, h.Secure))
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return bindError(err)
	}

	res, err := h.Svc.Login(ctx, req)
	if err != nil {
		return err
	}

	h.setSession(c, res.Tokens)
	return c.JSON(http.StatusOK, echo.Map{
		"success":               true,
		"message":               "Login successful",
		"tokens":                res.Tokens,
		h.Svc.Partition().Name: res.Principal.Sanitized(),
	})
}

// Refresh takes the refresh token from the body when given, else from the
// partition's refresh cookie.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req transport.RefreshRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "error", err)
		return bindError(err)
	}
	raw := req.RefreshToken
	if raw == "" {
		if ck, err := c.Cookie(h.Svc.Partition().RefreshCookie); err == nil {
			raw = ck.Value
		}
	}
	if raw == "" {
		return apperr.InvalidToken(apperr.MsgInvalidRefreshToken, nil)
	}

	res, err := h.Svc.Refresh(ctx, raw)
	if err != nil {
		return err
	}

	h.setSession(c, res.Tokens)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Token refreshed",
		"tokens":  res.Tokens,
	})
}

// Me runs behind RequireLogin, which already loaded and gated the principal.
func (h *AuthHandler) Me(c echo.Context) error {
	pr, ok := authmw.Principal(c)
	if !ok {
		return apperr.InvalidToken(apperr.MsgInvalidAccessToken, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":               true,
		"message":               "Profile retrieved",
		h.Svc.Partition().Name: pr.Sanitized(),
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	h.Svc.Logout(ctx, authmw.AccessToken(c, h.Svc.Partition().AccessCookie))
	h.clearSession(c)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Logged out",
	})
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return bindError(err)
	}

	pr, err := h.Svc.Register(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":               true,
		"message":               "Registration successful, check your email to verify the account",
		h.Svc.Partition().Name: pr.Sanitized(),
	})
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	ctx := c.Request().Context()

	var req transport.EmailRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if err := h.Svc.ForgotPassword(ctx, req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "If the email is registered, a password reset link has been sent",
	})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	ctx := c.Request().Context()

	var req transport.ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if err := h.Svc.ResetPassword(ctx, req); err != nil {
		return err
	}
	h.clearSession(c)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Password has been reset",
	})
}

func (h *AuthHandler) RequestVerification(c echo.Context) error {
	ctx := c.Request().Context()

	var req transport.EmailRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if err := h.Svc.RequestEmailVerification(ctx, req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "If the account needs verification, a link has been sent",
	})
}

func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	ctx := c.Request().Context()

	var q transport.VerifyEmailQuery
	if err := c.Bind(&q); err != nil {
		return bindError(err)
	}
	pr, err := h.Svc.VerifyEmail(ctx, q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":               true,
		"message":               "Email verified",
		h.Svc.Partition().Name: pr.Sanitized(),
	})
}
