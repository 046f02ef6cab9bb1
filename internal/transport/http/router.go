package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	adminhdl "github.com/govlink/govlink/internal/handlers/admin"
	authhdl "github.com/govlink/govlink/internal/handlers/auth"
	"github.com/govlink/govlink/internal/metrics"
	authmw "github.com/govlink/govlink/internal/middleware/auth"
	ratelimitmw "github.com/govlink/govlink/internal/middleware/ratelimit"
	"github.com/govlink/govlink/internal/models"
	"github.com/govlink/govlink/internal/partition"
	"github.com/govlink/govlink/internal/ratelimit"
	"github.com/govlink/govlink/internal/repo"
	"github.com/govlink/govlink/internal/service"
)

type Deps struct {
	Store    repo.Store
	Services []*service.AuthService
	Limiter  ratelimit.Limiter
	// Activity is nil when no search backend is configured; the activity
	// route is then not mounted.
	Activity      adminhdl.ActivitySearcher
	SecureCookies bool
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if err := d.Store.Ping(c.Request().Context()); err != nil {
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	limited := ratelimitmw.Limit(d.Limiter)
	byName := make(map[string]*service.AuthService, len(d.Services))

	for _, svc := range d.Services {
		p := svc.Partition()
		byName[p.Name] = svc
		h := &authhdl.AuthHandler{Svc: svc, Secure: d.SecureCookies}

		g := e.Group("/auth/" + p.Name)
		g.POST("/login", h.Login, limited)
		g.POST("/refresh", h.Refresh, limited)
		g.GET("/me", h.Me, authmw.RequireLogin(svc))
		g.POST("/logout", h.Logout)
		g.POST("/forgot-password", h.ForgotPassword, limited)
		g.POST("/reset-password", h.ResetPassword, limited)
		g.POST("/verify-email", h.RequestVerification, limited)
		g.GET("/verify-email", h.VerifyEmail)
		if p.SelfRegistration {
			g.POST("/register", h.Register, limited)
		}
	}

	admins, ok := byName[partition.Admin]
	if !ok {
		return
	}
	ah := &adminhdl.AdminHandler{Services: byName, Search: d.Activity}
	requireAdmin := authmw.RequireLogin(admins)

	e.PATCH("/auth/admin/principals/:partition/:id/status", ah.ChangeStatus,
		requireAdmin, authmw.RequireRole(models.RoleSuperadmin))
	if d.Activity != nil {
		e.GET("/auth/admin/activity", ah.Activity,
			requireAdmin, authmw.RequireRole(models.RoleAdmin, models.RoleSuperadmin))
	}
}
