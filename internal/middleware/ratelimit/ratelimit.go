package ratelimitmw

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/govlink/govlink/internal/apperr"
	"github.com/govlink/govlink/internal/logging"
	"github.com/govlink/govlink/internal/metrics"
	"github.com/govlink/govlink/internal/ratelimit"
)

// Limit throttles a route per client IP. The bucket key includes the
// route template, so login and refresh attempts are counted separately.
// A failing limiter lets the request through.
func Limit(lim ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			route := c.Path()
			key := route + "|" + c.RealIP()

			d, err := lim.Check(ctx, key)
			if err != nil {
				logging.FromContext(ctx).Warn("ratelimit_unavailable", "route", route, "error", err)
			}
			if d.Allowed {
				return next(c)
			}

			if d.RetryAfter > 0 {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
			}
			metrics.RateLimited(route)
			logging.FromContext(ctx).Warn("rate_limited", "status", http.StatusTooManyRequests, "route", route)

			msg := d.Message
			if msg == "" {
				msg = ratelimit.DefaultMessage
			}
			return apperr.RateLimited(msg)
		}
	}
}
