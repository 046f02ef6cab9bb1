package admin

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/govlink/govlink/internal/activity"
	"github.com/govlink/govlink/internal/apperr"
	"github.com/govlink/govlink/internal/logging"
	authmw "github.com/govlink/govlink/internal/middleware/auth"
	"github.com/govlink/govlink/internal/service"
	"github.com/govlink/govlink/internal/transport"
	"github.com/govlink/govlink/internal/util"
)

type ActivitySearcher interface {
	Search(ctx context.Context, q activity.Query) (int64, []activity.Event, error)
}

type AdminHandler struct {
	Services map[string]*service.AuthService
	Search   ActivitySearcher
}

func (h *AdminHandler) ChangeStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_change_status")

	svc, ok := h.Services[c.Param("partition")]
	if !ok {
		return apperr.NotFound("Unknown account type")
	}

	var req transport.StatusChangeRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("status_change_error", "status", 400, "error", err)
		return apperr.Validation("Invalid request body", err.Error())
	}

	actor, ok := authmw.Principal(c)
	if !ok {
		return apperr.InvalidToken(apperr.MsgInvalidAccessToken, nil)
	}

	pr, err := svc.ChangeStatus(ctx, c.Param("id"), req, actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"message":   "Status updated",
		"principal": pr.Sanitized(),
	})
}

func (h *AdminHandler) Activity(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_activity")

	var q transport.ActivityQuery
	if err := c.Bind(&q); err != nil {
		return apperr.Validation("Invalid query", err.Error())
	}
	from, size := util.Calculate(q.Page, q.Size)

	total, events, err := h.Search.Search(ctx, activity.Query{
		Partition:   q.Partition,
		PrincipalID: q.PrincipalID,
		Type:        activity.Type(q.Type),
		From:        from,
		Size:        size,
	})
	if err != nil {
		l.Error("activity_search_failed", "status", 500, "error", err)
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Activity retrieved",
		"total":   total,
		"events":  events,
	})
}
