package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/logging"
	authmw "github.com/Skotchmaster/photoshare/internal/middleware/auth"
	"github.com/Skotchmaster/photoshare/internal/service"
	"github.com/Skotchmaster/photoshare/internal/transport"
	"github.com/Skotchmaster/photoshare/internal/util"
)

type AdminHTTP struct {
	Svc *service.AdminService
}

func (h *AdminHTTP) ListUsers(c echo.Context) error {
	id, _ := authmw.IdentityFrom(c)
	page, size := pageParams(c)

	users, total, err := h.Svc.ListUsers(c.Request().Context(), id, page, size)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.ToUserList(users, total, page, size))
}

func (h *AdminHTTP) Ban(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_ban")

	var req transport.BanRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	id, _ := authmw.IdentityFrom(c)
	target := c.Param("id")
	if err := h.Svc.BanUser(ctx, id, target, req.Reason); err != nil {
		l.Warn("ban_failed", "target_id", target, "reason", domain.Code(err))
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"id": target, "banned": true})
}

func (h *AdminHTTP) Unban(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_unban")

	id, _ := authmw.IdentityFrom(c)
	target := c.Param("id")
	if err := h.Svc.UnbanUser(ctx, id, target); err != nil {
		l.Warn("unban_failed", "target_id", target, "reason", domain.Code(err))
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"id": target, "banned": false})
}

func (h *AdminHTTP) SetRole(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_set_role")

	var req transport.RoleRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	id, _ := authmw.IdentityFrom(c)
	user, err := h.Svc.SetRole(ctx, id, c.Param("id"), domain.Role(req.Role))
	if err != nil {
		l.Warn("set_role_failed", "target_id", c.Param("id"), "reason", domain.Code(err))
		return err
	}
	return c.JSON(http.StatusOK, transport.ToUserResponse(user))
}

func (h *AdminHTTP) AuditTrail(c echo.Context) error {
	id, _ := authmw.IdentityFrom(c)
	page, size := pageParams(c)

	total, records, err := h.Svc.AuditTrail(c.Request().Context(), id, c.QueryParam("user_id"), page, size)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.AuditResponse{Total: total, Page: page, Size: size, Records: records})
}

// pageParams reads ?page= and ?size=, normalised the same way the store
// applies them.
func pageParams(c echo.Context) (page, size int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	size, _ = strconv.Atoi(c.QueryParam("size"))
	from, limit := util.Calculate(page, size)
	return from/limit + 1, limit
}
