package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	authmw "github.com/Skotchmaster/photoshare/internal/middleware/auth"
	"github.com/Skotchmaster/photoshare/internal/service"
	"github.com/Skotchmaster/photoshare/internal/transport"
)

type UsersHTTP struct {
	Auth  *service.AuthService
	Admin *service.AdminService
}

func (h *UsersHTTP) Me(c echo.Context) error {
	id, _ := authmw.IdentityFrom(c)
	user, err := h.Auth.Me(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.ToUserResponse(user))
}

// Get shows private fields only to the owner and to moderators.
func (h *UsersHTTP) Get(c echo.Context) error {
	id, _ := authmw.IdentityFrom(c)
	user, full, err := h.Admin.GetUser(c.Request().Context(), id, c.Param("id"))
	if err != nil {
		return err
	}
	if full {
		return c.JSON(http.StatusOK, transport.ToUserResponse(user))
	}
	return c.JSON(http.StatusOK, transport.ToPublicUser(user))
}
