package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/logging"
	authmw "github.com/Skotchmaster/photoshare/internal/middleware/auth"
	"github.com/Skotchmaster/photoshare/internal/service"
	"github.com/Skotchmaster/photoshare/internal/transport"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

// bind decodes and validates the request body into req.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return domain.Invalid("body", "malformed request body")
	}
	return c.Validate(req)
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req transport.RegisterRequest
	if err := bind(c, &req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return err
	}

	user, err := h.Svc.Register(ctx, req.Email, req.Username, req.Password)
	if err != nil {
		l.Warn("register_failed", "reason", domain.Code(err), "error", err)
		return err
	}

	l.Info("register_successful", "user_id", user.ID)
	return c.JSON(http.StatusCreated, transport.ToUserResponse(user))
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req transport.LoginRequest
	if err := bind(c, &req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return err
	}

	pair, user, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}

	setTokenCookies(c, pair)
	l.Info("login_successful", "user_id", user.ID)
	return c.JSON(http.StatusOK, tokenResponse(pair))
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req transport.RefreshRequest
	if err := c.Bind(&req); err != nil {
		return domain.Invalid("body", "malformed request body")
	}
	raw := refreshToken(c, req.RefreshToken)
	if raw == "" {
		l.Warn("refresh_failed", "status", 401, "reason", "missing refresh token")
		return fmt.Errorf("%w: missing refresh token", domain.ErrUnauthenticated)
	}

	pair, err := h.Svc.Refresh(ctx, raw)
	if err != nil {
		if !errors.Is(err, domain.ErrInfrastructure) {
			clearTokenCookies(c)
		}
		l.Warn("refresh_failed", "reason", domain.Code(err))
		return err
	}

	setTokenCookies(c, pair)
	l.Info("refresh_successful", "user_id", pair.UserID)
	return c.JSON(http.StatusOK, tokenResponse(pair))
}

// LogOut revokes whatever tokens the client presents. It succeeds even
// without any token so clients can always reset their cookies.
func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	var req transport.LogoutRequest
	if err := c.Bind(&req); err != nil {
		return domain.Invalid("body", "malformed request body")
	}

	err := h.Svc.LogOut(ctx, authmw.TokenFromRequest(c.Request()), refreshToken(c, req.RefreshToken))
	clearTokenCookies(c)
	if err != nil {
		l.Error("logout_failed", "status", 503, "reason", "cannot revoke tokens", "error", err)
		return err
	}

	l.Info("successful_logout")
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHTTP) LogOutAll(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout_all")

	id, _ := authmw.IdentityFrom(c)
	n, err := h.Svc.LogOutAll(ctx, id)
	if err != nil {
		return err
	}

	clearTokenCookies(c)
	l.Info("successful_logout_all", "sessions_revoked", n)
	return c.JSON(http.StatusOK, echo.Map{"sessions_revoked": n})
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_change_password")

	var req transport.ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	id, _ := authmw.IdentityFrom(c)
	if err := h.Svc.ChangePassword(ctx, id, req.CurrentPassword, req.NewPassword); err != nil {
		l.Warn("change_password_failed", "reason", domain.Code(err))
		return err
	}

	clearTokenCookies(c)
	l.Info("password_changed")
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHTTP) RequestEmailVerification(c echo.Context) error {
	ctx := c.Request().Context()

	var req transport.EmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Svc.RequestEmailVerification(ctx, req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, echo.Map{
		"message": "if the account exists, a confirmation link has been sent",
	})
}

func (h *AuthHTTP) ConfirmEmail(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_confirm_email")

	user, err := h.Svc.VerifyEmail(ctx, c.Param("token"))
	if err != nil {
		l.Warn("confirm_email_failed", "reason", domain.Code(err))
		return err
	}

	l.Info("email_confirmed", "user_id", user.ID)
	return c.JSON(http.StatusOK, transport.ToUserResponse(user))
}

func refreshToken(c echo.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if ck, err := c.Cookie(authmw.RefreshCookie); err == nil {
		return ck.Value
	}
	return ""
}

func tokenResponse(p *service.TokenPair) transport.TokenResponse {
	return transport.TokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  p.AccessExp,
		RefreshExpiresAt: p.RefreshExp,
		UserID:           p.UserID,
		Role:             string(p.Role),
	}
}

func setTokenCookies(c echo.Context, p *service.TokenPair) {
	c.SetCookie(authmw.CreateCookie(authmw.AccessCookie, p.AccessToken, "/", p.AccessExp))
	c.SetCookie(authmw.CreateCookie(authmw.RefreshCookie, p.RefreshToken, "/", p.RefreshExp))
}

func clearTokenCookies(c echo.Context) {
	c.SetCookie(authmw.DeleteCookie(authmw.RefreshCookie, "/"))
	c.SetCookie(authmw.DeleteCookie(authmw.AccessCookie, "/"))
}
