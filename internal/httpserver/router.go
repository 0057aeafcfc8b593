package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/photoshare/internal/domain"
	authmw "github.com/Skotchmaster/photoshare/internal/middleware/auth"
	"github.com/Skotchmaster/photoshare/internal/middleware/csrf"
	loggingmw "github.com/Skotchmaster/photoshare/internal/middleware/logging"
	"github.com/Skotchmaster/photoshare/internal/validate"
)

type Deps struct {
	AuthHandler  *AuthHTTP
	UsersHandler *UsersHTTP
	AdminHandler *AdminHTTP
	Guard        *authmw.Guard
	Logger       *slog.Logger
	// Ready reports whether the backing stores answer.
	Ready        func(ctx context.Context) error
	CORSOrigins  []string
	EmailRateRPS float64
	// CSRF enables double submit checks for cookie authenticated requests.
	CSRF         bool
}

func Register(e *echo.Echo, d *Deps) {
	e.HideBanner = true
	e.HTTPErrorHandler = ErrorHandler
	e.Validator = validate.New()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if d.Logger != nil {
		e.Use(loggingmw.RequestLogger(d.Logger))
	}
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit("64K"))
	if len(d.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut},
			AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, "X-CSRF-Token"},
			AllowCredentials: true,
		}))
	}
	if d.CSRF {
		cfg := csrf.DefaultConfig()
		cfg.AuthCookies = []string{authmw.AccessCookie, authmw.RefreshCookie}
		e.Use(csrf.Middleware(cfg))
	}

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				return err
			}
		}
		return c.NoContent(http.StatusOK)
	})

	v1 := e.Group("/api/v1")
	user := d.Guard.Require(domain.Authenticated())
	moderator := d.Guard.Require(domain.AtLeast(domain.RoleModerator))
	admin := d.Guard.Require(domain.AtLeast(domain.RoleAdmin))

	auth := v1.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.LogOut)
	auth.POST("/logout-all", d.AuthHandler.LogOutAll, user)
	auth.POST("/password", d.AuthHandler.ChangePassword, user)

	email := auth.Group("/email")
	if d.EmailRateRPS > 0 {
		email.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(d.EmailRateRPS),
				Burst:     3,
				ExpiresIn: 3 * time.Minute,
			}),
		}))
	}
	email.POST("/request", d.AuthHandler.RequestEmailVerification)
	email.GET("/confirm/:token", d.AuthHandler.ConfirmEmail)

	users := v1.Group("/users", user)
	users.GET("/me", d.UsersHandler.Me)
	users.GET("/:id", d.UsersHandler.Get)

	adm := v1.Group("/admin", moderator)
	adm.GET("/users", d.AdminHandler.ListUsers)
	adm.POST("/users/:id/ban", d.AdminHandler.Ban)
	adm.POST("/users/:id/unban", d.AdminHandler.Unban)
	adm.PUT("/users/:id/role", d.AdminHandler.SetRole, admin)
	adm.GET("/audit", d.AdminHandler.AuditTrail)
}
