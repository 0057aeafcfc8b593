package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/logging"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"

	identityKey = "identity"
)

type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (domain.Identity, error)
}

// Guard resolves the caller of a request and checks it against a policy.
// It only reads: the token service and, through it, the ledger.
type Guard struct {
	Tokens Authenticator
}

func New(tokens Authenticator) *Guard {
	return &Guard{Tokens: tokens}
}

// TokenFromRequest reads a bearer token, falling back to the access cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get(echo.HeaderAuthorization); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		return c.Value
	}
	return ""
}

// Authorize returns the caller's identity if it satisfies p. Token problems
// wrap domain.ErrUnauthenticated together with the specific token error;
// a valid caller with an insufficient role gets domain.ErrForbidden.
// Ledger outages are returned as they are, never as an auth failure.
func (g *Guard) Authorize(r *http.Request, p domain.Policy) (domain.Identity, error) {
	raw := TokenFromRequest(r)
	if raw == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing access token", domain.ErrUnauthenticated)
	}

	id, err := g.Tokens.Authenticate(r.Context(), raw)
	if err != nil {
		if errors.Is(err, domain.ErrInfrastructure) {
			return domain.Identity{}, err
		}
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	if !p.Allows(id.Role) {
		return id, fmt.Errorf("%w: requires %s", domain.ErrForbidden, p)
	}
	return id, nil
}

func (g *Guard) Require(p domain.Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := g.Authorize(c.Request(), p)
			if err != nil {
				l := logging.FromContext(c.Request().Context())
				if errors.Is(err, domain.ErrUnauthenticated) {
					if _, cerr := c.Cookie(AccessCookie); cerr == nil {
						c.SetCookie(DeleteCookie(AccessCookie, "/"))
					}
					l.Warn("auth_rejected", "status", 401, "reason", domain.Code(err))
				} else if errors.Is(err, domain.ErrForbidden) {
					l.Warn("auth_rejected", "status", 403, "user_id", id.UserID, "role", string(id.Role), "policy", p.String())
				}
				return err
			}

			c.Set(identityKey, id)
			c.Set("user_id", id.UserID)
			c.Set("role", string(id.Role))

			req := c.Request()
			l := logging.FromContext(req.Context()).With("user_id", id.UserID)
			c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), l)))
			return next(c)
		}
	}
}

func IdentityFrom(c echo.Context) (domain.Identity, bool) {
	id, ok := c.Get(identityKey).(domain.Identity)
	return id, ok
}

func CreateCookie(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func DeleteCookie(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
