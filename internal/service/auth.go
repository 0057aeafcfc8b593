package service

import (
	"context"
	"errors"
	"net/url"

	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/events"
	"github.com/Skotchmaster/photoshare/internal/logging"
	"github.com/Skotchmaster/photoshare/internal/models"
)

const (
	ReasonPasswordChanged = "password_changed"
	ReasonLogoutAll       = "logout_all"
	ReasonBanned          = "banned"
	ReasonRoleChanged     = "role_changed"
)

type AuthService struct {
	Credentials   *CredentialStore
	Tokens        *TokenService
	Events        EventPublisher
	PublicBaseURL string
}

func (h *AuthService) Register(ctx context.Context, email, username, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	user, err := h.Credentials.CreateUser(ctx, email, username, password, domain.RoleUser)
	if err != nil {
		return nil, err
	}
	l.Info("user_registered", "user_id", user.ID)

	publish(ctx, h.Events, events.Event{
		Type:   events.TypeUserRegistered,
		UserID: user.ID,
		Email:  user.Email,
		Data:   map[string]string{"username": user.Username},
	})
	h.sendVerification(ctx, user)
	return user, nil
}

func (h *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, *models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	user, err := h.Credentials.VerifyCredentials(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			l.Warn("login_failed", "status", 401, "reason", "invalid email or password")
		case errors.Is(err, domain.ErrAccountBanned), errors.Is(err, domain.ErrEmailNotVerified):
			l.Warn("login_failed", "status", 403, "reason", err.Error())
		default:
			l.Error("login_failed", "status", 503, "error", err)
		}
		return nil, nil, err
	}

	pair, err := h.Tokens.Issue(ctx, user)
	if err != nil {
		l.Error("login_failed", "reason", "cannot issue tokens", "error", err)
		return nil, nil, err
	}

	publish(ctx, h.Events, events.Event{Type: events.TypeUserLoggedIn, UserID: user.ID})
	return pair, user, nil
}

func (h *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return h.Tokens.Refresh(ctx, refreshToken)
}

func (h *AuthService) LogOut(ctx context.Context, accessToken, refreshToken string) error {
	return h.Tokens.Revoke(ctx, accessToken, refreshToken)
}

func (h *AuthService) LogOutAll(ctx context.Context, id domain.Identity) (int, error) {
	return h.Tokens.RevokeAllForUser(ctx, id.UserID, ReasonLogoutAll)
}

// ChangePassword replaces the caller's password and ends all their sessions.
func (h *AuthService) ChangePassword(ctx context.Context, id domain.Identity, current, next string) error {
	if err := h.Credentials.ChangePassword(ctx, id.UserID, current, next); err != nil {
		return err
	}
	if _, err := h.Tokens.RevokeAllForUser(ctx, id.UserID, ReasonPasswordChanged); err != nil {
		return err
	}
	publish(ctx, h.Events, events.Event{Type: events.TypePasswordChanged, UserID: id.UserID})
	return nil
}

// RequestEmailVerification sends a fresh confirmation link. Unknown emails
// succeed silently.
func (h *AuthService) RequestEmailVerification(ctx context.Context, email string) error {
	user, err := h.Credentials.Users.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if user.EmailVerified {
		return domain.ErrConflict
	}
	h.sendVerification(ctx, user)
	return nil
}

func (h *AuthService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	claims, err := h.Tokens.ParseEmailToken(token)
	if err != nil {
		return nil, err
	}
	user, err := h.Credentials.Users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTokenMalformed
		}
		return nil, err
	}
	if user.Email != claims.Email {
		return nil, domain.ErrTokenMalformed
	}
	if user.EmailVerified {
		return nil, domain.ErrConflict
	}
	if err := h.Credentials.Users.SetEmailVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.EmailVerified = true

	publish(ctx, h.Events, events.Event{Type: events.TypeEmailVerified, UserID: user.ID, Email: user.Email})
	return user, nil
}

func (h *AuthService) Me(ctx context.Context, id domain.Identity) (*models.User, error) {
	return h.Credentials.Users.GetUserByID(ctx, id.UserID)
}

func (h *AuthService) sendVerification(ctx context.Context, user *models.User) {
	l := logging.FromContext(ctx).With("svc", "auth.email_verification", "user_id", user.ID)

	issued, err := h.Tokens.IssueEmailToken(user)
	if err != nil {
		l.Error("email_token_failed", "error", err)
		return
	}
	publish(ctx, h.Events, events.Event{
		Type:   events.TypeEmailVerifyRequest,
		UserID: user.ID,
		Email:  user.Email,
		Data: map[string]string{
			"confirm_url": h.PublicBaseURL + "/api/v1/auth/email/confirm/" + url.PathEscape(issued.Raw),
			"expires_at":  issued.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		},
	})
}
