package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/hash"
	"github.com/Skotchmaster/photoshare/internal/logging"
	"github.com/Skotchmaster/photoshare/internal/models"
)

type CredentialStore struct {
	Users                UserStore
	Hasher               hash.Hasher
	RequireVerifiedEmail bool
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *CredentialStore) CreateUser(ctx context.Context, email, username, password string, role domain.Role) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "credentials.create_user")

	email = NormalizeEmail(email)
	username = strings.TrimSpace(username)
	switch {
	case email == "" || !strings.Contains(email, "@"):
		return nil, domain.Invalid("email", "must be a valid email address")
	case username == "":
		return nil, domain.Invalid("username", "is required")
	case password == "":
		return nil, domain.Invalid("password", "is required")
	case !role.Valid():
		return nil, domain.Invalid("role", "unknown role")
	}

	pwHash, err := s.Hasher.Hash(password)
	if err != nil {
		if errors.Is(err, hash.ErrPasswordTooLong) {
			return nil, domain.Invalid("password", "must be at most 72 bytes")
		}
		l.Error("hash_failed", "error", err)
		return nil, err
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: pwHash,
		Role:         string(role),
	}
	if err := s.Users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			l.Warn("create_user_failed", "status", 409, "reason", "email or username taken")
			return nil, domain.ErrConflict
		}
		return nil, err
	}
	return u, nil
}

// VerifyCredentials returns the user owning email if password matches.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *CredentialStore) VerifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.Users.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.Hasher.CheckDummy(password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.Hasher.Check(user.PasswordHash, password) {
		return nil, domain.ErrInvalidCredentials
	}
	if user.Banned {
		return nil, domain.ErrAccountBanned
	}
	if s.RequireVerifiedEmail && !user.EmailVerified {
		return nil, domain.ErrEmailNotVerified
	}
	return user, nil
}

func (s *CredentialStore) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.Hasher.Check(user.PasswordHash, current) {
		return domain.ErrInvalidCredentials
	}
	if next == "" {
		return domain.Invalid("new_password", "is required")
	}
	pwHash, err := s.Hasher.Hash(next)
	if err != nil {
		if errors.Is(err, hash.ErrPasswordTooLong) {
			return domain.Invalid("new_password", "must be at most 72 bytes")
		}
		return err
	}
	return s.Users.UpdatePasswordHash(ctx, userID, pwHash)
}

// EnsureAdmin creates the bootstrap admin unless an account with that email
// already exists. It reports whether a user was created.
func (s *CredentialStore) EnsureAdmin(ctx context.Context, email, username, password string) (*models.User, bool, error) {
	existing, err := s.Users.GetUserByEmail(ctx, NormalizeEmail(email))
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, err
	}

	u, err := s.CreateUser(ctx, email, username, password, domain.RoleAdmin)
	if err != nil {
		return nil, false, err
	}
	if err := s.Users.SetEmailVerified(ctx, u.ID); err != nil {
		return nil, false, err
	}
	u.EmailVerified = true
	return u, true, nil
}
