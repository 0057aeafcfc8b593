package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/photoshare/internal/audit"
	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/events"
	"github.com/Skotchmaster/photoshare/internal/logging"
	"github.com/Skotchmaster/photoshare/internal/models"
	"github.com/Skotchmaster/photoshare/internal/util"
)

type AdminService struct {
	Users    UserStore
	Tokens   *TokenService
	Audit    audit.Sink
	AuditLog AuditReader
	Events   EventPublisher
}

var errAuditUnavailable = errors.New("audit store not configured")

// BanUser soft-bans target and ends all of its sessions. Moderators may
// only ban regular users; nobody may ban themselves.
func (s *AdminService) BanUser(ctx context.Context, actor domain.Identity, targetID, reason string) error {
	l := logging.FromContext(ctx).With("svc", "admin.ban", "actor_id", actor.UserID, "target_id", targetID)

	target, err := s.moderationTarget(ctx, actor, targetID)
	if err != nil {
		s.audit(ctx, actor, audit.ActionBan, targetID, "denied", err)
		return err
	}

	if !target.Banned {
		if err := s.Users.SetBanned(ctx, target.ID, true); err != nil {
			return err
		}
	}
	n, err := s.Tokens.RevokeAllForUser(ctx, target.ID, ReasonBanned)
	if err != nil {
		return err
	}
	l.Info("user_banned", "sessions_revoked", n)

	s.audit(ctx, actor, audit.ActionBan, target.ID, "ok", nil, "reason", reason, "sessions_revoked", fmt.Sprint(n))
	publish(ctx, s.Events, events.Event{Type: events.TypeUserBanned, UserID: target.ID, Email: target.Email, Data: map[string]string{"reason": reason}})
	return nil
}

func (s *AdminService) UnbanUser(ctx context.Context, actor domain.Identity, targetID string) error {
	target, err := s.moderationTarget(ctx, actor, targetID)
	if err != nil {
		s.audit(ctx, actor, audit.ActionUnban, targetID, "denied", err)
		return err
	}
	if target.Banned {
		if err := s.Users.SetBanned(ctx, target.ID, false); err != nil {
			return err
		}
	}
	s.audit(ctx, actor, audit.ActionUnban, target.ID, "ok", nil)
	publish(ctx, s.Events, events.Event{Type: events.TypeUserUnbanned, UserID: target.ID, Email: target.Email})
	return nil
}

func (s *AdminService) moderationTarget(ctx context.Context, actor domain.Identity, targetID string) (*models.User, error) {
	if !actor.Role.Includes(domain.RoleModerator) {
		return nil, domain.ErrForbidden
	}
	if actor.UserID == targetID {
		return nil, fmt.Errorf("%w: cannot moderate yourself", domain.ErrForbidden)
	}
	target, err := s.Users.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin && domain.Role(target.Role).Includes(domain.RoleModerator) {
		return nil, fmt.Errorf("%w: only admins may moderate staff", domain.ErrForbidden)
	}
	return target, nil
}

// SetRole changes target's role. Admin only; an admin cannot change their
// own role and the last admin cannot be demoted. Sessions are revoked so
// the new role is carried by the next login.
func (s *AdminService) SetRole(ctx context.Context, actor domain.Identity, targetID string, role domain.Role) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "admin.set_role", "actor_id", actor.UserID, "target_id", targetID)

	deny := func(err error) (*models.User, error) {
		s.audit(ctx, actor, audit.ActionRoleChange, targetID, "denied", err, "role", string(role))
		return nil, err
	}
	if actor.Role != domain.RoleAdmin {
		return deny(domain.ErrForbidden)
	}
	if !role.Valid() {
		return nil, domain.Invalid("role", "unknown role")
	}
	if actor.UserID == targetID {
		return deny(fmt.Errorf("%w: cannot change your own role", domain.ErrForbidden))
	}

	target, err := s.Users.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	previous := target.Role
	if domain.Role(previous) == role {
		return target, nil
	}
	if err := s.Users.SetRoleGuarded(ctx, targetID, role); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return deny(fmt.Errorf("%w: cannot demote the last admin", domain.ErrConflict))
		}
		return nil, err
	}
	n, err := s.Tokens.RevokeAllForUser(ctx, targetID, ReasonRoleChanged)
	if err != nil {
		return nil, err
	}
	target.Role = string(role)
	l.Info("role_changed", "from", previous, "to", string(role), "sessions_revoked", n)

	s.audit(ctx, actor, audit.ActionRoleChange, targetID, "ok", nil, "from", previous, "to", string(role))
	publish(ctx, s.Events, events.Event{Type: events.TypeUserRoleChanged, UserID: targetID, Data: map[string]string{"from": previous, "to": string(role)}})
	return target, nil
}

func (s *AdminService) ListUsers(ctx context.Context, actor domain.Identity, page, size int) ([]models.User, int64, error) {
	if !actor.Role.Includes(domain.RoleModerator) {
		return nil, 0, domain.ErrForbidden
	}
	from, limit := util.Calculate(page, size)
	return s.Users.ListUsers(ctx, from, limit)
}

// GetUser loads targetID and reports whether actor may see its private fields.
func (s *AdminService) GetUser(ctx context.Context, actor domain.Identity, targetID string) (*models.User, bool, error) {
	user, err := s.Users.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, false, err
	}
	return user, domain.CanManage(actor, user.ID), nil
}

func (s *AdminService) AuditTrail(ctx context.Context, actor domain.Identity, userID string, page, size int) (int64, []audit.Record, error) {
	if !actor.Role.Includes(domain.RoleModerator) {
		return 0, nil, domain.ErrForbidden
	}
	if s.AuditLog == nil {
		return 0, nil, domain.Infra("admin.audit_trail", errAuditUnavailable)
	}
	from, limit := util.Calculate(page, size)
	return s.AuditLog.Search(ctx, userID, from, limit)
}

func (s *AdminService) audit(ctx context.Context, actor domain.Identity, action, targetID, outcome string, cause error, kv ...string) {
	detail := map[string]string{"actor_role": string(actor.Role)}
	for i := 0; i+1 < len(kv); i += 2 {
		detail[kv[i]] = kv[i+1]
	}
	if cause != nil {
		detail["error"] = cause.Error()
	}
	recordAudit(ctx, s.Audit, audit.Record{
		Action:   action,
		ActorID:  actor.UserID,
		TargetID: targetID,
		Outcome:  outcome,
		Detail:   detail,
	})
}
