package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	ActionBan          = "user.ban"
	ActionUnban        = "user.unban"
	ActionRoleChange   = "user.role_change"
	ActionRefreshReuse = "token.refresh_reuse"
	ActionRevokeAll    = "token.revoke_all"
)

type Record struct {
	Action   string            `json:"action"`
	ActorID  string            `json:"actor_id,omitempty"`
	TargetID string            `json:"target_id,omitempty"`
	Outcome  string            `json:"outcome"`
	Detail   map[string]string `json:"detail,omitempty"`
	At       time.Time         `json:"at"`
}

type Sink interface {
	Record(ctx context.Context, r Record) error
}

// LogSink writes records to the structured log.
type LogSink struct {
	L *slog.Logger
}

func (s LogSink) Record(ctx context.Context, r Record) error {
	l := s.L
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "audit",
		"action", r.Action,
		"actor_id", r.ActorID,
		"target_id", r.TargetID,
		"outcome", r.Outcome,
		"detail", r.Detail,
		"at", r.At,
	)
	return nil
}

// Tee records to every sink and joins their errors.
type Tee []Sink

func (t Tee) Record(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range t {
		if err := s.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
