package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/photoshare/internal/audit"
	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/events"
	"github.com/Skotchmaster/photoshare/internal/logging"
	"github.com/Skotchmaster/photoshare/internal/models"
	"github.com/Skotchmaster/photoshare/internal/repo"
	"github.com/Skotchmaster/photoshare/internal/tokens"
)

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
	ChainID      string
	UserID       string
	Role         domain.Role
}

type TokenService struct {
	Signer *tokens.Signer
	Chains RefreshStore
	Users  UserStore
	Ledger Ledger
	Audit  audit.Sink
	Events EventPublisher
}

// Issue starts a new rotation chain for user.
func (s *TokenService) Issue(ctx context.Context, user *models.User) (*TokenPair, error) {
	pair, link, err := s.mint(user, "", "")
	if err != nil {
		return nil, err
	}
	if err := s.Chains.SaveRefresh(ctx, link); err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *TokenService) mint(user *models.User, chainID, parentJTI string) (*TokenPair, *models.RefreshToken, error) {
	role := domain.Role(user.Role)
	refresh, err := s.Signer.Refresh(user.ID, chainID)
	if err != nil {
		return nil, nil, err
	}
	access, err := s.Signer.Access(user.ID, role, refresh.ChainID)
	if err != nil {
		return nil, nil, err
	}

	link := &models.RefreshToken{
		JTI:       refresh.ID,
		UserID:    user.ID,
		ChainID:   refresh.ChainID,
		ParentJTI: parentJTI,
		TokenHash: tokens.Fingerprint(refresh.Raw),
		IssuedAt:  refresh.IssuedAt.Unix(),
		ExpiresAt: refresh.ExpiresAt.Unix(),
	}
	pair := &TokenPair{
		AccessToken:  access.Raw,
		RefreshToken: refresh.Raw,
		AccessExp:    access.ExpiresAt,
		RefreshExp:   refresh.ExpiresAt,
		ChainID:      refresh.ChainID,
		UserID:       user.ID,
		Role:         role,
	}
	return pair, link, nil
}

// Refresh exchanges a live refresh token for a new pair in the same chain.
// The presented token is single use: presenting it again revokes every
// refresh token of the chain, including descendants already handed out.
// Access tokens of the chain stay valid until their own expiry.
func (s *TokenService) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "tokens.refresh")

	claims, err := s.Signer.ParseRefresh(raw)
	if err != nil {
		return nil, err
	}

	for _, id := range []string{claims.SessionID, refreshChainKey(claims.SessionID)} {
		revoked, err := s.Ledger.IsRevoked(ctx, id)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, fmt.Errorf("%w: session revoked", domain.ErrTokenRevoked)
		}
	}
	rotated, err := s.Ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if rotated {
		return nil, s.containReuse(ctx, claims)
	}

	user, err := s.Users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", domain.ErrTokenRevoked)
		}
		return nil, err
	}
	if user.Banned {
		return nil, domain.ErrAccountBanned
	}

	pair, next, err := s.mint(user, claims.SessionID, claims.ID)
	if err != nil {
		return nil, err
	}

	now := s.Signer.Now().Unix()
	if err := s.Chains.RotateRefresh(ctx, claims.ID, tokens.Fingerprint(raw), next, now); err != nil {
		if errors.Is(err, domain.ErrRefreshReuse) {
			return nil, s.containReuse(ctx, claims)
		}
		return nil, err
	}

	// The rotation is committed; the ledger entry only speeds up rejection
	// of the old token, so a failure here must not lose the new pair.
	if err := s.Ledger.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		l.Warn("ledger_write_failed", "jti", claims.ID, "error", err)
	}
	return pair, nil
}

func (s *TokenService) containReuse(ctx context.Context, claims *tokens.RefreshClaims) error {
	l := logging.FromContext(ctx).With("svc", "tokens.refresh", "chain_id", claims.SessionID, "user_id", claims.Subject)

	if err := s.revokeRefreshChain(ctx, claims.SessionID); err != nil {
		l.Error("reuse_containment_failed", "error", err)
		return err
	}
	l.Warn("refresh_reuse_detected", "status", 401, "jti", claims.ID)

	s.record(ctx, audit.Record{
		Action:   audit.ActionRefreshReuse,
		TargetID: claims.Subject,
		Outcome:  "chain_revoked",
		Detail:   map[string]string{"chain_id": claims.SessionID, "jti": claims.ID},
	})
	s.publish(ctx, events.Event{
		Type:   events.TypeRefreshReuse,
		UserID: claims.Subject,
		Data:   map[string]string{"chain_id": claims.SessionID},
	})
	return fmt.Errorf("%w: %w", domain.ErrTokenRevoked, domain.ErrRefreshReuse)
}

// refreshChainKey is the ledger id that blocks further rotation of a chain
// while leaving its already issued access tokens to expire on their own.
func refreshChainKey(chainID string) string { return "chain:" + chainID }

// revokeRefreshChain kills every refresh link of chainID, descendants of
// a reused token included.
func (s *TokenService) revokeRefreshChain(ctx context.Context, chainID string) error {
	now := s.Signer.Now()
	if _, err := s.Chains.RevokeChain(ctx, chainID, repo.ReasonReuse, now.Unix()); err != nil {
		return err
	}
	return s.Ledger.Revoke(ctx, refreshChainKey(chainID), now.Add(s.Signer.RefreshTTL()))
}

// revokeSession kills every refresh link of chainID and, through the ledger
// entry on the chain id, every access token minted in it.
func (s *TokenService) revokeSession(ctx context.Context, chainID, reason string) error {
	now := s.Signer.Now()
	if _, err := s.Chains.RevokeChain(ctx, chainID, reason, now.Unix()); err != nil {
		return err
	}
	return s.Ledger.Revoke(ctx, chainID, now.Add(s.Signer.RefreshTTL()))
}

// ValidateAccess checks signature, expiry and the ledger, for both the
// token id and its chain.
func (s *TokenService) ValidateAccess(ctx context.Context, raw string) (*tokens.AccessClaims, error) {
	claims, err := s.Signer.ParseAccess(raw)
	if err != nil {
		return nil, err
	}
	for _, id := range []string{claims.ID, claims.SessionID} {
		revoked, err := s.Ledger.IsRevoked(ctx, id)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, domain.ErrTokenRevoked
		}
	}
	return claims, nil
}

func (s *TokenService) Authenticate(ctx context.Context, raw string) (domain.Identity, error) {
	claims, err := s.ValidateAccess(ctx, raw)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{
		UserID:    claims.Subject,
		Role:      domain.Role(claims.Role),
		TokenID:   claims.ID,
		ChainID:   claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke ends the session(s) the given tokens belong to. Unparsable or
// expired tokens are skipped, so logging out twice is not an error.
// Session entries are written before the token ids.
func (s *TokenService) Revoke(ctx context.Context, accessRaw, refreshRaw string) error {
	type revoked struct {
		id  string
		exp time.Time
	}
	var ids []revoked
	chains := map[string]struct{}{}

	if refreshRaw != "" {
		if claims, err := s.Signer.ParseRefresh(refreshRaw); err == nil {
			ids = append(ids, revoked{claims.ID, claims.ExpiresAt.Time})
			chains[claims.SessionID] = struct{}{}
		}
	}
	if accessRaw != "" {
		if claims, err := s.Signer.ParseAccess(accessRaw); err == nil {
			ids = append(ids, revoked{claims.ID, claims.ExpiresAt.Time})
			chains[claims.SessionID] = struct{}{}
		}
	}
	for chainID := range chains {
		if err := s.revokeSession(ctx, chainID, repo.ReasonLogout); err != nil {
			return err
		}
	}
	for _, r := range ids {
		if err := s.Ledger.Revoke(ctx, r.id, r.exp); err != nil {
			return err
		}
	}
	return nil
}

// RevokeAllForUser revokes every session of userID that may still hold a
// valid token and returns how many were revoked.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	now := s.Signer.Now()
	chains, err := s.Chains.RevokeUserChains(ctx, userID, reason, now.Unix())
	if err != nil {
		return 0, err
	}
	exp := now.Add(s.Signer.RefreshTTL())
	for _, chainID := range chains {
		if err := s.Ledger.Revoke(ctx, chainID, exp); err != nil {
			return 0, err
		}
	}
	if len(chains) == 0 {
		return 0, nil
	}

	count := fmt.Sprint(len(chains))
	s.record(ctx, audit.Record{
		Action:   audit.ActionRevokeAll,
		TargetID: userID,
		Outcome:  "ok",
		Detail:   map[string]string{"reason": reason, "count": count},
	})
	s.publish(ctx, events.Event{
		Type:   events.TypeSessionsRevoked,
		UserID: userID,
		Data:   map[string]string{"reason": reason, "count": count},
	})
	return len(chains), nil
}

func (s *TokenService) IssueEmailToken(user *models.User) (tokens.Issued, error) {
	return s.Signer.Email(user.ID, user.Email)
}

func (s *TokenService) ParseEmailToken(raw string) (*tokens.EmailClaims, error) {
	return s.Signer.ParseEmail(raw)
}

type PruneResult struct {
	LedgerEntries int64
	RefreshLinks  int64
}

// Prune drops ledger entries and refresh links whose natural expiry passed.
func (s *TokenService) Prune(ctx context.Context, now time.Time) (PruneResult, error) {
	var res PruneResult
	var err error
	if res.LedgerEntries, err = s.Ledger.Prune(ctx, now); err != nil {
		return res, err
	}
	if res.RefreshLinks, err = s.Chains.PruneRefresh(ctx, now.Unix()); err != nil {
		return res, err
	}
	return res, nil
}

func (s *TokenService) record(ctx context.Context, r audit.Record) {
	recordAudit(ctx, s.Audit, r)
}

func (s *TokenService) publish(ctx context.Context, e events.Event) {
	publish(ctx, s.Events, e)
}

func recordAudit(ctx context.Context, sink audit.Sink, r audit.Record) {
	if sink == nil {
		return
	}
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	if err := sink.Record(ctx, r); err != nil {
		logging.FromContext(ctx).Warn("audit_write_failed", "action", r.Action, "error", err)
	}
}

// publish is best effort: auth decisions never wait on the event bus.
func publish(ctx context.Context, p EventPublisher, e events.Event) {
	if p == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if err := p.Publish(ctx, e); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", e.Type, "error", err)
	}
}
