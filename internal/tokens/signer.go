package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Skotchmaster/photoshare/internal/domain"
)

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	EmailTTL      time.Duration
	Issuer        string
	Now           func() time.Time
}

// Signer mints and parses the three token kinds. It holds no mutable state
// and is safe for concurrent use.
type Signer struct {
	cfg Config
}

// Issued is a freshly signed token with the claims callers need to persist.
type Issued struct {
	Raw       string
	ID        string
	ChainID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func NewSigner(cfg Config) (*Signer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("tokens: access and refresh secrets are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("tokens: lifetimes must be positive")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, fmt.Errorf("tokens: access lifetime %s must be shorter than refresh lifetime %s", cfg.AccessTTL, cfg.RefreshTTL)
	}
	if cfg.EmailTTL <= 0 {
		cfg.EmailTTL = 12 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Signer{cfg: cfg}, nil
}

func (s *Signer) AccessTTL() time.Duration  { return s.cfg.AccessTTL }
func (s *Signer) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }
func (s *Signer) Now() time.Time            { return s.cfg.Now() }

func (s *Signer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.cfg.Now().UTC().Truncate(time.Second)
	return jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        NewJTI(),
	}
}

func (s *Signer) Access(userID string, role domain.Role, chainID string) (Issued, error) {
	claims := AccessClaims{
		Role:             string(role),
		Type:             KindAccess,
		SessionID:        chainID,
		RegisteredClaims: s.registered(userID, s.cfg.AccessTTL),
	}
	return s.sign(claims, claims.RegisteredClaims, chainID, s.cfg.AccessSecret)
}

// Refresh signs a refresh token in chainID. An empty chainID starts a new chain.
func (s *Signer) Refresh(userID, chainID string) (Issued, error) {
	if chainID == "" {
		chainID = uuid.NewString()
	}
	claims := RefreshClaims{
		Type:             KindRefresh,
		SessionID:        chainID,
		RegisteredClaims: s.registered(userID, s.cfg.RefreshTTL),
	}
	return s.sign(claims, claims.RegisteredClaims, chainID, s.cfg.RefreshSecret)
}

func (s *Signer) Email(userID, email string) (Issued, error) {
	claims := EmailClaims{
		Email:            email,
		Type:             KindEmail,
		RegisteredClaims: s.registered(userID, s.cfg.EmailTTL),
	}
	return s.sign(claims, claims.RegisteredClaims, "", s.cfg.AccessSecret)
}

func (s *Signer) sign(claims jwt.Claims, rc jwt.RegisteredClaims, chainID string, secret []byte) (Issued, error) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Issued{}, fmt.Errorf("tokens: sign: %w", err)
	}
	return Issued{
		Raw:       raw,
		ID:        rc.ID,
		ChainID:   chainID,
		IssuedAt:  rc.IssuedAt.Time,
		ExpiresAt: rc.ExpiresAt.Time,
	}, nil
}

func (s *Signer) ParseAccess(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := s.parse(raw, &claims, s.cfg.AccessSecret); err != nil {
		return nil, err
	}
	if claims.Type != KindAccess || claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: not an access token", domain.ErrTokenMalformed)
	}
	if !domain.Role(claims.Role).Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrTokenMalformed, claims.Role)
	}
	return &claims, nil
}

func (s *Signer) ParseRefresh(raw string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := s.parse(raw, &claims, s.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != KindRefresh || claims.ID == "" || claims.Subject == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: not a refresh token", domain.ErrTokenMalformed)
	}
	return &claims, nil
}

func (s *Signer) ParseEmail(raw string) (*EmailClaims, error) {
	var claims EmailClaims
	if err := s.parse(raw, &claims, s.cfg.AccessSecret); err != nil {
		return nil, err
	}
	if claims.Type != KindEmail || claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: not an email token", domain.ErrTokenMalformed)
	}
	return &claims, nil
}

func (s *Signer) parse(raw string, claims jwt.Claims, secret []byte) error {
	if raw == "" {
		return fmt.Errorf("%w: empty token", domain.ErrTokenMalformed)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	tkn, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", domain.ErrTokenExpired, err)
	case err != nil:
		return fmt.Errorf("%w: %w", domain.ErrTokenMalformed, err)
	case !tkn.Valid:
		return fmt.Errorf("%w: invalid token", domain.ErrTokenMalformed)
	}
	return nil
}

// Fingerprint is the stored form of a raw refresh token.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func NewJTI() string { return uuid.NewString() }
