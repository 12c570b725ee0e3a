// Package token issues and verifies signed, time-bounded access tokens.
//
// Tokens are JWTs carrying a fixed issuer, the account email as subject, the
// account id and role as private claims and a random jti. Verification
// reports every failure (bad signature, wrong algorithm, wrong issuer,
// expiry, revocation) as the single ErrInvalid.
package token

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/clock"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

const (
	DefaultIssuer    = "authcore"
	DefaultAccessTTL = 2 * time.Hour
	// MaxLeeway is the largest clock skew tolerance accepted by NewManager.
	MaxLeeway = 30 * time.Second

	minHMACKeyBytes = 32
)

var (
	// ErrInvalid is returned for any token that must not be trusted.
	ErrInvalid = errors.New("invalid token")
	// ErrRevocationUnsupported is returned by Revoke without a Denylist.
	ErrRevocationUnsupported = errors.New("token revocation not configured")
)

// Config configures a Manager.
type Config struct {
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256 or the ed25519 private key
	// (raw or PEM) for ed25519.
	PrivateKey []byte
	PublicKey  []byte
	// Leeway tolerates clock skew on exp/iat checks. Zero means exact.
	Leeway time.Duration
	// DenylistTimeout bounds each denylist call made during verification.
	DenylistTimeout time.Duration
}

// Subject is the account a token is issued for.
type Subject struct {
	AccountID string
	Email     string
	Role      string
}

// Claims are the verified contents of an access token.
type Claims struct {
	UID  string `json:"uid"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Issued is a freshly signed access token.
type Issued struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// Manager signs and verifies access tokens. The key material is read-only
// after construction, so a Manager is safe for concurrent use.
type Manager struct {
	config   Config
	clock    clock.Clock
	denylist Denylist
	signKey  interface{}
	verify   interface{}
	method   jwt.SigningMethod
}

// NewManager validates cfg and prepares the signing keys. denylist may be nil,
// in which case tokens cannot be revoked before they expire.
func NewManager(cfg Config, clk clock.Clock, denylist Denylist) (*Manager, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("token: access TTL must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > MaxLeeway {
		return nil, fmt.Errorf("token: leeway must be within [0, %s]", MaxLeeway)
	}
	if cfg.DenylistTimeout < 0 {
		return nil, errors.New("token: denylist timeout must be >= 0")
	}

	m := &Manager{config: cfg, clock: clock.Or(clk), denylist: denylist}

	switch cfg.SigningMethod {
	case MethodHS256, "":
		if len(cfg.PrivateKey) < minHMACKeyBytes {
			return nil, fmt.Errorf("token: hs256 requires a key of at least %d bytes", minHMACKeyBytes)
		}
		m.config.SigningMethod = MethodHS256
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verify = cfg.PrivateKey
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		pub := priv.Public()
		if len(cfg.PublicKey) > 0 {
			if pub, err = parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		m.method = jwt.SigningMethodEdDSA
		m.signKey = priv
		m.verify = pub
	default:
		return nil, errors.New("token: unsupported signing method")
	}

	return m, nil
}

// TTL returns the configured access-token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.AccessTTL
}

// Issue signs a token for s valid from now until now+AccessTTL.
func (m *Manager) Issue(s Subject) (Issued, error) {
	if s.AccountID == "" || s.Email == "" {
		return Issued{}, errors.New("token: subject requires account id and email")
	}

	now := m.clock.Now()
	exp := expiryAfter(now, m.config.AccessTTL)
	claims := Claims{
		UID:  s.AccountID,
		Role: s.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			Subject:   s.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.signKey)
	if err != nil {
		return Issued{}, fmt.Errorf("token: sign: %w", err)
	}
	return Issued{Token: signed, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// expiryAfter returns now+ttl rounded up to the whole second. NumericDate
// claims carry seconds only, so rounding down would end the token early.
func expiryAfter(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if whole := exp.Truncate(time.Second); whole.Before(exp) {
		return whole.Add(time.Second)
	}
	return exp
}

// Verify checks signature, algorithm, issuer and expiry. It does not consult
// the denylist; use VerifyContext for that.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.clock.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verify, nil
	})
	if err != nil {
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UID == "" || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// VerifyContext runs Verify and then rejects revoked tokens. A denylist that
// fails or does not answer in time makes the token invalid.
func (m *Manager) VerifyContext(ctx context.Context, tokenStr string) (*Claims, error) {
	claims, err := m.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if m.denylist == nil {
		return claims, nil
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	denied, err := m.denylist.Denied(ctx, claims.ID)
	if err != nil || denied {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Revocable reports whether a denylist is configured.
func (m *Manager) Revocable() bool { return m.denylist != nil }

// Revoke denylists a token until its expiry. Tokens that are already invalid
// need no revocation and return nil.
func (m *Manager) Revoke(ctx context.Context, tokenStr string) error {
	if m.denylist == nil {
		return ErrRevocationUnsupported
	}
	claims, err := m.Verify(tokenStr)
	if err != nil {
		return nil
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	until := claims.ExpiresAt.Time.Add(m.config.Leeway)
	return m.denylist.Deny(ctx, claims.ID, until)
}

func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.DenylistTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.config.DenylistTimeout)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	if len(key) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("token: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("token: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("token: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("token: invalid ed25519 public key type")
	}
	return edKey, nil
}
