package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scope limits what a session token may do.
type Scope string

const (
	ScopeControl Scope = "control"
	ScopeMonitor Scope = "monitor"
)

// issuer is written to and required in every token.
const issuer = "garagegate"

// Token lifetimes.
const (
	DefaultTTL = 15 * time.Minute
	MaxTTL     = 24 * time.Hour
)

// ParseScope validates a scope name. Empty means monitor.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeMonitor:
		return ScopeMonitor, nil
	case ScopeControl:
		return ScopeControl, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScope, s)
	}
}

// Allows reports whether s grants the rights of required.
func (s Scope) Allows(required Scope) bool {
	return s == ScopeControl || s == required
}

// SessionClaims are the claims of a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Scope Scope `json:"scope"`
}

// Issuer signs and verifies session tokens with the shared secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer creates an Issuer.
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

// Issue creates a signed token for subject. ttl is clamped to
// (0, MaxTTL]; zero selects DefaultTTL.
func (i *Issuer) Issue(subject string, scope Scope, ttl time.Duration) (token string, expires time.Time, err error) {
	if subject == "" {
		subject = "anonymous"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ttl = min(ttl, MaxTTL)

	now := i.now()
	expires = now.Add(ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		Scope: scope,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session token: %w", err)
	}
	return signed, expires, nil
}

// Parse validates a token's signature, issuer, expiry and scope.
func (i *Issuer) Parse(token string) (*SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if _, err := ParseScope(string(claims.Scope)); err != nil || claims.Scope == "" {
		return nil, fmt.Errorf("%w: bad scope", ErrTokenInvalid)
	}
	return claims, nil
}
