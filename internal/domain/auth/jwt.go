// Package auth validates the bearer tokens that carry the caller's tenant
// and user. Tokens are issued by the identity service; Issue exists for
// tooling such as the seed command and for tests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "pharmastock/internal/core/context"
	"pharmastock/internal/core/id"
)

type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
	// Leeway absorbs clock skew between the identity service and us.
	Leeway time.Duration
}

func NewConfig(secret, issuer string) Config {
	if issuer == "" {
		issuer = "pharmastock"
	}
	return Config{
		Secret: secret,
		Issuer: issuer,
		TTL:    15 * time.Minute,
		Leeway: 30 * time.Second,
	}
}

// Claims carry the user as the subject and the tenant in "tid".
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tid"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

var errNoTenant = errors.New("token carries no tenant")

// Tokens signs and validates HS256 tokens.
type Tokens struct {
	cfg Config
	now func() time.Time
}

func NewTokens(cfg Config) *Tokens {
	return &Tokens{cfg: cfg, now: time.Now}
}

// Issue signs a token for caller and returns it with its expiry.
func (t *Tokens) Issue(caller appctx.Caller) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.cfg.TTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   caller.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TenantID: caller.TenantID.String(),
		Email:    caller.Email,
		Roles:    caller.Roles,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken checks signature, issuer and expiry and returns the caller.
// Subject and tenant must both be UUIDs.
func (t *Tokens) ValidateToken(raw string) (*appctx.Caller, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return []byte(t.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(t.cfg.Leeway),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if claims.TenantID == "" {
		return nil, errNoTenant
	}
	tenantID, err := id.Parse(claims.TenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant: %w", err)
	}
	userID, err := id.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}

	return &appctx.Caller{
		TenantID: tenantID,
		UserID:   userID,
		Email:    claims.Email,
		Roles:    claims.Roles,
	}, nil
}
