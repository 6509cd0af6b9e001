package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "pharmastock/internal/core/context"
	"pharmastock/internal/core/id"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens(NewConfig("secret", ""))
	caller := appctx.Caller{TenantID: id.New(), UserID: id.New(), Email: "qa@example.com", Roles: []string{"pharmacist"}}

	raw, exp, err := tokens.Issue(caller)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	got, err := tokens.ValidateToken(raw)
	require.NoError(t, err)
	assert.Equal(t, caller.TenantID, got.TenantID)
	assert.Equal(t, caller.UserID, got.UserID)
	assert.Equal(t, []string{"pharmacist"}, got.Roles)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	raw, _, err := NewTokens(NewConfig("other", "")).Issue(appctx.Caller{TenantID: id.New(), UserID: id.New()})
	require.NoError(t, err)

	_, err = NewTokens(NewConfig("secret", "")).ValidateToken(raw)
	assert.Error(t, err)
}

func TestValidateRejectsForeignIssuer(t *testing.T) {
	raw, _, err := NewTokens(NewConfig("secret", "elsewhere")).Issue(appctx.Caller{TenantID: id.New(), UserID: id.New()})
	require.NoError(t, err)

	_, err = NewTokens(NewConfig("secret", "pharmastock")).ValidateToken(raw)
	assert.Error(t, err)
}

func TestValidateRejectsExpiredBeyondLeeway(t *testing.T) {
	cfg := NewConfig("secret", "")
	cfg.TTL = -time.Minute
	tokens := NewTokens(cfg)

	raw, _, err := tokens.Issue(appctx.Caller{TenantID: id.New(), UserID: id.New()})
	require.NoError(t, err)

	_, err = tokens.ValidateToken(raw)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateAcceptsSkewWithinLeeway(t *testing.T) {
	cfg := NewConfig("secret", "")
	cfg.TTL = -10 * time.Second
	tokens := NewTokens(cfg)

	raw, _, err := tokens.Issue(appctx.Caller{TenantID: id.New(), UserID: id.New()})
	require.NoError(t, err)

	_, err = tokens.ValidateToken(raw)
	assert.NoError(t, err)
}

func TestValidateRequiresUUIDs(t *testing.T) {
	cfg := NewConfig("secret", "")
	sign := func(c Claims) string {
		c.Issuer = cfg.Issuer
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Minute))
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(cfg.Secret))
		require.NoError(t, err)
		return s
	}
	tokens := NewTokens(cfg)

	_, err := tokens.ValidateToken(sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id.New().String()}}))
	assert.ErrorIs(t, err, errNoTenant)

	_, err = tokens.ValidateToken(sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}, TenantID: id.New().String()}))
	assert.Error(t, err)

	_, err = tokens.ValidateToken(sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id.New().String()}, TenantID: "t-1"}))
	assert.Error(t, err)
}

func TestValidateRejectsOtherAlgorithms(t *testing.T) {
	cfg := NewConfig("secret", "")
	c := Claims{TenantID: id.New().String()}
	c.Subject = id.New().String()
	c.Issuer = cfg.Issuer
	c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Minute))
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, c).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = NewTokens(cfg).ValidateToken(raw)
	assert.Error(t, err)
}
