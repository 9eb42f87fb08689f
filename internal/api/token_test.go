package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/store"
)

func TestTokenRoundTrip(t *testing.T) {
	ts := NewTokenService("secret", time.Minute, zap.NewNop())
	user := store.NewUser()
	user.Email = "jdoe@acme.org"
	user.Name = "John Doe"

	token, err := ts.Generate(user)
	require.NoError(t, err)

	claims, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, "jdoe@acme.org", claims.Email)
	assert.Equal(t, "John Doe", claims.Name)
}

func TestTokenExpired(t *testing.T) {
	ts := NewTokenService("secret", -time.Minute, zap.NewNop())
	token, err := ts.Generate(store.NewUser())
	require.NoError(t, err)

	_, err = ts.Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-a", time.Minute, zap.NewNop())
	verifier := NewTokenService("secret-b", time.Minute, zap.NewNop())

	token, err := issuer.Generate(store.NewUser())
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenGarbage(t *testing.T) {
	ts := NewTokenService("secret", time.Minute, zap.NewNop())
	_, err := ts.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
