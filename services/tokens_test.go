package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := &TokenService{Secret: []byte("test-secret"), TTL: time.Hour}

	token, err := svc.Issue("acct-123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	accountID, err := svc.Consume(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-123", accountID)
}

func TestTokenExpired(t *testing.T) {
	svc := &TokenService{Secret: []byte("test-secret"), TTL: -time.Hour}

	token, err := svc.Issue("acct-123")
	require.NoError(t, err)

	_, err = svc.Consume(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := &TokenService{Secret: []byte("secret-a"), TTL: time.Hour}
	consumer := &TokenService{Secret: []byte("secret-b"), TTL: time.Hour}

	token, err := issuer.Issue("acct-123")
	require.NoError(t, err)

	_, err = consumer.Consume(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestTokenWrongPurposeRejected(t *testing.T) {
	svc := &TokenService{Secret: []byte("test-secret"), TTL: time.Hour}

	claims := jwt.MapClaims{
		"sub":     "acct-123",
		"purpose": "password_reset",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.Secret)
	require.NoError(t, err)

	_, err = svc.Consume(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestTokenGarbageRejected(t *testing.T) {
	svc := &TokenService{Secret: []byte("test-secret"), TTL: time.Hour}

	_, err := svc.Consume("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.Consume("")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}
