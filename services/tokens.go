package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const verifyPurpose = "email_verify"

// ErrInvalidCredential covers expired, malformed and wrong-purpose tokens.
var ErrInvalidCredential = errors.New("invalid or expired verification credential")

// TokenService mints and consumes the time-bounded email-verification
// credential. HS256, purpose-scoped, ~2 day lifetime.
type TokenService struct {
	Secret []byte
	TTL    time.Duration
}

func NewTokenService() *TokenService {
	secret := os.Getenv("VERIFY_TOKEN_SECRET")
	if secret == "" {
		log.Fatal("❌ VERIFY_TOKEN_SECRET environment variable not set")
	}
	return &TokenService{
		Secret: []byte(secret),
		TTL:    48 * time.Hour,
	}
}

func (t *TokenService) Issue(accountID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     accountID,
		"purpose": verifyPurpose,
		"iat":     now.Unix(),
		"exp":     now.Add(t.TTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
}

// Consume validates the credential and returns the account id it was bound to.
func (t *TokenService) Consume(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidCredential
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCredential
	}
	if purpose, _ := claims["purpose"].(string); purpose != verifyPurpose {
		return "", ErrInvalidCredential
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidCredential
	}
	return sub, nil
}
