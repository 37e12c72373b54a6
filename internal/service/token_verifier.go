package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("access token invalid")
	ErrTokenExpired = errors.New("access token expired")
)

// TokenVerifier valida access tokens HS256 emitidos por el proveedor de identidad externo.
// El claim sub es el id de la cuenta.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier con issuer vacio acepta cualquier emisor.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}
}

func (v *TokenVerifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify devuelve el id de la cuenta del token.
func (v *TokenVerifier) Verify(token string) (string, error) {
	if !v.Enabled() || strings.TrimSpace(token) == "" {
		return "", ErrTokenInvalid
	}
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return "", ErrTokenInvalid
	}
	accountID := strings.TrimSpace(claims.Subject)
	if accountID == "" {
		return "", ErrTokenInvalid
	}
	return accountID, nil
}

// Issue firma un token con el mismo secreto. Lo usan progressctl y los tests.
func (v *TokenVerifier) Issue(accountID string, ttl time.Duration) (string, error) {
	if !v.Enabled() || strings.TrimSpace(accountID) == "" {
		return "", ErrTokenInvalid
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    v.issuer,
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
