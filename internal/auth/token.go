// ABOUTME: JWT token issuing and verification for the dashboard login
// ABOUTME: Uses HS256 signing with the configured secret; "sub" carries the username

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

// DefaultTokenTTL is how long a login token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrShortSecret  = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (username string, err error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrShortSecret
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify validates the token and extracts the username from the "sub" claim
func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

// Generate creates a new JWT token for username with expiration
func (v *JWTVerifier) Generate(username string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
