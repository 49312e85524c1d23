package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

type Claims struct {
	UserID string `json:"user_id"`
	Use    string `json:"use"`
	jwt.RegisteredClaims
}

var signedStringFn = (*jwt.Token).SignedString

func signToken(secret []byte, userID, use string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		UserID: userID,
		Use:    use,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := signedStringFn(jwt.NewWithClaims(jwt.SigningMethodHS256, claims), secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", use, err)
	}
	return signed, nil
}

// parseToken verifies an HS256 token and checks that it was issued for use.
func parseToken(secret []byte, token, use string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" || claims.Use != use {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
