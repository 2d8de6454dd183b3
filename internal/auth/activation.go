package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ActivationClaims are carried by account activation links.
type ActivationClaims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

// NewActivationToken signs an activation token for userID valid for ttl.
func NewActivationToken(secret string, userID uint, ttl time.Duration, now time.Time) (string, error) {
	claims := &ActivationClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign activation token: %w", err)
	}
	return signed, nil
}

// ParseActivationToken validates an activation token and returns its user ID.
// Expired tokens yield ErrTokenExpired, anything else unusable ErrInvalidToken.
func ParseActivationToken(secret, tokenString string) (uint, error) {
	claims := &ActivationClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrInvalidToken
	}
	if !token.Valid || claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}
