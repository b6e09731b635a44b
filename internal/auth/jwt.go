// Package auth issues and checks the bearer tokens that guard the interaction review endpoints.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ReviewerRole = "reviewer"

	roleClaim = "role"
)

var ErrInvalidToken = errors.New("invalid token")

// GenerateJWT signs a reviewer token for subject that expires after ttl.
func GenerateJWT(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("token subject is empty")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     subject,
		roleClaim: ReviewerRole,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateJWT checks signature, expiry and role, and returns the token subject.
func ValidateJWT(secret, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if role, _ := claims[roleClaim].(string); role != ReviewerRole {
		return "", fmt.Errorf("%w: missing reviewer role", ErrInvalidToken)
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return subject, nil
}
