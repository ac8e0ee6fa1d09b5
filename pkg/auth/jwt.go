// Package auth signs webhook deliveries so callbacks can check where a request came from.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var ErrInvalidToken = errors.New("invalid delivery token")

// DefaultTTL bounds how long a delivery token stays valid.
const DefaultTTL = 5 * time.Minute

type Claims struct {
	Webhook    string `json:"webhook"`
	Channel    string `json:"channel"`
	BodySHA256 string `json:"body_sha256"`
	jwt.RegisteredClaims
}

// BodyDigest is the hex SHA-256 of a delivery body.
func BodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// SignDelivery creates an HS256 token binding the webhook, its channel and the exact body.
func SignDelivery(secret, webhook, channel string, body []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	claims := &Claims{
		Webhook:    webhook,
		Channel:    channel,
		BodySHA256: BodyDigest(body),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "unable to sign delivery token")
	}
	return signed, nil
}

// VerifyDelivery parses a delivery token and checks that it was issued for body.
func VerifyDelivery(secret, tokenString string, body []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.BodySHA256 != BodyDigest(body) {
		return nil, errors.Wrap(ErrInvalidToken, "body digest mismatch")
	}

	return claims, nil
}
