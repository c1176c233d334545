package objectstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Pre-authorized write targets. The orchestrator mints a token scoped to a
// single object key; the upload endpoint accepts a PUT only with a valid,
// unexpired token. This is the local-store stand-in for an S3 presigned URL.

type uploadClaims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

// DefaultUploadTTL is how long an upload token stays valid.
const DefaultUploadTTL = time.Hour

type UploadSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewUploadSigner(secret string, ttl time.Duration) *UploadSigner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &UploadSigner{secret: []byte(secret), ttl: ttl}
}

// Sign returns a token authorizing exactly one PUT to the given key.
func (s *UploadSigner) Sign(key string) (string, error) {
	claims := uploadClaims{
		Key: key,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify returns the object key a token authorizes writing to.
func (s *UploadSigner) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &uploadClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*uploadClaims)
	if !ok || !token.Valid || claims.Key == "" {
		return "", errors.New("invalid upload token")
	}
	return claims.Key, nil
}
