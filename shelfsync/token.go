// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by sync tokens. The device id identifies the installation,
// the registered subject identifies the user.
type Claims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// TokenSource mints and caches HS256 bearer tokens for the sync endpoints.
// Its Token method satisfies TokenFunc.
type TokenSource struct {
	secret   []byte
	userID   string
	deviceID string
	ttl      time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	nowFn     func() time.Time
}

// NewTokenSource creates a token source for one signed-in user on one device.
func NewTokenSource(secret, userID, deviceID string, ttl time.Duration) *TokenSource {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenSource{
		secret:   []byte(secret),
		userID:   userID,
		deviceID: deviceID,
		ttl:      ttl,
		nowFn:    time.Now,
	}
}

// Token returns a valid bearer token, reusing the cached one until it nears
// expiry.
func (t *TokenSource) Token(_ context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFn()
	if t.token != "" && now.Before(t.expiresAt.Add(-30*time.Second)) {
		return t.token, nil
	}

	expiresAt := now.Add(t.ttl)
	claims := &Claims{
		DeviceID: t.deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   t.userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	t.token = signed
	t.expiresAt = expiresAt
	return signed, nil
}
