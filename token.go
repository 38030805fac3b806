// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	errTokenMissing = fmt.Errorf("%w: missing bearer token", errUnauthenticated)
	errTokenInvalid = fmt.Errorf("%w: invalid token", errUnauthenticated)
	errTokenExpired = fmt.Errorf("%w: token has expired", errUnauthenticated)
	errTokenRevoked = fmt.Errorf("%w: token has been revoked", errUnauthenticated)
)

// tokenClaims is the payload of every session token we sign.
//
// Subject holds the account id and ID (jti) is unique per token so a single
// token can be revoked on logout.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  role   `json:"role"`
}

func (c *tokenClaims) subject() string {
	return c.Subject
}

// tokenService signs and verifies HS256 session tokens with a process-wide key.
type tokenService struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func newTokenService(key string, ttl time.Duration) *tokenService {
	return &tokenService{
		key: []byte(key),
		ttl: ttl,
		now: time.Now,
	}
}

// issue creates a token for the given account which expires after the
// configured TTL (24 hours by default).
func (ts *tokenService) issue(subjectID, email string, r role) (string, *tokenClaims, error) {
	if subjectID == "" {
		return "", nil, errors.New("token subject is required")
	}
	now := ts.now().UTC()
	claims := &tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		Email: email,
		Role:  r,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	tokenGenerations.With("method", "jwt").Add(1)
	return signed, claims, nil
}

// verify checks the signature and expiry of raw and returns its claims.
func (ts *tokenService) verify(raw string) (*tokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errTokenMissing
	}

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return ts.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, errTokenInvalid
	}
	if _, err := parseRole(string(claims.Role)); err != nil {
		return nil, errTokenInvalid
	}
	return &claims, nil
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return errTokenExpired
	}
	return errTokenInvalid
}

// remaining returns how long until claims expire, never negative.
func (ts *tokenService) remaining(claims *tokenClaims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	if d := claims.ExpiresAt.Time.Sub(ts.now()); d > 0 {
		return d
	}
	return 0
}
