// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const ctxKeyRequestID contextKey = "request_id"

// apiKeyHeader carries the caller's API key on protected endpoints.
const apiKeyHeader = "X-API-Key"

// RequestID returns the request ID injected by the middleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// withRequestID assigns each request a UUID and echoes it back to the
// caller for support correlation.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

// adminClaims is the token payload for the admin surface.
type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// MintAdminToken issues an HS256 admin token, used by operator tooling and
// tests. Tokens expire after ttl.
func MintAdminToken(secret, subject string, ttl time.Duration) (string, error) {
	claims := adminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

var errNotAdmin = errors.New("token lacks admin role")

// verifyAdminToken validates an admin bearer token.
func verifyAdminToken(secret, tokenString string) error {
	var claims adminClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return err
	}
	if !token.Valid || claims.Role != "admin" {
		return errNotAdmin
	}
	return nil
}

// requireAdmin guards the admin provisioning endpoints. With no secret
// configured the whole surface is disabled.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminJWTSecret == "" {
			s.writeError(w, r, http.StatusNotFound, "admin interface disabled")
			return
		}

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			s.writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if err := verifyAdminToken(s.cfg.AdminJWTSecret, strings.TrimPrefix(auth, "Bearer ")); err != nil {
			s.log.Warn("", RequestID(r.Context()), "admin token rejected", map[string]interface{}{
				"error": err.Error(),
			})
			s.writeError(w, r, http.StatusForbidden, "invalid admin token")
			return
		}
		next(w, r)
	}
}
