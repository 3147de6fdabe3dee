// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carestore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mobiletoly/go-carequeue/internal/auth"
)

const jwtIssuer = "go-carequeue"

// JWTAuth issues and verifies HS256 bearer tokens.
type JWTAuth struct {
	secret []byte
	now    func() time.Time
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret), now: time.Now}
}

// JWTClaims identifies one user on one device. The user id is the standard
// sub claim.
type JWTClaims struct {
	DeviceID string `json:"did"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken mints a token for userID on deviceID. An empty role means
// RoleUser.
func (j *JWTAuth) GenerateToken(userID, deviceID, role string, expiration time.Duration) (string, time.Time, error) {
	if role == "" {
		role = RoleUser
	}
	now := j.now()
	exp := now.Add(expiration)
	claims := &JWTClaims{
		DeviceID: deviceID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    jwtIssuer,
			Subject:   userID,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	return token, exp, err
}

// ValidateToken verifies signature, time claims and required fields.
func (j *JWTAuth) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now), jwt.WithIssuer(jwtIssuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing sub (user ID) in token")
	}
	if claims.DeviceID == "" {
		return nil, fmt.Errorf("missing did (device ID) in token")
	}
	if claims.Role != RoleUser && claims.Role != RoleAdmin {
		return nil, fmt.Errorf("unknown role %q in token", claims.Role)
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("authorization header required")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", fmt.Errorf("bearer token required")
	}
	return token, nil
}

// Middleware rejects requests without a valid token and stores the caller's
// identity in the request context.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeUnauthenticated, err.Error())
			return
		}
		claims, err := j.ValidateToken(token)
		if err != nil {
			prefix := token
			if len(prefix) > 20 {
				prefix = prefix[:20]
			}
			slog.Warn("JWT validation failed", "error", err, "token_prefix", prefix)
			writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "invalid token")
			return
		}
		ctx := auth.WithIdentity(r.Context(), auth.Identity{
			UserID:   claims.Subject,
			DeviceID: claims.DeviceID,
			Role:     claims.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFrom returns the caller stored by Middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return Principal{}, false
	}
	return Principal{UserID: id.UserID, DeviceID: id.DeviceID, Role: id.Role}, true
}
