// Package middleware provides the HTTP request filters for the bank API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bloxify/blxbank/internal/logging"
)

// Roles carried in bank API tokens.
const (
	RoleAccount = "account"
	RoleAdmin   = "admin"
)

// Claims is the JWT payload for bank API tokens. AccountKey identifies the
// ledger account acting through this request.
type Claims struct {
	AccountKey string `json:"account_key"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates bearer tokens and injects the caller identity into the
// request context.
type Auth struct {
	secret []byte
	skip   map[string]bool
	log    *logging.Logger
}

// NewAuth creates the auth filter. Paths in skip are served without a token.
func NewAuth(secret string, skip ...string) *Auth {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return &Auth{
		secret: []byte(secret),
		skip:   skipped,
		log:    logging.New("auth"),
	}
}

// Handler wraps next with bearer-token authentication.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), logging.RequestIDKey, uuid.NewString())

		if a.skip[r.URL.Path] {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			unauthorized(w, "missing bearer token")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			a.log.WithError(err).Debug("token rejected")
			unauthorized(w, "invalid token")
			return
		}
		if claims.AccountKey == "" {
			unauthorized(w, "token missing account key")
			return
		}

		ctx = context.WithValue(ctx, logging.AccountKey, claims.AccountKey)
		ctx = context.WithValue(ctx, logging.RoleKey, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IssueToken signs a token for the given account and role. Used by tests and
// local tooling.
func (a *Auth) IssueToken(accountKey, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountKey: accountKey,
		Role:       role,
	})
	return token.SignedString(a.secret)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
