// Package auth provides HTTP middleware for bearer token authentication.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// NewAuthMiddleware returns an HTTP middleware that enforces bearer token
// authentication on the MCP endpoint. If token is empty, authentication is
// disabled and all requests pass through unconditionally.
//
// When enabled, requests must carry exactly:
//
//	Authorization: Bearer <token>
//
// The "Bearer" prefix is case-sensitive and followed by exactly one space.
// Rejected requests get a 401 with a WWW-Authenticate challenge and never
// reach next.
func NewAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validBearer(r.Header.Get("Authorization"), token) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="nut-mcp"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// validBearer compares in constant time so response timing does not leak
// how much of the token matched.
func validBearer(header, token string) bool {
	if !strings.HasPrefix(header, bearerPrefix) {
		return false
	}
	provided := header[len(bearerPrefix):]
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(token)) == 1
}
