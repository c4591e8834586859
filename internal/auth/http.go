// ABOUTME: HTTP middleware for JWT authentication on API and WebSocket endpoints
// ABOUTME: Reads the bearer token (or ?token= for browser sockets) and adds the user to context

package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// TokenFromRequest returns the bearer token, falling back to the token
// query parameter that browsers use when opening a WebSocket.
func TokenFromRequest(r *http.Request) (string, string) {
	if q := r.URL.Query().Get("token"); q != "" && r.Header.Get("Authorization") == "" {
		return q, ""
	}
	return extractBearerToken(r.Header.Get("Authorization"))
}

// Authenticate verifies the request's token and returns the identity.
func Authenticate(r *http.Request, verifier TokenVerifier) (*AuthContext, int, string) {
	token, errMsg := TokenFromRequest(r)
	if errMsg != "" {
		return nil, http.StatusUnauthorized, errMsg
	}

	username, err := verifier.Verify(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return nil, http.StatusUnauthorized, "token expired"
		}
		return nil, http.StatusUnauthorized, "invalid token"
	}

	return &AuthContext{Username: username, Token: token}, http.StatusOK, ""
}

// HTTPAuthMiddleware creates an HTTP middleware that rejects requests
// without a valid token and adds AuthContext to the request context.
func HTTPAuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, status, errMsg := Authenticate(r, verifier)
			if authCtx == nil {
				writeJSONError(w, status, errMsg)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
