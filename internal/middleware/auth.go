package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"go-identity-service/internal/model"
	"go-identity-service/internal/policy"
)

type tokenValidator interface {
	Validate(token string) (*model.Claims, error)
}

type contextKey string

const (
	identityContextKey contextKey = "identity"
	clientIPContextKey contextKey = "client_ip"
)

// AuthMiddleware is the per-request gatekeeper. Authenticate classifies
// every request exactly once — anonymous, authenticated, or rejected —
// and Enforce applies the access policy to the outcome.
type AuthMiddleware struct {
	validator tokenValidator
	policy    *policy.Policy
}

func NewAuthMiddleware(validator tokenValidator, p *policy.Policy) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, policy: p}
}

// Authenticate extracts the bearer credential if one is present. A request
// without a token proceeds anonymous; public endpoints rely on that. A
// request with an invalid token is rejected here and never reaches a
// handler.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientIPContextKey, extractClientIP(r))

		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeDenied(w, http.StatusUnauthorized, "UNAUTHORIZED", "malformed authorization header")
			return
		}

		claims, err := m.validator.Validate(strings.TrimSpace(header[7:]))
		if err != nil {
			message := "invalid token"
			if errors.Is(err, model.ErrTokenExpired) {
				message = "token expired"
			}
			writeDenied(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
			return
		}

		ctx = context.WithValue(ctx, identityContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Enforce applies the configured access policy to the identity Authenticate
// established (or didn't).
func (m *AuthMiddleware) Enforce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())

		decision := m.policy.Decide(r.URL.Path, r.Method, identity)
		if decision.Allow {
			next.ServeHTTP(w, r)
			return
		}

		switch decision.Reason {
		case policy.ReasonForbidden:
			writeDenied(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
		default:
			writeDenied(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		}
	})
}

func IdentityFromContext(ctx context.Context) (*model.Claims, bool) {
	claims, ok := ctx.Value(identityContextKey).(*model.Claims)
	return claims, ok
}

// ClientIPFromContext exposes the caller network origin recorded alongside
// the identity. Audit-only: it never feeds an authorization decision.
func ClientIPFromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPContextKey).(string)
	return ip, ok
}

func writeDenied(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    code,
			Message: message,
		},
	})
}

func extractClientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}
	return r.RemoteAddr
}
