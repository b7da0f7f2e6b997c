package policy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"go-identity-service/internal/model"
)

func newTestPolicy() *Policy {
	return New(Config{
		PublicPrefixes: []string{"/health", "/api/v1/auth/login", "/api/v1/auth/register"},
		RolePrefixes:   map[string]model.Role{"/api/v1/admin": model.RoleAdmin},
	})
}

func TestDecide(t *testing.T) {
	t.Parallel()

	admin := &model.Claims{Subject: "root", Role: model.RoleAdmin}
	user := &model.Claims{Subject: "alice", Role: model.RoleUser}

	t.Run("public prefixes allow without identity", func(t *testing.T) {
		p := newTestPolicy()

		require.True(t, p.Decide("/health", http.MethodGet, nil).Allow)
		require.True(t, p.Decide("/api/v1/auth/login", http.MethodPost, nil).Allow)
	})

	t.Run("public prefixes allow regardless of identity", func(t *testing.T) {
		p := newTestPolicy()

		require.True(t, p.Decide("/api/v1/auth/login", http.MethodPost, user).Allow)
	})

	t.Run("everything else needs an authenticated identity", func(t *testing.T) {
		p := newTestPolicy()

		decision := p.Decide("/api/v1/auth/me", http.MethodGet, nil)
		require.False(t, decision.Allow)
		require.Equal(t, ReasonUnauthenticated, decision.Reason)
	})

	t.Run("role-restricted prefixes need the matching role", func(t *testing.T) {
		p := newTestPolicy()

		denied := p.Decide("/api/v1/admin/users", http.MethodGet, user)
		require.False(t, denied.Allow)
		require.Equal(t, ReasonForbidden, denied.Reason)

		require.True(t, p.Decide("/api/v1/admin/users", http.MethodGet, admin).Allow)
	})

	t.Run("authenticated identity passes unrestricted paths", func(t *testing.T) {
		p := newTestPolicy()

		require.True(t, p.Decide("/api/v1/auth/me", http.MethodGet, user).Allow)
	})

	t.Run("path matching is case-insensitive", func(t *testing.T) {
		p := newTestPolicy()

		require.True(t, p.Decide("/HEALTH", http.MethodGet, nil).Allow)
		require.False(t, p.Decide("/API/V1/ADMIN/users", http.MethodGet, user).Allow)
	})

	t.Run("is deterministic for repeated calls", func(t *testing.T) {
		p := newTestPolicy()

		first := p.Decide("/api/v1/admin/users", http.MethodGet, user)
		for i := 0; i < 10; i++ {
			require.Equal(t, first, p.Decide("/api/v1/admin/users", http.MethodGet, user))
		}
	})
}
