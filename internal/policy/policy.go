package policy

import (
	"strings"

	"go-identity-service/internal/model"
)

type DenyReason string

const (
	ReasonUnauthenticated DenyReason = "unauthenticated"
	ReasonForbidden       DenyReason = "forbidden"
)

type Decision struct {
	Allow  bool
	Reason DenyReason
}

var allow = Decision{Allow: true}

func deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

type Config struct {
	// PublicPrefixes are path prefixes served without identity.
	PublicPrefixes []string
	// RolePrefixes maps a path prefix to the role it requires on top of
	// authentication. Longest-prefix wins when prefixes overlap.
	RolePrefixes map[string]model.Role
}

// Policy decides allow/deny from the request path, method and established
// identity. It is a pure function of its static configuration: no side
// effects, no per-request state.
type Policy struct {
	public       []string
	rolePrefixes map[string]model.Role
}

func New(cfg Config) *Policy {
	public := make([]string, 0, len(cfg.PublicPrefixes))
	for _, prefix := range cfg.PublicPrefixes {
		public = append(public, strings.ToLower(strings.TrimSpace(prefix)))
	}

	rolePrefixes := make(map[string]model.Role, len(cfg.RolePrefixes))
	for prefix, role := range cfg.RolePrefixes {
		rolePrefixes[strings.ToLower(strings.TrimSpace(prefix))] = role
	}

	return &Policy{public: public, rolePrefixes: rolePrefixes}
}

func (p *Policy) Decide(path string, method string, identity *model.Claims) Decision {
	normalized := strings.ToLower(path)
	_ = method // every current rule is method-agnostic

	for _, prefix := range p.public {
		if strings.HasPrefix(normalized, prefix) {
			return allow
		}
	}

	if identity == nil {
		return deny(ReasonUnauthenticated)
	}

	required, restricted := p.requiredRole(normalized)
	if restricted && identity.Role != required {
		return deny(ReasonForbidden)
	}

	return allow
}

func (p *Policy) requiredRole(path string) (model.Role, bool) {
	var (
		best    string
		role    model.Role
		matched bool
	)
	for prefix, required := range p.rolePrefixes {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
			role = required
			matched = true
		}
	}
	return role, matched
}
