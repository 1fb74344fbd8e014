// Package auth holds user accounts and the role policy that decides what
// each role may do.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"cultivate/internal/config"
)

var (
	ErrUnknownRole          = errors.New("unknown role")
	ErrNoDefaultRole        = errors.New("no default role configured")
	ErrMultipleDefaultRoles = errors.New("more than one default role")
	ErrForbidden            = errors.New("permission denied")
)

// Policy maps roles to permissions.
type Policy struct {
	roles       map[string]config.RoleConfig
	defaultRole string
}

// NewPolicy validates the role table. At most one role may be the default.
func NewPolicy(roles map[string]config.RoleConfig) (*Policy, error) {
	p := &Policy{roles: make(map[string]config.RoleConfig, len(roles))}
	for _, name := range sortedRoleNames(roles) {
		rc := roles[name]
		if rc.IsDefault {
			if p.defaultRole != "" {
				return nil, fmt.Errorf("%w: %s and %s", ErrMultipleDefaultRoles, p.defaultRole, name)
			}
			p.defaultRole = name
		}
		rc.Permissions = slices.Clone(rc.Permissions)
		p.roles[name] = rc
	}
	return p, nil
}

// HasRole reports whether the role is configured.
func (p *Policy) HasRole(role string) bool {
	_, ok := p.roles[role]
	return ok
}

// Roles lists role names in sorted order.
func (p *Policy) Roles() []string {
	return sortedRoleNames(p.roles)
}

// DefaultRole returns the role given to users created without one.
func (p *Policy) DefaultRole() (string, error) {
	if p.defaultRole == "" {
		return "", ErrNoDefaultRole
	}
	return p.defaultRole, nil
}

// ResolveRole maps an empty role to the default and rejects unknown roles.
func (p *Policy) ResolveRole(role string) (string, error) {
	if role == "" {
		return p.DefaultRole()
	}
	if !p.HasRole(role) {
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return role, nil
}

// Allows reports whether role grants permission. Implicit-allow roles grant
// everything.
func (p *Policy) Allows(role, permission string) bool {
	rc, ok := p.roles[role]
	if !ok {
		return false
	}
	return rc.ImplicitAllow || slices.Contains(rc.Permissions, permission)
}

// Guard enforces the policy once enabled. A disabled guard lets everything
// through, which is the state of an instance bootstrapped without an admin.
type Guard struct {
	policy  *Policy
	enabled bool
}

func NewGuard(policy *Policy, enabled bool) *Guard {
	return &Guard{policy: policy, enabled: enabled}
}

func (g *Guard) Enabled() bool { return g.enabled }

// Check returns ErrForbidden when the guard is enabled and role lacks permission.
func (g *Guard) Check(role, permission string) error {
	if !g.enabled || g.policy.Allows(role, permission) {
		return nil
	}
	return fmt.Errorf("%w: role %q lacks %s", ErrForbidden, role, permission)
}

func sortedRoleNames(roles map[string]config.RoleConfig) []string {
	names := make([]string, 0, len(roles))
	for name := range roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
