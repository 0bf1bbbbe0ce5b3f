package auth

import (
	"context"
	"fmt"
	"slices"

	"github.com/platinummonkey/estateops/pkg/contextkeys"
)

// Role is the caller's position within its tenant
type Role string

const (
	RoleCustomer Role = "customer" // Read-only external viewer
	RoleEmployee Role = "employee" // Day-to-day staff
	RoleManager  Role = "manager"  // Team lead, HR access
	RoleAdmin    Role = "admin"    // Tenant administrator
	RoleOwner    Role = "owner"    // Account owner
)

// AllRoles lists every role in declaration order
var AllRoles = []Role{RoleCustomer, RoleEmployee, RoleManager, RoleAdmin, RoleOwner}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	return slices.Contains(AllRoles, r)
}

// ParseRole converts a string into a Role
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Scope is an authorization grant carried by a token
type Scope string

const (
	ScopeRead   Scope = "read"
	ScopeWrite  Scope = "write"
	ScopeDelete Scope = "delete"
	ScopeAdmin  Scope = "admin"
)

// AllScopes lists every scope in declaration order
var AllScopes = []Scope{ScopeRead, ScopeWrite, ScopeDelete, ScopeAdmin}

// Valid reports whether s is one of the known scopes
func (s Scope) Valid() bool {
	return slices.Contains(AllScopes, s)
}

// ParseScope converts a string into a Scope
func ParseScope(s string) (Scope, error) {
	sc := Scope(s)
	if !sc.Valid() {
		return "", fmt.Errorf("unknown scope %q", s)
	}
	return sc, nil
}

// TokenKind discriminates access tokens from refresh tokens
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// Valid reports whether k is a known token kind
func (k TokenKind) Valid() bool {
	return k == TokenAccess || k == TokenRefresh
}

// Principal is the authenticated caller of one request.
// The zero value is not a valid principal.
type Principal struct {
	subject  string
	email    string
	role     Role
	tenantID string
	scopes   []Scope
}

// NewPrincipal builds a Principal after checking every field.
func NewPrincipal(subject, email string, role Role, tenantID string, scopes []Scope) (Principal, error) {
	if subject == "" {
		return Principal{}, fmt.Errorf("%w: subject is required", ErrMalformedToken)
	}
	if email == "" {
		return Principal{}, fmt.Errorf("%w: email is required", ErrMalformedToken)
	}
	if !role.Valid() {
		return Principal{}, fmt.Errorf("%w: role %q is not recognised", ErrMalformedToken, role)
	}
	if tenantID == "" {
		return Principal{}, fmt.Errorf("%w: tenant_id is required", ErrMalformedToken)
	}
	granted := make([]Scope, 0, len(scopes))
	for _, s := range scopes {
		if !s.Valid() {
			return Principal{}, fmt.Errorf("%w: scope %q is not recognised", ErrMalformedToken, s)
		}
		if !slices.Contains(granted, s) {
			granted = append(granted, s)
		}
	}
	return Principal{
		subject:  subject,
		email:    email,
		role:     role,
		tenantID: tenantID,
		scopes:   granted,
	}, nil
}

func (p Principal) Subject() string  { return p.subject }
func (p Principal) Email() string    { return p.email }
func (p Principal) Role() Role       { return p.role }
func (p Principal) TenantID() string { return p.tenantID }

// Scopes returns a copy of the granted scopes
func (p Principal) Scopes() []Scope {
	return slices.Clone(p.scopes)
}

// HasScope checks if the principal was granted the given scope.
// Scopes are independent: admin does not imply read, write or delete.
func (p Principal) HasScope(scope Scope) bool {
	return slices.Contains(p.scopes, scope)
}

// IsZero reports whether p was never populated
func (p Principal) IsZero() bool {
	return p.subject == ""
}

// WithPrincipal stores the principal in the request context
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextkeys.PrincipalKey, p)
}

// PrincipalFromContext returns the principal stored by the auth middleware
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(Principal)
	if !ok || p.IsZero() {
		return Principal{}, false
	}
	return p, true
}
