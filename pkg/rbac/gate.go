package rbac

import (
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/estateops/pkg/auth"
)

// ErrForbidden is wrapped by every gate failure
var ErrForbidden = errors.New("forbidden")

// DeniedError describes which requirement rejected the principal
type DeniedError struct {
	Requirement string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("forbidden: %s required", e.Requirement)
}

// Is makes errors.Is(err, ErrForbidden) succeed
func (e *DeniedError) Is(target error) bool {
	return target == ErrForbidden
}

// Detail is the client-safe description of the failure
func (e *DeniedError) Detail() string {
	return e.Requirement + " required"
}

// Requirement is a predicate over an authenticated principal
type Requirement interface {
	// Check returns nil when p satisfies the requirement
	Check(p auth.Principal) error
	String() string
}

type scopeRequirement struct {
	scope auth.Scope
}

// RequireScope demands that the principal's token carries scope
func RequireScope(scope auth.Scope) Requirement {
	return scopeRequirement{scope: scope}
}

func (r scopeRequirement) Check(p auth.Principal) error {
	if !p.HasScope(r.scope) {
		return &DeniedError{Requirement: r.String()}
	}
	return nil
}

func (r scopeRequirement) String() string {
	return fmt.Sprintf("scope %s", r.scope)
}

type roleRequirement struct {
	allowed RoleSet
}

// RequireRoles demands that the principal's role is one of roles
func RequireRoles(roles ...auth.Role) Requirement {
	return roleRequirement{allowed: NewRoleSet(roles...)}
}

// RequireRoleSet demands that the principal's role is in set
func RequireRoleSet(set RoleSet) Requirement {
	return roleRequirement{allowed: set}
}

func (r roleRequirement) Check(p auth.Principal) error {
	if !r.allowed.Contains(p.Role()) {
		return &DeniedError{Requirement: r.String()}
	}
	return nil
}

func (r roleRequirement) String() string {
	return fmt.Sprintf("role in %s", r.allowed)
}

type allRequirement []Requirement

// All is satisfied only when every requirement is. The first failure is
// reported.
func All(reqs ...Requirement) Requirement {
	flat := make(allRequirement, 0, len(reqs))
	for _, r := range reqs {
		if nested, ok := r.(allRequirement); ok {
			flat = append(flat, nested...)
			continue
		}
		if r != nil {
			flat = append(flat, r)
		}
	}
	return flat
}

func (a allRequirement) Check(p auth.Principal) error {
	for _, r := range a {
		if err := r.Check(p); err != nil {
			return err
		}
	}
	return nil
}

func (a allRequirement) String() string {
	parts := make([]string, len(a))
	for i, r := range a {
		parts[i] = r.String()
	}
	return strings.Join(parts, " and ")
}

// Require evaluates reqs against p and hands the principal back on success
// so gates can be chained inline.
func Require(p auth.Principal, reqs ...Requirement) (auth.Principal, error) {
	if p.IsZero() {
		return auth.Principal{}, &DeniedError{Requirement: "authenticated principal"}
	}
	if err := All(reqs...).Check(p); err != nil {
		return auth.Principal{}, err
	}
	return p, nil
}

// Scope shorthands
var (
	ReadScope   = RequireScope(auth.ScopeRead)
	WriteScope  = RequireScope(auth.ScopeWrite)
	DeleteScope = RequireScope(auth.ScopeDelete)
	AdminScope  = RequireScope(auth.ScopeAdmin)
)
