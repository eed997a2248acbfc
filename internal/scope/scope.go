// Package scope decides which classes a principal may act on. Admins are
// unrestricted; teachers see exactly their assigned classes, and a teacher
// with no assignments sees nothing.
package scope

import (
	"context"
	"sort"
)

// Role is the coarse permission level carried by a principal token.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
)

// Principal is the authenticated identity behind a request.
type Principal struct {
	ID   string
	Role Role
}

// AssignmentSource looks up the classes assigned to a principal.
type AssignmentSource interface {
	ListAssignedClasses(ctx context.Context, principalID string) ([]string, error)
}

// Scope is a resolved access set: either unrestricted or an explicit set of
// class names. It is computed per request and never persisted.
type Scope struct {
	all     bool
	classes map[string]struct{}
}

// Unrestricted returns the scope that allows every class.
func Unrestricted() Scope {
	return Scope{all: true}
}

// RestrictedTo returns a scope allowing exactly the given classes.
func RestrictedTo(classes []string) Scope {
	set := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		set[c] = struct{}{}
	}
	return Scope{classes: set}
}

// IsUnrestricted reports whether the scope places no class limit.
func (s Scope) IsUnrestricted() bool { return s.all }

// Allows reports whether the scope authorizes the given class.
func (s Scope) Allows(className string) bool {
	if s.all {
		return true
	}
	_, ok := s.classes[className]
	return ok
}

// Classes returns the allowed class names in sorted order. Empty and
// meaningless for unrestricted scopes; callers check IsUnrestricted first.
func (s Scope) Classes() []string {
	out := make([]string, 0, len(s.classes))
	for c := range s.classes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Resolver turns a principal into its access scope.
type Resolver struct {
	assignments AssignmentSource
}

// NewResolver builds a resolver over the given assignment source.
func NewResolver(assignments AssignmentSource) *Resolver {
	return &Resolver{assignments: assignments}
}

// Resolve returns Unrestricted for admins and the principal's assigned
// classes otherwise. An unassigned teacher resolves to an empty set, never
// to unrestricted.
func (r *Resolver) Resolve(ctx context.Context, p Principal) (Scope, error) {
	if p.Role == RoleAdmin {
		return Unrestricted(), nil
	}
	classes, err := r.assignments.ListAssignedClasses(ctx, p.ID)
	if err != nil {
		return Scope{}, err
	}
	return RestrictedTo(classes), nil
}
