package auth

import (
	"context"

	"interchee.org/internal/role"
)

// Evaluator decides whether a principal may act as a role within a
// department. It is invoked on every protected request and therefore never
// panics and never turns a bad role name into an error: it denies.
type Evaluator struct {
	roles RoleAssignmentStore
}

// NewEvaluator constructs an Evaluator over the assignment store.
func NewEvaluator(roles RoleAssignmentStore) *Evaluator {
	return &Evaluator{roles: roles}
}

// Authorize grants access when the principal either carries the global Admin
// super-role or holds the canonicalized required role in the department.
// A store failure is returned as an error (the caller maps it to a 500);
// everything else is a plain allow/deny.
func (e *Evaluator) Authorize(ctx context.Context, p Principal, requiredRole string, departmentID int64) (bool, error) {
	// A global Admin is never blocked by missing department rows.
	if p.HasGlobalRole(role.Admin) {
		return true, nil
	}
	if p.UserID == "" {
		return false, nil
	}
	canonical, ok := role.Canonical(requiredRole)
	if !ok {
		return false, nil
	}
	return e.roles.HasRole(ctx, p.UserID, departmentID, canonical)
}
