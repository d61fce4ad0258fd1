package auth

import "context"

// The persistence surface is split into independent interfaces: refresh
// credentials and role assignments are unrelated record types that happen to
// share a database, not a hierarchy. Each is testable on its own.

// CredentialStore manages the refresh-credential lifecycle.
type CredentialStore interface {
	// Create persists a new credential. A token-hash collision surfaces as
	// ErrConflict so the caller can regenerate and retry.
	Create(ctx context.Context, cred *RefreshCredential) error

	// GetValid returns the credential for the opaque token only if it is
	// unrevoked and unexpired. Unknown, revoked and expired tokens are
	// indistinguishable: all return ErrNotFound from the same single query.
	GetValid(ctx context.Context, token string) (*RefreshCredential, error)

	// Revoke marks the credential revoked. Idempotent: revoking a revoked or
	// nonexistent token succeeds silently.
	Revoke(ctx context.Context, token string) error

	// Consume revokes the credential only if it is still active, as one
	// compare-and-swap write. Exactly one of N concurrent callers succeeds;
	// the rest get ErrTokenInvalid. Used by rotation.
	Consume(ctx context.Context, token string) error

	// RevokeAllActiveForUser revokes every presently valid credential of the
	// user in one atomic update with a single captured timestamp, and
	// returns how many rows it touched.
	RevokeAllActiveForUser(ctx context.Context, userID string) (int64, error)
}

// RoleAssignmentStore manages department-scoped role assignments.
type RoleAssignmentStore interface {
	// Assign creates the (user, department, role) triple. An existing triple
	// surfaces as ErrDuplicateAssignment; a missing user or department as
	// ErrNotFound.
	Assign(ctx context.Context, a DepartmentRole) (DepartmentRole, error)

	// Unassign removes the triple. Idempotent.
	Unassign(ctx context.Context, userID string, departmentID int64, roleName string) error

	HasRole(ctx context.Context, userID string, departmentID int64, roleName string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]DepartmentRole, error)
}

// UserStore manages accounts and their global roles.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	// FindByEmail matches case-insensitively.
	FindByEmail(ctx context.Context, email string) (*User, error)
	GlobalRoles(ctx context.Context, userID string) ([]string, error)
	SetPassword(ctx context.Context, userID, passwordHash string) error
}

// DepartmentStore exposes the department lookups the core needs.
type DepartmentStore interface {
	Exists(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context) ([]Department, error)
}
