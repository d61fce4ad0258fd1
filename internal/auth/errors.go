package auth

import "errors"

var (
	// ErrInvalidCredentials covers bad email, bad password and inactive
	// accounts alike. The three cases are deliberately indistinguishable at
	// every boundary to prevent account enumeration.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid covers expired, revoked, malformed and unknown tokens
	// uniformly, for the same reason.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrRoleUnknown reports a role name the canonicalizer does not recognize.
	ErrRoleUnknown = errors.New("auth: unrecognized role name")

	// ErrDuplicateAssignment reports an existing (user, department, role)
	// triple. Callers treat it as an idempotency signal, not a failure.
	ErrDuplicateAssignment = errors.New("auth: role already assigned")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
	ErrInvalidInput = errors.New("auth: invalid input")
)
