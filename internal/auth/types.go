package auth

import (
	"strings"
	"time"
)

// User is an account known to the identity core. Identity fields are
// immutable once created; only the password hash and the active flag change.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	UserName     string    `json:"userName"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	MiddleName   string    `json:"middleName,omitempty"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"isActive"`
	GlobalRoles  []string  `json:"globalRoles,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RefreshCredential is one issued session. The opaque token handed to the
// client is never stored; only its SHA-256 hash is. A credential is valid iff
// RevokedAt is nil and the clock has not passed ExpiresAt. Records are never
// deleted; revocation is the only mutation and it is one-way.
type RefreshCredential struct {
	ID          string
	UserID      string
	TokenHash   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
	CreatedByIP string
}

// Valid reports whether the credential is usable at the given instant.
func (c *RefreshCredential) Valid(now time.Time) bool {
	return c.RevokedAt == nil && now.Before(c.ExpiresAt)
}

// DepartmentRole states that a user holds a canonical role within one
// department. The (user, department, role) triple is unique.
type DepartmentRole struct {
	UserID       string    `json:"userId"`
	DepartmentID int64     `json:"departmentId"`
	RoleName     string    `json:"roleName"`
	AssignedAt   time.Time `json:"assignedAt"`
}

// Department is an organizational unit that scopes role assignments.
type Department struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code,omitempty"`
	IsActive bool   `json:"isActive"`
}

// TokenPair carries the result of a login or rotation.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Principal is the verified identity attached to a request. Roles is the
// global-role snapshot baked into the access token at issuance time; role
// changes become visible on the next issuance, not before.
type Principal struct {
	UserID   string
	Email    string
	UserName string
	Roles    []string
}

// HasGlobalRole checks the token-carried global roles, case-insensitively.
func (p Principal) HasGlobalRole(name string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}
