package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"interchee.org/internal/ids"
	"interchee.org/internal/role"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var (
	_ CredentialStore     = (*PGCredentialStore)(nil)
	_ RoleAssignmentStore = (*PGRoleAssignmentStore)(nil)
	_ UserStore           = (*PGUserStore)(nil)
	_ DepartmentStore     = (*PGDepartmentStore)(nil)
)

// PGCredentialStore persists refresh credentials in PostgreSQL. All writes
// are single statements, so atomicity comes from the database rather than
// any in-process locking; multiple service instances can share one table.
type PGCredentialStore struct {
	db *sql.DB
}

func NewPGCredentialStore(db *sql.DB) *PGCredentialStore { return &PGCredentialStore{db: db} }

func (s *PGCredentialStore) Create(ctx context.Context, cred *RefreshCredential) error {
	if cred.ID == "" {
		cred.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens(id, user_id, token_hash, issued_at, expires_at, created_by_ip)
		values ($1, $2, $3, $4, $5, nullif($6, ''))
	`, cred.ID, cred.UserID, cred.TokenHash, cred.IssuedAt, cred.ExpiresAt, cred.CreatedByIP)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return ErrConflict
			case pgErrForeignKeyViolation:
				return ErrNotFound
			}
		}
		return err
	}
	return nil
}

// GetValid is one query whose predicate folds "unknown", "revoked" and
// "expired" into the same empty result, so callers cannot tell them apart.
func (s *PGCredentialStore) GetValid(ctx context.Context, token string) (*RefreshCredential, error) {
	var (
		cred      RefreshCredential
		revokedAt sql.NullTime
		clientIP  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, issued_at, expires_at, revoked_at, created_by_ip
		from refresh_tokens
		where token_hash = $1 and revoked_at is null and expires_at > now()
	`, HashRefreshToken(token)).Scan(
		&cred.ID, &cred.UserID, &cred.TokenHash, &cred.IssuedAt, &cred.ExpiresAt, &revokedAt, &clientIP,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		cred.RevokedAt = &t
	}
	cred.CreatedByIP = clientIP.String
	return &cred, nil
}

func (s *PGCredentialStore) Revoke(ctx context.Context, token string) error {
	// No-op when the token is unknown or already revoked; revocation time is
	// set once and never moves.
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked_at = now()
		where token_hash = $1 and revoked_at is null
	`, HashRefreshToken(token))
	return err
}

// Consume is the rotation compare-and-swap: the row is claimed only if still
// active, and the affected-row count tells the caller whether it won.
func (s *PGCredentialStore) Consume(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked_at = now()
		where token_hash = $1 and revoked_at is null and expires_at > now()
	`, HashRefreshToken(token))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTokenInvalid
	}
	return nil
}

// RevokeAllActiveForUser captures one timestamp inside a single UPDATE, so
// every revoked row carries the identical cut instant and no partially
// revoked state is ever visible.
func (s *PGCredentialStore) RevokeAllActiveForUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked_at = now()
		where user_id = $1 and revoked_at is null and expires_at > now()
	`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PGRoleAssignmentStore persists department-scoped role assignments.
type PGRoleAssignmentStore struct {
	db *sql.DB
}

func NewPGRoleAssignmentStore(db *sql.DB) *PGRoleAssignmentStore {
	return &PGRoleAssignmentStore{db: db}
}

func (s *PGRoleAssignmentStore) Assign(ctx context.Context, a DepartmentRole) (DepartmentRole, error) {
	if !role.Known(a.RoleName) {
		return DepartmentRole{}, ErrRoleUnknown
	}
	err := s.db.QueryRowContext(ctx, `
		insert into department_role_assignments(user_id, department_id, role_name, assigned_at)
		values ($1, $2, $3, now())
		returning assigned_at
	`, a.UserID, a.DepartmentID, a.RoleName).Scan(&a.AssignedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return DepartmentRole{}, ErrDuplicateAssignment
			case pgErrForeignKeyViolation:
				return DepartmentRole{}, ErrNotFound
			}
		}
		return DepartmentRole{}, err
	}
	return a, nil
}

func (s *PGRoleAssignmentStore) Unassign(ctx context.Context, userID string, departmentID int64, roleName string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from department_role_assignments
		where user_id = $1 and department_id = $2 and role_name = $3
	`, userID, departmentID, roleName)
	return err
}

func (s *PGRoleAssignmentStore) HasRole(ctx context.Context, userID string, departmentID int64, roleName string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(
			select 1 from department_role_assignments
			where user_id = $1 and department_id = $2 and role_name = $3
		)
	`, userID, departmentID, roleName).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PGRoleAssignmentStore) ListForUser(ctx context.Context, userID string) ([]DepartmentRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, department_id, role_name, assigned_at
		from department_role_assignments
		where user_id = $1
		order by assigned_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DepartmentRole
	for rows.Next() {
		var a DepartmentRole
		if err := rows.Scan(&a.UserID, &a.DepartmentID, &a.RoleName, &a.AssignedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// PGUserStore persists accounts and their global roles.
type PGUserStore struct {
	db *sql.DB
}

func NewPGUserStore(db *sql.DB) *PGUserStore { return &PGUserStore{db: db} }

const userColumns = `id, email, user_name, first_name, last_name, coalesce(middle_name, ''), password_hash, is_active, created_at`

func (s *PGUserStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, user_name, first_name, last_name, middle_name, password_hash, is_active)
		values ($1, lower($2), $3, $4, $5, nullif($6, ''), $7, $8)
	`, u.ID, u.Email, u.UserName, u.FirstName, u.LastName, u.MiddleName, u.PasswordHash, u.IsActive)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *PGUserStore) Find(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
}

func (s *PGUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = lower($1)`, strings.TrimSpace(email)))
}

func (s *PGUserStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.UserName, &u.FirstName, &u.LastName, &u.MiddleName,
		&u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PGUserStore) GlobalRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role_name from user_global_roles where user_id = $1 order by role_name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func (s *PGUserStore) SetPassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash = $2 where id = $1`, userID, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// PGDepartmentStore exposes department lookups.
type PGDepartmentStore struct {
	db *sql.DB
}

func NewPGDepartmentStore(db *sql.DB) *PGDepartmentStore { return &PGDepartmentStore{db: db} }

func (s *PGDepartmentStore) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from departments where id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PGDepartmentStore) List(ctx context.Context) ([]Department, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(code, ''), is_active from departments order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Code, &d.IsActive); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// Open connects to PostgreSQL through the pgx stdlib driver with pool limits
// suited to a small stateless API fleet.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}
