package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"interchee.org/internal/role"
)

func TestPGCredentialStoreGetValid(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGCredentialStore(db)
	token := "opaque-refresh-token"
	hash := HashRefreshToken(token)
	issued := time.Now().Add(-time.Hour)
	expires := time.Now().Add(6 * 24 * time.Hour)

	mock.ExpectQuery("select id, user_id, token_hash, issued_at, expires_at, revoked_at, created_by_ip").
		WithArgs(hash).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "issued_at", "expires_at", "revoked_at", "created_by_ip"}).
			AddRow("rt-1", "u1", hash, issued, expires, nil, "10.0.0.1"))

	cred, err := store.GetValid(context.Background(), token)
	if err != nil {
		t.Fatalf("GetValid: %v", err)
	}
	if cred.UserID != "u1" || cred.RevokedAt != nil || cred.CreatedByIP != "10.0.0.1" {
		t.Fatalf("unexpected credential: %+v", cred)
	}

	// Unknown, revoked and expired all surface as the same empty result.
	mock.ExpectQuery("select id, user_id, token_hash, issued_at, expires_at, revoked_at, created_by_ip").
		WithArgs(HashRefreshToken("anything-else")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "issued_at", "expires_at", "revoked_at", "created_by_ip"}))

	if _, err := store.GetValid(context.Background(), "anything-else"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGCredentialStoreConsumeIsCompareAndSwap(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGCredentialStore(db)
	token := "rotating-token"
	hash := HashRefreshToken(token)

	// First consume claims the row.
	mock.ExpectExec("update refresh_tokens set revoked_at").
		WithArgs(hash).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Consume(context.Background(), token); err != nil {
		t.Fatalf("first Consume: %v", err)
	}

	// A losing consume sees zero affected rows and fails closed.
	mock.ExpectExec("update refresh_tokens set revoked_at").
		WithArgs(hash).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Consume(context.Background(), token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for lost race, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGCredentialStoreRevokeAllActiveForUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGCredentialStore(db)

	mock.ExpectExec("update refresh_tokens set revoked_at").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := store.RevokeAllActiveForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RevokeAllActiveForUser: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 revoked rows, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGCredentialStoreCreateMapsConstraintErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGCredentialStore(db)
	cred := &RefreshCredential{
		ID:        "rt-1",
		UserID:    "u1",
		TokenHash: HashRefreshToken("tok"),
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	mock.ExpectExec("insert into refresh_tokens").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	if err := store.Create(context.Background(), cred); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate hash, got %v", err)
	}

	mock.ExpectExec("insert into refresh_tokens").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if err := store.Create(context.Background(), cred); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRoleAssignmentStoreAssign(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGRoleAssignmentStore(db)
	ctx := context.Background()

	// Unknown role never reaches the database.
	if _, err := store.Assign(ctx, DepartmentRole{UserID: "u1", DepartmentID: 1, RoleName: "Janitor"}); !errors.Is(err, ErrRoleUnknown) {
		t.Fatalf("expected ErrRoleUnknown, got %v", err)
	}

	assignedAt := time.Now()
	mock.ExpectQuery("insert into department_role_assignments").
		WithArgs("u1", int64(1), role.Instructor).
		WillReturnRows(sqlmock.NewRows([]string{"assigned_at"}).AddRow(assignedAt))

	a, err := store.Assign(ctx, DepartmentRole{UserID: "u1", DepartmentID: 1, RoleName: role.Instructor})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if !a.AssignedAt.Equal(assignedAt) {
		t.Fatalf("assigned_at not round-tripped: %v", a.AssignedAt)
	}

	mock.ExpectQuery("insert into department_role_assignments").
		WithArgs("u1", int64(1), role.Instructor).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	if _, err := store.Assign(ctx, DepartmentRole{UserID: "u1", DepartmentID: 1, RoleName: role.Instructor}); !errors.Is(err, ErrDuplicateAssignment) {
		t.Fatalf("expected ErrDuplicateAssignment, got %v", err)
	}

	mock.ExpectQuery("insert into department_role_assignments").
		WithArgs("ghost", int64(1), role.Instructor).
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if _, err := store.Assign(ctx, DepartmentRole{UserID: "ghost", DepartmentID: 1, RoleName: role.Instructor}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user/department, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRoleAssignmentStoreHasRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGRoleAssignmentStore(db)

	mock.ExpectQuery("select exists").
		WithArgs("u1", int64(2), role.Supervisor).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.HasRole(context.Background(), "u1", 2, role.Supervisor)
	if err != nil || !ok {
		t.Fatalf("HasRole: ok=%v err=%v", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGUserStoreFindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGUserStore(db)
	created := time.Now()

	mock.ExpectQuery("select id, email, user_name").
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "user_name", "first_name", "last_name", "middle_name", "password_hash", "is_active", "created_at"}).
			AddRow("u1", "ada@example.com", "ada", "Ada", "Lovelace", "", "$2a$10$hash", true, created))

	u, err := store.FindByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.ID != "u1" || !u.IsActive {
		t.Fatalf("unexpected user: %+v", u)
	}

	mock.ExpectQuery("select id, email, user_name").
		WithArgs("missing@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "user_name", "first_name", "last_name", "middle_name", "password_hash", "is_active", "created_at"}))

	if _, err := store.FindByEmail(context.Background(), "missing@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGDepartmentStoreExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGDepartmentStore(db)

	mock.ExpectQuery("select exists").WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := store.Exists(context.Background(), 7)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatal("expected department 7 to be absent")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
