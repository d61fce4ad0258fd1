package auth

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"interchee.org/internal/role"
)

type memRoleAssignmentStore struct {
	assignments map[string]DepartmentRole
	err         error
}

func newMemRoleAssignmentStore() *memRoleAssignmentStore {
	return &memRoleAssignmentStore{assignments: make(map[string]DepartmentRole)}
}

func assignmentKey(userID string, departmentID int64, roleName string) string {
	return userID + "|" + strconv.FormatInt(departmentID, 10) + "|" + roleName
}

func (m *memRoleAssignmentStore) Assign(_ context.Context, a DepartmentRole) (DepartmentRole, error) {
	if !role.Known(a.RoleName) {
		return DepartmentRole{}, ErrRoleUnknown
	}
	key := assignmentKey(a.UserID, a.DepartmentID, a.RoleName)
	if _, ok := m.assignments[key]; ok {
		return DepartmentRole{}, ErrDuplicateAssignment
	}
	a.AssignedAt = time.Now()
	m.assignments[key] = a
	return a, nil
}

func (m *memRoleAssignmentStore) Unassign(_ context.Context, userID string, departmentID int64, roleName string) error {
	delete(m.assignments, assignmentKey(userID, departmentID, roleName))
	return nil
}

func (m *memRoleAssignmentStore) HasRole(_ context.Context, userID string, departmentID int64, roleName string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.assignments[assignmentKey(userID, departmentID, roleName)]
	return ok, nil
}

func (m *memRoleAssignmentStore) ListForUser(_ context.Context, userID string) ([]DepartmentRole, error) {
	var out []DepartmentRole
	for _, a := range m.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func TestAuthorizeAdminBypass(t *testing.T) {
	store := newMemRoleAssignmentStore()
	eval := NewEvaluator(store)
	admin := Principal{UserID: "u9", Roles: []string{role.Admin}}

	// No assignment rows exist anywhere, yet the Admin passes for any
	// department and any role, including unknown role names.
	for _, dept := range []int64{1, 2, 42} {
		ok, err := eval.Authorize(context.Background(), admin, role.Supervisor, dept)
		if err != nil || !ok {
			t.Fatalf("admin denied for department %d: ok=%v err=%v", dept, ok, err)
		}
	}
	ok, err := eval.Authorize(context.Background(), admin, "no-such-role", 1)
	if err != nil || !ok {
		t.Fatalf("admin should bypass role canonicalization: ok=%v err=%v", ok, err)
	}
}

func TestAuthorizeDepartmentScoping(t *testing.T) {
	store := newMemRoleAssignmentStore()
	eval := NewEvaluator(store)
	ctx := context.Background()

	if _, err := store.Assign(ctx, DepartmentRole{UserID: "u1", DepartmentID: 1, RoleName: role.Instructor}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	p := Principal{UserID: "u1"}

	ok, err := eval.Authorize(ctx, p, role.Instructor, 1)
	if err != nil || !ok {
		t.Fatalf("expected allow in assigned department: ok=%v err=%v", ok, err)
	}
	// Same role, different department: denied.
	ok, err = eval.Authorize(ctx, p, role.Instructor, 2)
	if err != nil || ok {
		t.Fatalf("expected deny outside assigned department: ok=%v err=%v", ok, err)
	}
	// Same department, different role: denied.
	ok, err = eval.Authorize(ctx, p, role.Supervisor, 1)
	if err != nil || ok {
		t.Fatalf("expected deny for unheld role: ok=%v err=%v", ok, err)
	}

	// The decision flips with the assignment, in both directions.
	if err := store.Unassign(ctx, "u1", 1, role.Instructor); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	ok, err = eval.Authorize(ctx, p, role.Instructor, 1)
	if err != nil || ok {
		t.Fatalf("expected deny after unassign: ok=%v err=%v", ok, err)
	}
}

func TestAuthorizeCanonicalizesRequiredRole(t *testing.T) {
	store := newMemRoleAssignmentStore()
	eval := NewEvaluator(store)
	ctx := context.Background()

	if _, err := store.Assign(ctx, DepartmentRole{UserID: "u1", DepartmentID: 3, RoleName: role.Attache}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	p := Principal{UserID: "u1"}

	for _, spelling := range []string{"Attaché", "attache", "ATTACHÉ"} {
		ok, err := eval.Authorize(ctx, p, spelling, 3)
		if err != nil || !ok {
			t.Fatalf("spelling %q: ok=%v err=%v", spelling, ok, err)
		}
	}
	ok, err := eval.Authorize(ctx, p, "attachment", 3)
	if err != nil || ok {
		t.Fatalf("unknown role must deny, not error: ok=%v err=%v", ok, err)
	}
}

func TestAuthorizeAnonymousAndStoreFailure(t *testing.T) {
	store := newMemRoleAssignmentStore()
	eval := NewEvaluator(store)
	ctx := context.Background()

	ok, err := eval.Authorize(ctx, Principal{}, role.HR, 1)
	if err != nil || ok {
		t.Fatalf("anonymous principal must deny: ok=%v err=%v", ok, err)
	}

	store.err = errors.New("connection reset")
	if _, err := eval.Authorize(ctx, Principal{UserID: "u1"}, role.HR, 1); err == nil {
		t.Fatal("store failure must surface as an error, not a silent deny")
	}
}
