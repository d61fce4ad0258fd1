package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"interchee.org/internal/audit"
	"interchee.org/internal/auth"
	"interchee.org/internal/obs"
	"interchee.org/internal/role"
)

type roleAssignmentRequest struct {
	UserID       string `json:"userId"`
	DepartmentID int64  `json:"departmentId"`
	RoleName     string `json:"roleName"`
}

type authzCheckRequest struct {
	DepartmentID int64  `json:"departmentId"`
	RoleName     string `json:"roleName"`
}

type assignmentPayload struct {
	UserID       string    `json:"userId"`
	DepartmentID int64     `json:"departmentId"`
	RoleName     string    `json:"roleName"`
	AssignedAt   time.Time `json:"assignedAt"`
}

func assignmentsPayload(assignments []auth.DepartmentRole) []assignmentPayload {
	out := make([]assignmentPayload, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, assignmentPayload{
			UserID:       a.UserID,
			DepartmentID: a.DepartmentID,
			RoleName:     a.RoleName,
			AssignedAt:   a.AssignedAt,
		})
	}
	return out
}

// ensureRoleManager admits only principals holding the global Admin or HR
// role. Writes the error response itself when access is denied.
func (a *API) ensureRoleManager(w http.ResponseWriter, r *http.Request) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !principal.HasGlobalRole(role.Admin) && !principal.HasGlobalRole(role.HR) {
		obs.ObserveAuthz("deny")
		writeError(w, r, http.StatusForbidden, "admin or hr role required")
		return false
	}
	obs.ObserveAuthz("allow")
	return true
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	if !a.ensureRoleManager(w, r) {
		return
	}
	var req roleAssignmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" || req.DepartmentID <= 0 {
		writeError(w, r, http.StatusBadRequest, "userId and departmentId are required")
		return
	}
	canonical, ok := role.Canonical(req.RoleName)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unrecognized role name")
		return
	}

	if _, err := a.users.Find(r.Context(), req.UserID); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	exists, err := a.departments.Exists(r.Context(), req.DepartmentID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if !exists {
		writeError(w, r, http.StatusNotFound, "department not found")
		return
	}

	assignment, err := a.roles.Assign(r.Context(), auth.DepartmentRole{
		UserID:       req.UserID,
		DepartmentID: req.DepartmentID,
		RoleName:     canonical,
	})
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrDuplicateAssignment):
		writeError(w, r, http.StatusBadRequest, "role already assigned")
		return
	case errors.Is(err, auth.ErrRoleUnknown):
		writeError(w, r, http.StatusBadRequest, "unrecognized role name")
		return
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user or department not found")
		return
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "roles.assign", map[string]any{
		"target_user_id": assignment.UserID,
		"department_id":  assignment.DepartmentID,
		"role":           assignment.RoleName,
	})
	writeJSON(w, http.StatusOK, assignmentPayload{
		UserID:       assignment.UserID,
		DepartmentID: assignment.DepartmentID,
		RoleName:     assignment.RoleName,
		AssignedAt:   assignment.AssignedAt,
	})
}

func (a *API) handleUnassignRole(w http.ResponseWriter, r *http.Request) {
	if !a.ensureRoleManager(w, r) {
		return
	}
	var req roleAssignmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" || req.DepartmentID <= 0 {
		writeError(w, r, http.StatusBadRequest, "userId and departmentId are required")
		return
	}
	canonical, ok := role.Canonical(req.RoleName)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unrecognized role name")
		return
	}

	// Removing an assignment that does not exist is a success.
	if err := a.roles.Unassign(r.Context(), req.UserID, req.DepartmentID, canonical); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "roles.unassign", map[string]any{
		"target_user_id": req.UserID,
		"department_id":  req.DepartmentID,
		"role":           canonical,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request) {
	if !a.ensureRoleManager(w, r) {
		return
	}
	userID := chi.URLParam(r, "id")
	if _, err := a.users.Find(r.Context(), userID); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	assignments, err := a.roles.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":          userID,
		"departmentRoles": assignmentsPayload(assignments),
	})
}

func (a *API) handleDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := a.departments.List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"departments": departments,
	})
}

// handleAuthzCheck lets sibling services ask whether the caller may act as a
// role within a department, without duplicating the evaluation rules.
func (a *API) handleAuthzCheck(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req authzCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	allowed, err := a.eval.Authorize(r.Context(), principal, req.RoleName, req.DepartmentID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if allowed {
		obs.ObserveAuthz("allow")
	} else {
		obs.ObserveAuthz("deny")
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowed": allowed})
}
