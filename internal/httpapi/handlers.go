package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"interchee.org/internal/auth"
	"interchee.org/internal/obs"
)

const serviceName = "interchee-api"

// ReadyProbe reports whether the service can reach its dependencies.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the token issuer and access evaluator.
type API struct {
	mux         chi.Router
	svc         *auth.Service
	eval        *auth.Evaluator
	roles       auth.RoleAssignmentStore
	users       auth.UserStore
	departments auth.DepartmentStore
	readyProbe  ReadyProbe
	version     string
}

func New(svc *auth.Service, eval *auth.Evaluator, users auth.UserStore, roles auth.RoleAssignmentStore, departments auth.DepartmentStore, rp ReadyProbe, version string) *API {
	a := &API{
		mux:         chi.NewRouter(),
		svc:         svc,
		eval:        eval,
		roles:       roles,
		users:       users,
		departments: departments,
		readyProbe:  rp,
		version:     version,
	}

	a.mux.Get("/healthz", a.Healthz)
	a.mux.Get("/readyz", a.Ready)
	a.mux.Get("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.Post("/auth/login", a.handleLogin)
	a.mux.Post("/auth/refresh", a.handleRefresh)
	a.mux.Post("/auth/logout", a.handleLogout)

	a.mux.Group(func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Post("/auth/logout-all", a.handleLogoutAll)
		r.Get("/auth/me", a.handleMe)
		r.Get("/auth/roles", a.handleMyRoles)
		r.Post("/auth/change-password", a.handleChangePassword)

		r.Post("/roles/assign", a.handleAssignRole)
		r.Delete("/roles/unassign", a.handleUnassignRole)
		r.Get("/users/{id}/roles", a.handleUserRoles)
		r.Get("/departments", a.handleDepartments)
		r.Post("/authz/check", a.handleAuthzCheck)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.mux)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
