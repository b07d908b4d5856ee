package api

import (
	"net/http"
	"strconv"

	"github.com/soaringjerry/Formly/internal/services"
)

func (rt *Router) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := rt.svc.Admin.ListUsers(r.Context(), identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if users == nil {
		users = []*services.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (rt *Router) handleSetUserFlags(w http.ResponseWriter, r *http.Request) {
	var flags services.UserFlags
	if err := decode(w, r, &flags); err != nil {
		rt.writeError(w, r, err)
		return
	}
	u, err := rt.svc.Admin.SetUserFlags(r.Context(), pathVar(r, "id"), flags, identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (rt *Router) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			rt.writeError(w, r, services.NewFieldError("limit", "must be an integer"))
			return
		}
		limit = n
	}
	entries, err := rt.svc.Admin.Audit(r.Context(), limit, identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []services.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
