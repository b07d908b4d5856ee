package api

import (
	"net/http"

	"github.com/soaringjerry/Formly/internal/services"
)

func (rt *Router) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := rt.svc.Community.ListTopics(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if topics == nil {
		topics = []services.Topic{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (rt *Router) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	t, err := rt.svc.Community.CreateTopic(r.Context(), req.Name, identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (rt *Router) handleLike(liked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := rt.svc.Community.SetLike(r.Context(), pathVar(r, "id"), liked, identity(r))
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func (rt *Router) handleListComments(w http.ResponseWriter, r *http.Request) {
	list, err := rt.svc.Community.ListComments(r.Context(), pathVar(r, "id"), identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*services.Comment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": list})
}

func (rt *Router) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if err := decode(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, err := rt.svc.Community.AddComment(r.Context(), pathVar(r, "id"), req.Body, identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (rt *Router) handleListAccess(w http.ResponseWriter, r *http.Request) {
	list, err := rt.svc.Access.List(r.Context(), pathVar(r, "id"), identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list})
}

func (rt *Router) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email   string `json:"email"`
		Version *int   `json:"version"`
	}
	if err := decode(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	version, err := expectedVersion(r, req.Version)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	t, err := rt.svc.Access.Grant(r.Context(), pathVar(r, "id"), req.Email, version, identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	setETag(w, t.Version)
	writeJSON(w, http.StatusOK, viewOf(t, nil))
}

func (rt *Router) handleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	version, err := expectedVersion(r, nil)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	t, err := rt.svc.Access.Revoke(r.Context(), pathVar(r, "id"), pathVar(r, "userId"), version, identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	setETag(w, t.Version)
	writeJSON(w, http.StatusOK, viewOf(t, nil))
}
