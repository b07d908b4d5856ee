package api

import (
	"net/http"
	"strconv"

	"github.com/soaringjerry/Formly/internal/services"
)

// templateView is a template as served to a reader. Summary carries the per-kind slot counts
// editors use to cap "add field".
type templateView struct {
	*services.Template
	Summary services.SlotSummary `json:"summary"`
	Likes   *services.LikeState  `json:"likes,omitempty"`
}

func viewOf(t *services.Template, likes *services.LikeState) templateView {
	return templateView{Template: t, Summary: t.Slots.Summary(), Likes: likes}
}

type createTemplateRequest struct {
	OwnerID string `json:"owner_id"`
	services.TemplatePayload
}

type updateTemplateRequest struct {
	Version *int `json:"version"`
	services.TemplatePayload
}

type moveRequest struct {
	From    int  `json:"from"`
	To      int  `json:"to"`
	Version *int `json:"version"`
}

func (rt *Router) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := services.ListQuery{
		TopicID: q.Get("topic"),
		Tag:     q.Get("tag"),
		Sort:    q.Get("sort"),
	}
	if v := q.Get("mine"); v != "" {
		mine, err := strconv.ParseBool(v)
		if err != nil {
			rt.writeError(w, r, services.NewFieldError("mine", "must be a boolean"))
			return
		}
		query.Mine = mine
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			rt.writeError(w, r, services.NewFieldError("limit", "must be an integer"))
			return
		}
		query.Limit = n
	}
	list, err := rt.svc.Templates.ListTemplates(r.Context(), identity(r), query)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	views := make([]templateView, 0, len(list))
	for _, t := range list {
		views = append(views, viewOf(t, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": views})
}

func (rt *Router) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := decode(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	t, err := rt.svc.Templates.CreateTemplate(r.Context(), identity(r), req.OwnerID, req.TemplatePayload)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	setETag(w, t.Version)
	writeJSON(w, http.StatusCreated, viewOf(t, nil))
}

func (rt *Router) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	caller := identity(r)
	t, err := rt.svc.Templates.GetTemplate(r.Context(), pathVar(r, "id"), caller)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	likes, err := rt.svc.Community.Likes(r.Context(), t.ID, caller)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	setETag(w, t.Version)
	writeJSON(w, http.StatusOK, viewOf(t, likes))
}

func (rt *Router) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req updateTemplateRequest
	if err := decode(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	version, err := expectedVersion(r, req.Version)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	t, err := rt.svc.Templates.UpdateTemplate(r.Context(), pathVar(r, "id"), req.TemplatePayload, version, identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	setETag(w, t.Version)
	writeJSON(w, http.StatusOK, viewOf(t, nil))
}

func (rt *Router) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := rt.svc.Templates.DeleteTemplate(r.Context(), pathVar(r, "id"), identity(r)); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleMoveQuestion(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decode(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	version, err := expectedVersion(r, req.Version)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	t, err := rt.svc.Templates.MoveQuestion(r.Context(), pathVar(r, "id"), req.From, req.To, version, identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	setETag(w, t.Version)
	writeJSON(w, http.StatusOK, viewOf(t, nil))
}

func (rt *Router) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := rt.svc.Drafts.Load(r.Context(), pathVar(r, "id"), identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (rt *Router) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var req services.Draft
	if err := decode(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	d, err := rt.svc.Drafts.Save(r.Context(), pathVar(r, "id"), req.Payload, req.BaseVersion, identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (rt *Router) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := rt.svc.Drafts.Discard(r.Context(), pathVar(r, "id"), identity(r)); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
