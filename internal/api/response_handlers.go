package api

import (
	"encoding/json"
	"net/http"

	"github.com/soaringjerry/Formly/internal/services"
)

type answersRequest struct {
	Answers map[string]json.RawMessage `json:"answers"`
	Version *int                       `json:"version"`
}

func (rt *Router) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	var req answersRequest
	if err := decode(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	resp, err := rt.svc.Responses.SubmitResponse(r.Context(), pathVar(r, "id"), identity(r), req.Answers)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (rt *Router) handleListResponses(w http.ResponseWriter, r *http.Request) {
	list, err := rt.svc.Responses.ListResponses(r.Context(), pathVar(r, "id"), identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeResponses(w, list)
}

func (rt *Router) handleMyResponses(w http.ResponseWriter, r *http.Request) {
	list, err := rt.svc.Responses.ListMyResponses(r.Context(), identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeResponses(w, list)
}

func writeResponses(w http.ResponseWriter, list []*services.Response) {
	if list == nil {
		list = []*services.Response{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": list})
}

func (rt *Router) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	resp, err := rt.svc.Responses.GetResponse(r.Context(), pathVar(r, "id"), identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	setETag(w, resp.Version)
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleUpdateResponse(w http.ResponseWriter, r *http.Request) {
	var req answersRequest
	if err := decode(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	version, err := expectedVersion(r, req.Version)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	resp, err := rt.svc.Responses.UpdateResponse(r.Context(), pathVar(r, "id"), req.Answers, version, identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	setETag(w, resp.Version)
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleViewScore(w http.ResponseWriter, r *http.Request) {
	resp, err := rt.svc.Responses.ViewScore(r.Context(), pathVar(r, "id"), identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"response_id": resp.ID,
		"score":       resp.Score,
		"max_score":   resp.MaxScore,
	})
}

func (rt *Router) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	b, err := rt.svc.Responses.ExportCSV(r.Context(), id, identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`-responses.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
