package api

import "net/http"

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.svc.Auth.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.svc.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := rt.svc.Auth.Me(r.Context(), identity(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
