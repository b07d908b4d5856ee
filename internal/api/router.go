package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/soaringjerry/Formly/internal/middleware"
	"github.com/soaringjerry/Formly/internal/utils"
)

type Router struct {
	svc     Services
	auth    *middleware.Authenticator
	pinger  func(ctx context.Context) error
	log     *zap.Logger
	origins []string
	version string
}

type Options struct {
	Services      Services
	Authenticator *middleware.Authenticator
	// Ping checks the backing store for /health; nil skips the check.
	Ping        func(ctx context.Context) error
	Log         *zap.Logger
	CORSOrigins []string
	Version     string
}

func NewRouter(o Options) *Router {
	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		svc:     o.Services,
		auth:    o.Authenticator,
		pinger:  o.Ping,
		log:     log,
		origins: o.CORSOrigins,
		version: o.Version,
	}
}

// Handler builds the full HTTP surface.
func (rt *Router) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.Locale)

	r.HandleFunc("/health", rt.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", rt.handleVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.NoStore)
	api.Use(rt.auth.WithAuth)
	api.HandleFunc("/auth/register", rt.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", rt.handleLogin).Methods(http.MethodPost)
	api.Handle("/auth/me", middleware.RequireAuth(http.HandlerFunc(rt.handleMe))).Methods(http.MethodGet)

	api.HandleFunc("/topics", rt.handleListTopics).Methods(http.MethodGet)
	api.HandleFunc("/topics", rt.handleCreateTopic).Methods(http.MethodPost)

	api.HandleFunc("/templates", rt.handleListTemplates).Methods(http.MethodGet)
	api.HandleFunc("/templates", rt.handleCreateTemplate).Methods(http.MethodPost)
	api.HandleFunc("/templates/{id}/draft", rt.handleGetDraft).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id}/draft", rt.handleSaveDraft).Methods(http.MethodPut)
	api.HandleFunc("/templates/{id}/draft", rt.handleDiscardDraft).Methods(http.MethodDelete)
	api.HandleFunc("/templates/{id}", rt.handleGetTemplate).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id}", rt.handleUpdateTemplate).Methods(http.MethodPut)
	api.HandleFunc("/templates/{id}", rt.handleDeleteTemplate).Methods(http.MethodDelete)
	api.HandleFunc("/templates/{id}/order/move", rt.handleMoveQuestion).Methods(http.MethodPost)
	api.HandleFunc("/templates/{id}/likes", rt.handleLike(true)).Methods(http.MethodPost)
	api.HandleFunc("/templates/{id}/likes", rt.handleLike(false)).Methods(http.MethodDelete)
	api.HandleFunc("/templates/{id}/comments", rt.handleListComments).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id}/comments", rt.handleAddComment).Methods(http.MethodPost)
	api.HandleFunc("/templates/{id}/responses", rt.handleListResponses).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id}/responses", rt.handleSubmitResponse).Methods(http.MethodPost)
	api.HandleFunc("/templates/{id}/responses.csv", rt.handleExportCSV).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id}/access", rt.handleListAccess).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id}/access", rt.handleGrantAccess).Methods(http.MethodPost)
	api.HandleFunc("/templates/{id}/access/{userId}", rt.handleRevokeAccess).Methods(http.MethodDelete)

	api.HandleFunc("/responses/{id}", rt.handleGetResponse).Methods(http.MethodGet)
	api.HandleFunc("/responses/{id}", rt.handleUpdateResponse).Methods(http.MethodPut)
	api.HandleFunc("/responses/{id}/score", rt.handleViewScore).Methods(http.MethodGet)

	me := api.PathPrefix("/me").Subrouter()
	me.Use(middleware.RequireAuth)
	me.HandleFunc("/responses", rt.handleMyResponses).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAuth)
	admin.HandleFunc("/users", rt.handleListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}", rt.handleSetUserFlags).Methods(http.MethodPut)
	admin.HandleFunc("/audit", rt.handleAudit).Methods(http.MethodGet)

	api.NotFoundHandler = http.HandlerFunc(rt.handleNotFound)
	r.NotFoundHandler = http.HandlerFunc(rt.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]errorBody{"error": {Code: "method_not_allowed", Message: "method not allowed"}})
	})
	// CORS wraps the router so preflight requests are answered before route matching.
	return middleware.RequestLogger(rt.log)(middleware.CORS(rt.origins)(r))
}

func (rt *Router) handleNotFound(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusNotFound, map[string]errorBody{"error": {
		Code: "not_found", Title: utils.T(locale, "error.not_found"), Message: "no such route",
	}})
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	if rt.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.pinger(ctx); err != nil {
			rt.log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": utils.T(locale, "health.ok")})
}

func (rt *Router) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": rt.version})
}
