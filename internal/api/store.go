package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/Formly/internal/middleware"
	"github.com/soaringjerry/Formly/internal/services"
)

// Store is everything the HTTP layer needs from a backend. Both the SQLite and the Mongo
// stores implement it.
type Store interface {
	services.TemplateStore
	services.ResponseStore
	services.AuthStore
	services.CommunityStore
	services.AdminStore

	Ping(ctx context.Context) error
}

// Services bundles the domain services behind the routes.
type Services struct {
	Auth      *services.AuthService
	Templates *services.TemplateService
	Responses *services.ResponseService
	Community *services.CommunityService
	Access    *services.AccessService
	Admin     *services.AdminService
	Drafts    *services.DraftService
}

// NewServices wires the services onto one store. cache may be nil.
func NewServices(store Store, cache services.TemplateCache, drafts services.DraftStore, auth *middleware.Authenticator, tokenTTL time.Duration, log *zap.Logger) Services {
	if log == nil {
		log = zap.NewNop()
	}
	templates := services.NewTemplateService(store, cache, log.Named("templates"))
	return Services{
		Auth:      services.NewAuthService(store, auth.SignToken, tokenTTL),
		Templates: templates,
		Responses: services.NewResponseService(store, log.Named("responses")),
		Community: services.NewCommunityService(store),
		Access:    services.NewAccessService(store, templates),
		Admin:     services.NewAdminService(store),
		Drafts:    services.NewDraftService(drafts, store),
	}
}
