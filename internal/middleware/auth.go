package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/soaringjerry/Formly/internal/services"
)

type authCtxKey int

const identityKey authCtxKey = 7

type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Admin bool   `json:"adm"`
	jwt.RegisteredClaims
}

// UserLookup re-reads the account behind a token; it returns nil, nil for unknown users.
type UserLookup func(ctx context.Context, id string) (*services.User, error)

type Authenticator struct {
	secret []byte
	lookup UserLookup
	log    *zap.Logger
	now    func() time.Time
}

func NewAuthenticator(secret string, lookup UserLookup, log *zap.Logger) *Authenticator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authenticator{secret: []byte(secret), lookup: lookup, log: log, now: time.Now}
}

// SignToken matches services.TokenSigner.
func (a *Authenticator) SignToken(uid, email string, admin bool, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{UID: uid, Email: email, Admin: admin, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Authenticator) parseToken(tok string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*Claims); ok && t.Valid && c.UID != "" {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

// WithAuth attaches the caller's Identity to the request context when a valid bearer token is
// present. The admin flag comes from the stored account, not the token, so a demotion takes
// effect on the next request. Tokens of deleted accounts are ignored; blocked accounts get 403.
func (a *Authenticator) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			next.ServeHTTP(w, r)
			return
		}
		c, err := a.parseToken(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		id := services.Identity{UserID: c.UID, IsAdmin: c.Admin}
		if a.lookup != nil {
			u, err := a.lookup(r.Context(), c.UID)
			if err != nil {
				a.log.Error("auth user lookup failed", zap.String("user_id", c.UID), zap.Error(err))
				writeAuthError(w, http.StatusInternalServerError, "internal", "internal error")
				return
			}
			if u == nil {
				next.ServeHTTP(w, r)
				return
			}
			if u.Blocked {
				writeAuthError(w, http.StatusForbidden, string(services.ErrorForbidden), "account is blocked")
				return
			}
			id.IsAdmin = u.IsAdmin
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()).Anonymous() {
			writeAuthError(w, http.StatusUnauthorized, string(services.ErrorUnauthorized), "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithIdentity(ctx context.Context, id services.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the anonymous identity when no valid token was presented.
func IdentityFromContext(ctx context.Context) services.Identity {
	if id, ok := ctx.Value(identityKey).(services.Identity); ok {
		return id
	}
	return services.Identity{}
}

func writeAuthError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": msg}})
}
