package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/soaringjerry/Formly/internal/services"
)

func lookupFrom(users map[string]*services.User) UserLookup {
	return func(_ context.Context, id string) (*services.User, error) {
		return users[id], nil
	}
}

// serve runs one request through WithAuth and returns the identity the handler saw.
func serve(t *testing.T, a *Authenticator, token string) (*httptest.ResponseRecorder, services.Identity) {
	t.Helper()
	var seen services.Identity
	h := a.WithAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestAdminFlagComesFromStore(t *testing.T) {
	users := map[string]*services.User{"u1": {ID: "u1", IsAdmin: false}}
	a := NewAuthenticator("s3cret", lookupFrom(users), zaptest.NewLogger(t))
	token, err := a.SignToken("u1", "a@b.c", true, time.Hour)
	require.NoError(t, err)

	_, id := serve(t, a, token)
	assert.Equal(t, services.Identity{UserID: "u1", IsAdmin: false}, id)

	users["u1"].IsAdmin = true
	_, id = serve(t, a, token)
	assert.True(t, id.IsAdmin)
}

func TestBlockedUserIsRejected(t *testing.T) {
	users := map[string]*services.User{"u1": {ID: "u1", Blocked: true}}
	a := NewAuthenticator("s3cret", lookupFrom(users), zaptest.NewLogger(t))
	token, err := a.SignToken("u1", "a@b.c", false, time.Hour)
	require.NoError(t, err)

	rec, _ := serve(t, a, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"forbidden"`)
}

func TestBadTokensAreAnonymous(t *testing.T) {
	users := map[string]*services.User{"u1": {ID: "u1"}}
	a := NewAuthenticator("s3cret", lookupFrom(users), zaptest.NewLogger(t))
	other := NewAuthenticator("different", nil, nil)

	forged, err := other.SignToken("u1", "a@b.c", true, time.Hour)
	require.NoError(t, err)
	expired, err := a.SignToken("u1", "a@b.c", false, -time.Minute)
	require.NoError(t, err)
	ghost, err := a.SignToken("u9", "x@y.z", false, time.Hour)
	require.NoError(t, err)

	for name, tok := range map[string]string{"forged": forged, "expired": expired, "unknown user": ghost, "junk": "abc.def"} {
		t.Run(name, func(t *testing.T) {
			rec, id := serve(t, a, tok)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, id.Anonymous())
		})
	}
}

func TestLookupFailureIs500(t *testing.T) {
	a := NewAuthenticator("s3cret", func(context.Context, string) (*services.User, error) {
		return nil, errors.New("db down")
	}, zaptest.NewLogger(t))
	token, err := a.SignToken("u1", "a@b.c", false, time.Hour)
	require.NoError(t, err)
	rec, _ := serve(t, a, token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireAuth(t *testing.T) {
	h := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), services.Identity{UserID: "u1"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
