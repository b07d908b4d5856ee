package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetUserFlags(t *testing.T) {
	store := newStubStore()
	store.users["root"] = &User{ID: "root", IsAdmin: true}
	store.users["u2"] = &User{ID: "u2"}
	svc := NewAdminService(store)
	ctx := context.Background()

	_, err := svc.ListUsers(ctx, owner)
	assert.True(t, HasCode(err, ErrorForbidden))
	_, err = svc.ListUsers(ctx, Identity{})
	assert.True(t, HasCode(err, ErrorUnauthorized))

	users, err := svc.ListUsers(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	u, err := svc.SetUserFlags(ctx, "u2", UserFlags{IsAdmin: boolPtr(true), Blocked: boolPtr(true)}, admin)
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
	assert.True(t, store.users["u2"].Blocked)
	require.Len(t, store.audit, 1)
	assert.Equal(t, "u2", store.audit[0].Target)

	_, err = svc.SetUserFlags(ctx, "root", UserFlags{IsAdmin: boolPtr(false)}, admin)
	assert.True(t, HasCode(err, ErrorInvalid))
	_, err = svc.SetUserFlags(ctx, "ghost", UserFlags{}, admin)
	assert.True(t, HasCode(err, ErrorNotFound))

	entries, err := svc.Audit(ctx, 0, admin)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type auditLimitSpy struct {
	*stubStore
	limits []int
}

func (s *auditLimitSpy) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	s.limits = append(s.limits, limit)
	return s.stubStore.ListAudit(ctx, limit)
}

func TestAuditLimitBounds(t *testing.T) {
	spy := &auditLimitSpy{stubStore: newStubStore()}
	svc := NewAdminService(spy)
	for _, limit := range []int{-1, 0, 42, 500, 501, 10000} {
		_, err := svc.Audit(context.Background(), limit, admin)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{100, 100, 42, 500, 500, 500}, spy.limits)
}
