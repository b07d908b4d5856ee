package services

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 500
)

type AdminStore interface {
	ListUsers(ctx context.Context) ([]*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	SetUserFlags(ctx context.Context, id string, isAdmin, blocked bool) error
	ListAudit(ctx context.Context, limit int) ([]AuditEntry, error)
	AddAudit(ctx context.Context, e AuditEntry)
}

// UserFlags is a partial update of a user's admin and blocked flags.
type UserFlags struct {
	IsAdmin *bool `json:"is_admin"`
	Blocked *bool `json:"blocked"`
}

type AdminService struct {
	store AdminStore
	now   func() time.Time
}

func NewAdminService(store AdminStore) *AdminService {
	return &AdminService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func requireAdmin(caller Identity) error {
	if caller.Anonymous() {
		return NewUnauthorizedError("login required")
	}
	if !caller.IsAdmin {
		return NewForbiddenError("admin only")
	}
	return nil
}

func (s *AdminService) ListUsers(ctx context.Context, caller Identity) ([]*User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	list, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return list, nil
}

// SetUserFlags promotes, demotes, blocks or unblocks a user. Admins cannot demote or block
// themselves, so there is always at least one admin able to undo a change.
func (s *AdminService) SetUserFlags(ctx context.Context, userID string, flags UserFlags, caller Identity) (*User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, NewNotFoundError("user not found")
	}
	next := *u
	if flags.IsAdmin != nil {
		next.IsAdmin = *flags.IsAdmin
	}
	if flags.Blocked != nil {
		next.Blocked = *flags.Blocked
	}
	if caller.Owns(u.ID) && (!next.IsAdmin || next.Blocked) {
		return nil, NewInvalidError("admins cannot demote or block themselves")
	}
	if next.IsAdmin == u.IsAdmin && next.Blocked == u.Blocked {
		return u, nil
	}
	if err := s.store.SetUserFlags(ctx, u.ID, next.IsAdmin, next.Blocked); err != nil {
		return nil, fmt.Errorf("set user flags: %w", err)
	}
	s.store.AddAudit(ctx, AuditEntry{
		Time:   s.now(),
		Actor:  caller.UserID,
		Action: "set_user_flags",
		Target: u.ID,
		Note:   fmt.Sprintf("admin=%t blocked=%t", next.IsAdmin, next.Blocked),
	})
	return &next, nil
}

// Audit returns the newest audit entries first.
func (s *AdminService) Audit(ctx context.Context, limit int, caller Identity) ([]AuditEntry, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultAuditLimit
	case limit > maxAuditLimit:
		limit = maxAuditLimit
	}
	list, err := s.store.ListAudit(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return list, nil
}
