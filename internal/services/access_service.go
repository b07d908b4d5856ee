package services

import (
	"context"
	"fmt"
)

// Grantee is one entry of a private template's allow-list.
type Grantee struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

type AccessStore interface {
	GetTemplate(ctx context.Context, id string) (*Template, error)
	GetUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// AccessService manages who may see a private template. Changes go through TemplateService so
// they share its version check.
type AccessService struct {
	store     AccessStore
	templates *TemplateService
}

func NewAccessService(store AccessStore, templates *TemplateService) *AccessService {
	return &AccessService{store: store, templates: templates}
}

// List returns the allow-list of a template after an owner check.
func (s *AccessService) List(ctx context.Context, templateID string, caller Identity) ([]Grantee, error) {
	t, err := s.manageable(ctx, templateID, caller)
	if err != nil {
		return nil, err
	}
	out := make([]Grantee, 0, len(t.AllowedUsers))
	for _, uid := range t.AllowedUsers {
		g := Grantee{UserID: uid}
		u, err := s.store.GetUser(ctx, uid)
		if err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
		if u != nil {
			g.Email, g.Name = u.Email, u.Name
		}
		out = append(out, g)
	}
	return out, nil
}

// Grant adds the user registered under email to the allow-list. The template and the
// caller's rights are checked before the address is resolved.
func (s *AccessService) Grant(ctx context.Context, templateID, email string, expectedVersion int, caller Identity) (*Template, error) {
	if _, err := s.manageable(ctx, templateID, caller); err != nil {
		return nil, err
	}
	u, err := s.store.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return nil, NewNotFoundError("no user with this address")
	}
	return s.change(ctx, templateID, expectedVersion, caller, func(list []string) []string {
		return append(list, u.ID)
	})
}

func (s *AccessService) Revoke(ctx context.Context, templateID, userID string, expectedVersion int, caller Identity) (*Template, error) {
	return s.change(ctx, templateID, expectedVersion, caller, func(list []string) []string {
		out := list[:0]
		for _, uid := range list {
			if uid != userID {
				out = append(out, uid)
			}
		}
		return out
	})
}

func (s *AccessService) change(ctx context.Context, templateID string, expectedVersion int, caller Identity, edit func([]string) []string) (*Template, error) {
	t, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if t == nil {
		return nil, NewNotFoundError("template not found")
	}
	list := edit(append([]string(nil), t.AllowedUsers...))
	return s.templates.UpdateTemplate(ctx, templateID, TemplatePayload{AllowedUsers: &list}, expectedVersion, caller)
}

// manageable loads the template and checks that caller may manage its access list.
func (s *AccessService) manageable(ctx context.Context, templateID string, caller Identity) (*Template, error) {
	t, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if t == nil {
		return nil, NewNotFoundError("template not found")
	}
	if !caller.Owns(t.OwnerID) && !caller.IsAdmin {
		return nil, NewForbiddenError("only the owner or an admin can manage access")
	}
	return t, nil
}
