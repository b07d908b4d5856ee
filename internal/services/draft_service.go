package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// NewTemplateDraftID is the template id under which drafts of not-yet-saved templates live.
const NewTemplateDraftID = "new"

const maxDraftBytes = 64 << 10

// Draft is an opaque snapshot of unsaved editor state.
type Draft struct {
	Payload     json.RawMessage `json:"payload"`
	BaseVersion int             `json:"base_version"`
	SavedAt     time.Time       `json:"saved_at"`
}

// DraftStore keeps at most one draft per user and template. Get returns nil, nil when absent.
type DraftStore interface {
	Get(ctx context.Context, userID, templateID string) (*Draft, error)
	Put(ctx context.Context, userID, templateID string, d *Draft) error
	Delete(ctx context.Context, userID, templateID string) error
}

type DraftService struct {
	drafts    DraftStore
	templates TemplateStore
	now       func() time.Time
}

func NewDraftService(drafts DraftStore, templates TemplateStore) *DraftService {
	return &DraftService{drafts: drafts, templates: templates, now: func() time.Time { return time.Now().UTC() }}
}

// Save stores caller's draft. Drafts of existing templates need edit rights on the template.
func (s *DraftService) Save(ctx context.Context, templateID string, payload json.RawMessage, baseVersion int, caller Identity) (*Draft, error) {
	if err := s.check(ctx, templateID, caller); err != nil {
		return nil, err
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, NewFieldError("payload", "must be valid JSON")
	}
	if len(payload) > maxDraftBytes {
		return nil, NewFieldError("payload", fmt.Sprintf("larger than %d bytes", maxDraftBytes))
	}
	d := &Draft{Payload: payload, BaseVersion: baseVersion, SavedAt: s.now()}
	if err := s.drafts.Put(ctx, caller.UserID, templateID, d); err != nil {
		return nil, fmt.Errorf("put draft: %w", err)
	}
	return d, nil
}

func (s *DraftService) Load(ctx context.Context, templateID string, caller Identity) (*Draft, error) {
	if err := s.check(ctx, templateID, caller); err != nil {
		return nil, err
	}
	d, err := s.drafts.Get(ctx, caller.UserID, templateID)
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	if d == nil {
		return nil, NewNotFoundError("no draft saved")
	}
	return d, nil
}

func (s *DraftService) Discard(ctx context.Context, templateID string, caller Identity) error {
	if caller.Anonymous() {
		return NewUnauthorizedError("login required")
	}
	if err := s.drafts.Delete(ctx, caller.UserID, templateID); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

func (s *DraftService) check(ctx context.Context, templateID string, caller Identity) error {
	if caller.Anonymous() {
		return NewUnauthorizedError("login required")
	}
	if templateID == NewTemplateDraftID {
		return nil
	}
	t, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return fmt.Errorf("get template: %w", err)
	}
	if t == nil {
		return NewNotFoundError("template not found")
	}
	if !caller.Owns(t.OwnerID) && !caller.IsAdmin {
		return NewForbiddenError("only the owner or an admin can edit this template")
	}
	return nil
}
