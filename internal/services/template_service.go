package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 5000
	maxTags           = 10
	maxTagLen         = 32
	defaultListLimit  = 20
	maxListLimit      = 100
)

// DefaultTitle names templates created without a title.
const DefaultTitle = "Untitled form"

type TemplateStore interface {
	InsertTemplate(ctx context.Context, t *Template) error
	// GetTemplate returns nil, nil when the id is unknown.
	GetTemplate(ctx context.Context, id string) (*Template, error)
	// UpdateTemplate writes t only if the stored version equals expectedVersion,
	// otherwise it returns ErrVersionMismatch.
	UpdateTemplate(ctx context.Context, t *Template, expectedVersion int) error
	DeleteTemplate(ctx context.Context, id string) error
	ListTemplates(ctx context.Context, f TemplateFilter) ([]*Template, error)
	GetTopic(ctx context.Context, id string) (*Topic, error)
	AddAudit(ctx context.Context, e AuditEntry)
}

// TemplateCache is an optional read-through cache in front of TemplateStore.
type TemplateCache interface {
	Get(ctx context.Context, id string) (*Template, error)
	Set(ctx context.Context, t *Template) error
	Invalidate(ctx context.Context, id string) error
}

// TemplatePayload is the editable part of a template. Nil fields keep their current value
// on update and take defaults on create.
type TemplatePayload struct {
	Title                *string               `json:"title"`
	Description          *string               `json:"description"`
	TopicID              *string               `json:"topic_id"`
	IsPublic             *bool                 `json:"is_public"`
	AllowedUsers         *[]string             `json:"allowed_users"`
	Tags                 *[]string             `json:"tags"`
	Slots                map[string]SlotChange `json:"slots"`
	Order                []string              `json:"order"`
	IsQuiz               *bool                 `json:"is_quiz"`
	ShowScoreImmediately *bool                 `json:"show_score_immediately"`
	ScoringCriteria      *string               `json:"scoring_criteria"`
}

type ListQuery struct {
	TopicID string
	Tag     string
	Mine    bool
	Sort    string
	Limit   int
}

type TemplateService struct {
	store TemplateStore
	cache TemplateCache
	log   *zap.Logger
	now   func() time.Time
	idGen func() string
}

func NewTemplateService(store TemplateStore, cache TemplateCache, log *zap.Logger) *TemplateService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TemplateService{
		store: store,
		cache: cache,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(12) },
	}
}

// CreateTemplate persists a new template at version 1 owned by ownerID.
// An empty ownerID means the caller.
func (s *TemplateService) CreateTemplate(ctx context.Context, caller Identity, ownerID string, p TemplatePayload) (*Template, error) {
	if caller.Anonymous() {
		return nil, NewUnauthorizedError("login required")
	}
	if strings.TrimSpace(ownerID) == "" {
		ownerID = caller.UserID
	}
	if !caller.Owns(ownerID) && !caller.IsAdmin {
		return nil, NewForbiddenError("cannot create templates for another user")
	}
	now := s.now()
	base := &Template{Slots: EmptySlots(), CreatedAt: now}
	t, err := s.merge(ctx, base, p, true)
	if err != nil {
		return nil, err
	}
	t.ID = s.idGen()
	t.OwnerID = ownerID
	t.Version = 1
	t.UpdatedAt = now
	if err := s.store.InsertTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	return t, nil
}

// UpdateTemplate applies p to the template. Checks run in a fixed order: existence,
// authorization, version, content; then a conditional write bumps the version.
func (s *TemplateService) UpdateTemplate(ctx context.Context, id string, p TemplatePayload, expectedVersion int, caller Identity) (*Template, error) {
	cur, err := s.loadForWrite(ctx, id, caller, expectedVersion)
	if err != nil {
		return nil, err
	}
	next, err := s.merge(ctx, cur.Clone(), p, false)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, next, expectedVersion, caller, "update_template"); err != nil {
		return nil, err
	}
	return next, nil
}

// MoveQuestion moves one question in the display order.
func (s *TemplateService) MoveQuestion(ctx context.Context, id string, from, to, expectedVersion int, caller Identity) (*Template, error) {
	cur, err := s.loadForWrite(ctx, id, caller, expectedVersion)
	if err != nil {
		return nil, err
	}
	order, err := Reorder(cur.Order, from, to)
	if err != nil {
		return nil, NewFieldError("order", err.Error())
	}
	next := cur.Clone()
	next.Order = order
	if err := s.commit(ctx, next, expectedVersion, caller, "move_question"); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *TemplateService) DeleteTemplate(ctx context.Context, id string, caller Identity) error {
	cur, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return fmt.Errorf("get template: %w", err)
	}
	if cur == nil {
		return NewNotFoundError("template not found")
	}
	if !caller.Owns(cur.OwnerID) && !caller.IsAdmin {
		return NewForbiddenError("only the owner or an admin can delete this template")
	}
	if err := s.store.DeleteTemplate(ctx, id); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	s.invalidate(ctx, id)
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: caller.UserID, Action: "delete_template", Target: id})
	return nil
}

// GetTemplate returns the template if caller may see it.
func (s *TemplateService) GetTemplate(ctx context.Context, id string, caller Identity) (*Template, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, NewNotFoundError("template not found")
	}
	if !t.VisibleTo(caller) {
		return nil, NewForbiddenError("template is private")
	}
	return t, nil
}

func (s *TemplateService) ListTemplates(ctx context.Context, caller Identity, q ListQuery) ([]*Template, error) {
	f := TemplateFilter{TopicID: q.TopicID, Tag: strings.ToLower(strings.TrimSpace(q.Tag)), Sort: q.Sort, Limit: q.Limit}
	if q.Mine {
		if caller.Anonymous() {
			return nil, NewUnauthorizedError("login required")
		}
		f.OwnerID = caller.UserID
	} else {
		f.PublicOnly = true
	}
	switch f.Sort {
	case "", SortLatest:
		f.Sort = SortLatest
	case SortPopular:
	default:
		return nil, NewFieldError("sort", "must be latest or popular")
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	list, err := s.store.ListTemplates(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	for _, t := range list {
		s.heal(t)
	}
	return list, nil
}

// loadForWrite runs the existence, authorization and version checks shared by all mutations.
// It always reads the store, never the cache.
func (s *TemplateService) loadForWrite(ctx context.Context, id string, caller Identity, expectedVersion int) (*Template, error) {
	cur, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if cur == nil {
		return nil, NewNotFoundError("template not found")
	}
	if !caller.Owns(cur.OwnerID) && !caller.IsAdmin {
		return nil, NewForbiddenError("only the owner or an admin can edit this template")
	}
	if expectedVersion != cur.Version {
		return nil, NewConflictError(expectedVersion, cur.Version)
	}
	s.heal(cur)
	return cur, nil
}

func (s *TemplateService) commit(ctx context.Context, next *Template, expectedVersion int, caller Identity, action string) error {
	next.Version = expectedVersion + 1
	next.UpdatedAt = s.now()
	err := s.store.UpdateTemplate(ctx, next, expectedVersion)
	if errors.Is(err, ErrVersionMismatch) {
		latest, gerr := s.store.GetTemplate(ctx, next.ID)
		if gerr != nil {
			return fmt.Errorf("get template: %w", gerr)
		}
		if latest == nil {
			return NewNotFoundError("template not found")
		}
		return NewConflictError(expectedVersion, latest.Version)
	}
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	s.invalidate(ctx, next.ID)
	if !caller.Owns(next.OwnerID) {
		s.store.AddAudit(ctx, AuditEntry{Time: next.UpdatedAt, Actor: caller.UserID, Action: action, Target: next.ID, Note: fmt.Sprintf("v%d", next.Version)})
	}
	return nil
}

func (s *TemplateService) load(ctx context.Context, id string) (*Template, error) {
	if s.cache != nil {
		t, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.Warn("template cache get failed", zap.String("template_id", id), zap.Error(err))
		} else if t != nil {
			s.heal(t)
			return t, nil
		}
	}
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if t == nil {
		return nil, nil
	}
	s.heal(t)
	if s.cache != nil {
		if err := s.cache.Set(ctx, t); err != nil {
			s.log.Warn("template cache set failed", zap.String("template_id", id), zap.Error(err))
		}
	}
	return t, nil
}

func (s *TemplateService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.Warn("template cache invalidate failed", zap.String("template_id", id), zap.Error(err))
	}
}

// heal rebuilds the question order from its stored form, dropping stray ids.
func (s *TemplateService) heal(t *Template) {
	if dropped := healTemplate(t); len(dropped) > 0 {
		s.log.Warn("dropped stray question order entries",
			zap.String("template_id", t.ID),
			zap.Strings("dropped", dropped))
	}
}

func healTemplate(t *Template) []string {
	stored := t.StoredOrder
	if stored == nil {
		stored = OrderStrings(t.Order)
	}
	order, dropped := HealOrder(stored, t.Slots)
	t.Order = order
	t.StoredOrder = nil
	return dropped
}

func (s *TemplateService) merge(ctx context.Context, t *Template, p TemplatePayload, creating bool) (*Template, error) {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if t.Title == "" {
		t.Title = DefaultTitle
	}
	if utf8.RuneCountInString(t.Title) > maxTitleLen {
		return nil, NewFieldError("title", fmt.Sprintf("longer than %d characters", maxTitleLen))
	}
	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	if utf8.RuneCountInString(t.Description) > maxDescriptionLen {
		return nil, NewFieldError("description", fmt.Sprintf("longer than %d characters", maxDescriptionLen))
	}
	if p.TopicID != nil {
		topicID := strings.TrimSpace(*p.TopicID)
		if topicID != "" {
			topic, err := s.store.GetTopic(ctx, topicID)
			if err != nil {
				return nil, fmt.Errorf("get topic: %w", err)
			}
			if topic == nil {
				return nil, NewFieldError("topic_id", "unknown topic")
			}
		}
		t.TopicID = topicID
	}
	if p.IsPublic != nil {
		t.IsPublic = *p.IsPublic
	} else if creating {
		t.IsPublic = true
	}
	if p.AllowedUsers != nil {
		t.AllowedUsers = dedupe(*p.AllowedUsers, false)
	}
	if p.Tags != nil {
		tags := dedupe(*p.Tags, true)
		if len(tags) > maxTags {
			return nil, NewFieldError("tags", fmt.Sprintf("at most %d tags", maxTags))
		}
		for _, tag := range tags {
			if utf8.RuneCountInString(tag) > maxTagLen {
				return nil, NewFieldError("tags", fmt.Sprintf("tag %q longer than %d characters", tag, maxTagLen))
			}
		}
		t.Tags = tags
	}

	slots, _, err := ApplySlots(t.Slots, p.Slots)
	if err != nil {
		return nil, err
	}
	t.Slots = slots
	if p.Order != nil {
		order := make([]SlotID, 0, len(p.Order))
		for _, raw := range p.Order {
			id, err := ParseSlotID(raw)
			if err != nil {
				return nil, NewFieldError("order", err.Error())
			}
			order = append(order, id)
		}
		if err := ValidateOrder(order, slots); err != nil {
			return nil, err
		}
		t.Order = order
	} else {
		t.Order = Reconcile(t.Order, slots.Enabled())
	}

	if p.IsQuiz != nil {
		t.IsQuiz = *p.IsQuiz
	}
	if p.ShowScoreImmediately != nil {
		t.ShowScoreImmediately = *p.ShowScoreImmediately
	}
	if p.ScoringCriteria != nil {
		t.ScoringCriteria = strings.TrimSpace(*p.ScoringCriteria)
	}
	return t, nil
}

func dedupe(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
