package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxCommentLen   = 2000
	maxTopicNameLen = 64
)

type CommunityStore interface {
	GetTemplate(ctx context.Context, id string) (*Template, error)
	ListTopics(ctx context.Context) ([]Topic, error)
	InsertTopic(ctx context.Context, t *Topic) error
	FindTopicByName(ctx context.Context, name string) (*Topic, error)
	// SetLike adds or removes caller's like; both directions are idempotent.
	SetLike(ctx context.Context, templateID, userID string, liked bool) error
	CountLikes(ctx context.Context, templateID string) (int, error)
	HasLiked(ctx context.Context, templateID, userID string) (bool, error)
	InsertComment(ctx context.Context, c *Comment) error
	ListComments(ctx context.Context, templateID string) ([]*Comment, error)
	AddAudit(ctx context.Context, e AuditEntry)
}

// LikeState is what template views show about likes.
type LikeState struct {
	Count   int  `json:"count"`
	LikedBy bool `json:"liked_by_me"`
}

// CommunityService covers topics, likes and comments.
type CommunityService struct {
	store CommunityStore
	now   func() time.Time
	idGen func() string
}

func NewCommunityService(store CommunityStore) *CommunityService {
	return &CommunityService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(12) },
	}
}

func (s *CommunityService) ListTopics(ctx context.Context) ([]Topic, error) {
	list, err := s.store.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return list, nil
}

// CreateTopic is admin only. Topic names are unique, case-insensitively.
func (s *CommunityService) CreateTopic(ctx context.Context, name string, caller Identity) (*Topic, error) {
	if caller.Anonymous() {
		return nil, NewUnauthorizedError("login required")
	}
	if !caller.IsAdmin {
		return nil, NewForbiddenError("admin only")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewFieldError("name", "required")
	}
	if utf8.RuneCountInString(name) > maxTopicNameLen {
		return nil, NewFieldError("name", fmt.Sprintf("longer than %d characters", maxTopicNameLen))
	}
	existing, err := s.store.FindTopicByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find topic: %w", err)
	}
	if existing != nil {
		return nil, &ServiceError{Code: ErrorConflict, Field: "name", Message: "topic already exists"}
	}
	t := &Topic{ID: s.idGen(), Name: name}
	if err := s.store.InsertTopic(ctx, t); err != nil {
		return nil, fmt.Errorf("insert topic: %w", err)
	}
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: caller.UserID, Action: "create_topic", Target: t.ID, Note: name})
	return t, nil
}

// SetLike likes or unlikes a visible template and returns the new state.
func (s *CommunityService) SetLike(ctx context.Context, templateID string, liked bool, caller Identity) (*LikeState, error) {
	if caller.Anonymous() {
		return nil, NewUnauthorizedError("login required")
	}
	if _, err := s.visible(ctx, templateID, caller); err != nil {
		return nil, err
	}
	if err := s.store.SetLike(ctx, templateID, caller.UserID, liked); err != nil {
		return nil, fmt.Errorf("set like: %w", err)
	}
	return s.likeState(ctx, templateID, caller)
}

// Likes reports the like count and whether caller is among the likers.
func (s *CommunityService) Likes(ctx context.Context, templateID string, caller Identity) (*LikeState, error) {
	if _, err := s.visible(ctx, templateID, caller); err != nil {
		return nil, err
	}
	return s.likeState(ctx, templateID, caller)
}

func (s *CommunityService) likeState(ctx context.Context, templateID string, caller Identity) (*LikeState, error) {
	n, err := s.store.CountLikes(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("count likes: %w", err)
	}
	st := &LikeState{Count: n}
	if !caller.Anonymous() {
		if st.LikedBy, err = s.store.HasLiked(ctx, templateID, caller.UserID); err != nil {
			return nil, fmt.Errorf("has liked: %w", err)
		}
	}
	return st, nil
}

func (s *CommunityService) ListComments(ctx context.Context, templateID string, caller Identity) ([]*Comment, error) {
	if _, err := s.visible(ctx, templateID, caller); err != nil {
		return nil, err
	}
	list, err := s.store.ListComments(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return list, nil
}

func (s *CommunityService) AddComment(ctx context.Context, templateID, body string, caller Identity) (*Comment, error) {
	if caller.Anonymous() {
		return nil, NewUnauthorizedError("login required")
	}
	if _, err := s.visible(ctx, templateID, caller); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, NewFieldError("body", "required")
	}
	if utf8.RuneCountInString(body) > maxCommentLen {
		return nil, NewFieldError("body", fmt.Sprintf("longer than %d characters", maxCommentLen))
	}
	c := &Comment{ID: s.idGen(), TemplateID: templateID, AuthorID: caller.UserID, Body: body, CreatedAt: s.now()}
	if err := s.store.InsertComment(ctx, c); err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

func (s *CommunityService) visible(ctx context.Context, templateID string, caller Identity) (*Template, error) {
	t, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if t == nil {
		return nil, NewNotFoundError("template not found")
	}
	if !t.VisibleTo(caller) {
		return nil, NewForbiddenError("template is private")
	}
	return t, nil
}
