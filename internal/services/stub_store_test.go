package services

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// stubStore is an in-memory store implementing every service store interface.
type stubStore struct {
	mu        sync.Mutex
	templates map[string]*Template
	responses map[string]*Response
	users     map[string]*User
	topics    map[string]Topic
	likes     map[string]map[string]bool
	comments  map[string][]*Comment
	audit     []AuditEntry

	// getHook runs before GetTemplate returns; tests use it to interleave writers.
	getHook func(id string)
	// updates counts successful template writes.
	updates int
}

func newStubStore() *stubStore {
	return &stubStore{
		templates: map[string]*Template{},
		responses: map[string]*Response{},
		users:     map[string]*User{},
		topics:    map[string]Topic{"edu": {ID: "edu", Name: "Education"}},
		likes:     map[string]map[string]bool{},
		comments:  map[string][]*Comment{},
	}
}

// persisted mimics a real store: the order is handed back in its stored string form.
func persisted(t *Template) *Template {
	cp := t.Clone()
	if cp.StoredOrder == nil {
		cp.StoredOrder = OrderStrings(cp.Order)
	}
	cp.Order = nil
	return cp
}

func (s *stubStore) InsertTemplate(_ context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = persisted(t)
	return nil
}

func (s *stubStore) GetTemplate(_ context.Context, id string) (*Template, error) {
	s.mu.Lock()
	t, ok := s.templates[id]
	var out *Template
	if ok {
		out = t.Clone()
	}
	hook := s.getHook
	s.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return out, nil
}

func (s *stubStore) UpdateTemplate(_ context.Context, t *Template, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.templates[t.ID]
	if !ok || cur.Version != expectedVersion {
		return ErrVersionMismatch
	}
	s.templates[t.ID] = persisted(t)
	s.updates++
	return nil
}

func (s *stubStore) DeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, id)
	for rid, r := range s.responses {
		if r.TemplateID == id {
			delete(s.responses, rid)
		}
	}
	delete(s.likes, id)
	delete(s.comments, id)
	return nil
}

func (s *stubStore) ListTemplates(_ context.Context, f TemplateFilter) ([]*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Template
	for _, t := range s.templates {
		if f.PublicOnly && !t.IsPublic {
			continue
		}
		if f.OwnerID != "" && t.OwnerID != f.OwnerID {
			continue
		}
		if f.TopicID != "" && t.TopicID != f.TopicID {
			continue
		}
		if f.Tag != "" && !containsString(t.Tags, f.Tag) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (s *stubStore) GetTopic(_ context.Context, id string) (*Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.topics[id]; ok {
		return &t, nil
	}
	return nil, nil
}

func (s *stubStore) ListTopics(context.Context) ([]Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Topic, 0, len(s.topics))
	for _, t := range s.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *stubStore) InsertTopic(_ context.Context, t *Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[t.ID] = *t
	return nil
}

func (s *stubStore) FindTopicByName(_ context.Context, name string) (*Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.topics {
		if strings.EqualFold(t.Name, name) {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubStore) AddAudit(_ context.Context, e AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
}

func (s *stubStore) ListAudit(_ context.Context, limit int) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.audit[i])
	}
	return out, nil
}

func (s *stubStore) InsertResponse(_ context.Context, r *Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[r.ID] = r.Clone()
	return nil
}

func (s *stubStore) GetResponse(_ context.Context, id string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.responses[id]; ok {
		return r.Clone(), nil
	}
	return nil, nil
}

func (s *stubStore) UpdateResponse(_ context.Context, r *Response, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.responses[r.ID]
	if !ok || cur.Version != expectedVersion {
		return ErrVersionMismatch
	}
	s.responses[r.ID] = r.Clone()
	return nil
}

func (s *stubStore) ListResponsesByTemplate(_ context.Context, templateID string) ([]*Response, error) {
	return s.filterResponses(func(r *Response) bool { return r.TemplateID == templateID }), nil
}

func (s *stubStore) ListResponsesBySubmitter(_ context.Context, userID string) ([]*Response, error) {
	return s.filterResponses(func(r *Response) bool { return r.SubmitterID == userID }), nil
}

func (s *stubStore) filterResponses(keep func(*Response) bool) []*Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Response
	for _, r := range s.responses {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func (s *stubStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) ListUsers(context.Context) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubStore) SetUserFlags(_ context.Context, id string, isAdmin, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	u.IsAdmin, u.Blocked = isAdmin, blocked
	return nil
}

func (s *stubStore) SetLike(_ context.Context, templateID, userID string, liked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.likes[templateID] == nil {
		s.likes[templateID] = map[string]bool{}
	}
	if liked {
		s.likes[templateID][userID] = true
	} else {
		delete(s.likes[templateID], userID)
	}
	return nil
}

func (s *stubStore) CountLikes(_ context.Context, templateID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.likes[templateID]), nil
}

func (s *stubStore) HasLiked(_ context.Context, templateID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.likes[templateID][userID], nil
}

func (s *stubStore) InsertComment(_ context.Context, c *Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.comments[c.TemplateID] = append(s.comments[c.TemplateID], &cp)
	return nil
}

func (s *stubStore) ListComments(_ context.Context, templateID string) ([]*Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Comment, 0, len(s.comments[templateID]))
	for _, c := range s.comments[templateID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
