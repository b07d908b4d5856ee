package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ResponseStore abstracts persistence operations required by ResponseService.
type ResponseStore interface {
	GetTemplate(ctx context.Context, id string) (*Template, error)
	InsertResponse(ctx context.Context, r *Response) error
	// GetResponse returns nil, nil when the id is unknown.
	GetResponse(ctx context.Context, id string) (*Response, error)
	// UpdateResponse writes r only if the stored version equals expectedVersion,
	// otherwise it returns ErrVersionMismatch.
	UpdateResponse(ctx context.Context, r *Response, expectedVersion int) error
	ListResponsesByTemplate(ctx context.Context, templateID string) ([]*Response, error)
	ListResponsesBySubmitter(ctx context.Context, userID string) ([]*Response, error)
}

// ResponseService hosts submission and review of filled-in templates.
type ResponseService struct {
	store ResponseStore
	log   *zap.Logger
	now   func() time.Time
	idGen func() string
}

func NewResponseService(store ResponseStore, log *zap.Logger) *ResponseService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ResponseService{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(12) },
	}
}

// SubmitResponse records caller's answers to a template. The returned response has its score
// hidden unless the quiz shows scores immediately.
func (s *ResponseService) SubmitResponse(ctx context.Context, templateID string, caller Identity, raw map[string]json.RawMessage) (*Response, error) {
	if caller.Anonymous() {
		return nil, NewUnauthorizedError("login required")
	}
	t, err := s.template(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !t.VisibleTo(caller) {
		return nil, NewForbiddenError("template is private")
	}
	answers, err := ParseAnswers(raw, t.Slots)
	if err != nil {
		return nil, err
	}
	now := s.now()
	r := &Response{
		ID:          s.idGen(),
		TemplateID:  t.ID,
		SubmitterID: caller.UserID,
		Answers:     answers,
		Version:     1,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	s.score(t, r)
	if r.Score != nil && t.ShowScoreImmediately {
		r.ScoreViewed = true
	}
	if err := s.store.InsertResponse(ctx, r); err != nil {
		return nil, fmt.Errorf("insert response: %w", err)
	}
	return maskScore(r, t, caller), nil
}

func (s *ResponseService) GetResponse(ctx context.Context, id string, caller Identity) (*Response, error) {
	r, t, err := s.loadReadable(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	return maskScore(r, t, caller), nil
}

// UpdateResponse replaces the answers of a response. Same ordering contract as template updates.
func (s *ResponseService) UpdateResponse(ctx context.Context, id string, raw map[string]json.RawMessage, expectedVersion int, caller Identity) (*Response, error) {
	r, t, err := s.loadReadable(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if expectedVersion != r.Version {
		return nil, NewConflictError(expectedVersion, r.Version)
	}
	if t == nil {
		return nil, NewNotFoundError("template not found")
	}
	answers, err := ParseAnswers(raw, t.Slots)
	if err != nil {
		return nil, err
	}
	next := r.Clone()
	next.Answers = answers
	s.score(t, next)
	if err := s.commit(ctx, next, expectedVersion); err != nil {
		return nil, err
	}
	return maskScore(next, t, caller), nil
}

// ViewScore reveals a quiz score to its submitter and records that it was seen.
func (s *ResponseService) ViewScore(ctx context.Context, id string, caller Identity) (*Response, error) {
	r, err := s.store.GetResponse(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}
	if r == nil {
		return nil, NewNotFoundError("response not found")
	}
	if !caller.Owns(r.SubmitterID) && !caller.IsAdmin {
		return nil, NewForbiddenError("only the submitter can view this score")
	}
	if r.Score == nil {
		return nil, NewInvalidError("response has no score")
	}
	if r.ScoreViewed || !caller.Owns(r.SubmitterID) {
		return r, nil
	}
	next := r.Clone()
	next.ScoreViewed = true
	if err := s.commit(ctx, next, r.Version); err != nil {
		return nil, err
	}
	return next, nil
}

// ListResponses returns every response to a template; owner or admin only.
func (s *ResponseService) ListResponses(ctx context.Context, templateID string, caller Identity) ([]*Response, error) {
	t, err := s.template(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(t.OwnerID) && !caller.IsAdmin {
		return nil, NewForbiddenError("only the owner or an admin can list responses")
	}
	list, err := s.store.ListResponsesByTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return list, nil
}

func (s *ResponseService) ListMyResponses(ctx context.Context, caller Identity) ([]*Response, error) {
	if caller.Anonymous() {
		return nil, NewUnauthorizedError("login required")
	}
	list, err := s.store.ListResponsesBySubmitter(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	out := make([]*Response, 0, len(list))
	for _, r := range list {
		t, err := s.store.GetTemplate(ctx, r.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("get template: %w", err)
		}
		out = append(out, maskScore(r, t, caller))
	}
	return out, nil
}

// ExportCSV renders all responses to a template as CSV, one row per response.
func (s *ResponseService) ExportCSV(ctx context.Context, templateID string, caller Identity) ([]byte, error) {
	t, err := s.template(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(t.OwnerID) && !caller.IsAdmin {
		return nil, NewForbiddenError("only the owner or an admin can export responses")
	}
	list, err := s.store.ListResponsesByTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return ExportResponsesCSV(t, list)
}

func (s *ResponseService) template(ctx context.Context, id string) (*Template, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if t == nil {
		return nil, NewNotFoundError("template not found")
	}
	healTemplate(t)
	return t, nil
}

// loadReadable allows the submitter, the template owner and admins. The template is nil when
// it has been deleted out from under the response.
func (s *ResponseService) loadReadable(ctx context.Context, id string, caller Identity) (*Response, *Template, error) {
	r, err := s.store.GetResponse(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get response: %w", err)
	}
	if r == nil {
		return nil, nil, NewNotFoundError("response not found")
	}
	t, err := s.store.GetTemplate(ctx, r.TemplateID)
	if err != nil {
		return nil, nil, fmt.Errorf("get template: %w", err)
	}
	allowed := caller.IsAdmin || caller.Owns(r.SubmitterID) || (t != nil && caller.Owns(t.OwnerID))
	if !allowed {
		return nil, nil, NewForbiddenError("not allowed to access this response")
	}
	return r, t, nil
}

func (s *ResponseService) commit(ctx context.Context, next *Response, expectedVersion int) error {
	next.Version = expectedVersion + 1
	next.UpdatedAt = s.now()
	err := s.store.UpdateResponse(ctx, next, expectedVersion)
	if errors.Is(err, ErrVersionMismatch) {
		latest, gerr := s.store.GetResponse(ctx, next.ID)
		if gerr != nil {
			return fmt.Errorf("get response: %w", gerr)
		}
		if latest == nil {
			return NewNotFoundError("response not found")
		}
		return NewConflictError(expectedVersion, latest.Version)
	}
	if err != nil {
		return fmt.Errorf("update response: %w", err)
	}
	return nil
}

func (s *ResponseService) score(t *Template, r *Response) {
	r.Score, r.MaxScore = nil, nil
	if !t.IsQuiz {
		return
	}
	score, max, ok := ScoreAnswers(t.ScoringCriteria, t.Slots, r.Answers)
	if !ok {
		s.log.Warn("quiz scoring criteria unusable, response left unscored",
			zap.String("template_id", t.ID), zap.String("response_id", r.ID))
		return
	}
	r.Score, r.MaxScore = &score, &max
}

// maskScore hides the score from a submitter who has not revealed it yet.
func maskScore(r *Response, t *Template, caller Identity) *Response {
	if r.Score == nil || caller.IsAdmin || (t != nil && caller.Owns(t.OwnerID)) {
		return r
	}
	if r.ScoreViewed || (t != nil && t.ShowScoreImmediately) {
		return r
	}
	out := r.Clone()
	out.Score, out.MaxScore = nil, nil
	return out
}
