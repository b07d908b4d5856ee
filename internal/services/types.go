package services

import (
	"errors"
	"fmt"
	"time"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnauthorized ErrorCode = "unauthorized"
)

// ServiceError is the only error kind handlers translate into a client-facing status.
// Field is set for validation failures; Expected/Current for version conflicts.
type ServiceError struct {
	Code     ErrorCode
	Message  string
	Field    string
	Expected int
	Current  int
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewFieldError(field, msg string) error {
	return &ServiceError{Code: ErrorInvalid, Field: field, Message: field + ": " + msg}
}

func NewConflictError(expected, current int) error {
	return &ServiceError{
		Code:     ErrorConflict,
		Message:  fmt.Sprintf("version conflict: expected %d, found %d", expected, current),
		Expected: expected,
		Current:  current,
	}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HasCode reports whether err is a ServiceError with the given code.
func HasCode(err error, code ErrorCode) bool {
	se, ok := AsServiceError(err)
	return ok && se.Code == code
}

// ErrVersionMismatch is returned by stores when a conditional write finds a different version
// (or no row at all) under the given id.
var ErrVersionMismatch = errors.New("version mismatch")

// ErrEmailTaken is returned by stores when an insert hits the unique e-mail constraint.
var ErrEmailTaken = errors.New("email already registered")

// Identity is the authenticated caller of a mutating operation.
type Identity struct {
	UserID  string
	IsAdmin bool
}

func (id Identity) Anonymous() bool { return id.UserID == "" }

func (id Identity) Owns(ownerID string) bool {
	return id.UserID != "" && id.UserID == ownerID
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	PassHash  []byte    `json:"-"`
	IsAdmin   bool      `json:"is_admin"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"created_at"`
}

type Topic struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Template struct {
	ID                   string    `json:"id"`
	OwnerID              string    `json:"owner_id"`
	TopicID              string    `json:"topic_id"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	IsPublic             bool      `json:"is_public"`
	AllowedUsers         []string  `json:"allowed_users,omitempty"`
	Tags                 []string  `json:"tags,omitempty"`
	Slots                Slots     `json:"slots"`
	Order                []SlotID  `json:"order"`
	StoredOrder          []string  `json:"-"`
	IsQuiz               bool      `json:"is_quiz"`
	ShowScoreImmediately bool      `json:"show_score_immediately"`
	ScoringCriteria      string    `json:"scoring_criteria,omitempty"`
	Version              int       `json:"version"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// VisibleTo reports whether caller may read the template.
func (t *Template) VisibleTo(caller Identity) bool {
	if t.IsPublic || caller.IsAdmin || caller.Owns(t.OwnerID) {
		return true
	}
	for _, uid := range t.AllowedUsers {
		if uid != "" && uid == caller.UserID {
			return true
		}
	}
	return false
}

func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	cp := *t
	cp.AllowedUsers = append([]string(nil), t.AllowedUsers...)
	cp.Tags = append([]string(nil), t.Tags...)
	cp.Order = append([]SlotID(nil), t.Order...)
	cp.StoredOrder = append([]string(nil), t.StoredOrder...)
	return &cp
}

type Response struct {
	ID          string    `json:"id"`
	TemplateID  string    `json:"template_id"`
	SubmitterID string    `json:"submitter_id"`
	Answers     Answers   `json:"answers"`
	Score       *int      `json:"score,omitempty"`
	MaxScore    *int      `json:"max_score,omitempty"`
	ScoreViewed bool      `json:"score_viewed"`
	Version     int       `json:"version"`
	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Answers = r.Answers.Clone()
	if r.Score != nil {
		v := *r.Score
		cp.Score = &v
	}
	if r.MaxScore != nil {
		v := *r.MaxScore
		cp.MaxScore = &v
	}
	return &cp
}

type Comment struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"template_id"`
	AuthorID   string    `json:"author_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}

// TemplateFilter narrows gallery listings. Zero values mean "any".
type TemplateFilter struct {
	TopicID    string
	Tag        string
	OwnerID    string
	PublicOnly bool
	Sort       string
	Limit      int
}

const (
	SortLatest  = "latest"
	SortPopular = "popular"
)
