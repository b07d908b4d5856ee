package mongostore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/soaringjerry/Formly/internal/services"
)

type slotDoc struct {
	Slot    int    `bson:"slot"`
	Enabled bool   `bson:"enabled"`
	Label   string `bson:"label,omitempty"`
}

type templateDoc struct {
	ID                   string    `bson:"_id"`
	OwnerID              string    `bson:"owner_id"`
	TopicID              string    `bson:"topic_id"`
	Title                string    `bson:"title"`
	Description          string    `bson:"description"`
	IsPublic             bool      `bson:"is_public"`
	AllowedUsers         []string  `bson:"allowed_users"`
	Tags                 []string  `bson:"tags"`
	Slots                []slotDoc `bson:"slots"`
	Order                []string  `bson:"question_order"`
	IsQuiz               bool      `bson:"is_quiz"`
	ShowScoreImmediately bool      `bson:"show_score_immediately"`
	ScoringCriteria      string    `bson:"scoring_criteria"`
	Version              int       `bson:"version"`
	ResponseCount        int       `bson:"response_count"`
	CreatedAt            time.Time `bson:"created_at"`
	UpdatedAt            time.Time `bson:"updated_at"`
}

func toTemplateDoc(t *services.Template) templateDoc {
	d := templateDoc{
		ID:                   t.ID,
		OwnerID:              t.OwnerID,
		TopicID:              t.TopicID,
		Title:                t.Title,
		Description:          t.Description,
		IsPublic:             t.IsPublic,
		AllowedUsers:         nonNil(t.AllowedUsers),
		Tags:                 nonNil(t.Tags),
		Order:                services.OrderStrings(t.Order),
		IsQuiz:               t.IsQuiz,
		ShowScoreImmediately: t.ShowScoreImmediately,
		ScoringCriteria:      t.ScoringCriteria,
		Version:              t.Version,
		CreatedAt:            t.CreatedAt.UTC(),
		UpdatedAt:            t.UpdatedAt.UTC(),
	}
	for i, s := range t.Slots {
		if s.Enabled {
			d.Slots = append(d.Slots, slotDoc{Slot: i, Enabled: true, Label: s.Label})
		}
	}
	return d
}

// template leaves Order empty and fills StoredOrder for the service to heal.
func (d templateDoc) template() *services.Template {
	t := &services.Template{
		ID:                   d.ID,
		OwnerID:              d.OwnerID,
		TopicID:              d.TopicID,
		Title:                d.Title,
		Description:          d.Description,
		IsPublic:             d.IsPublic,
		AllowedUsers:         d.AllowedUsers,
		Tags:                 d.Tags,
		Slots:                services.EmptySlots(),
		StoredOrder:          nonNil(d.Order),
		IsQuiz:               d.IsQuiz,
		ShowScoreImmediately: d.ShowScoreImmediately,
		ScoringCriteria:      d.ScoringCriteria,
		Version:              d.Version,
		CreatedAt:            d.CreatedAt.UTC(),
		UpdatedAt:            d.UpdatedAt.UTC(),
	}
	for _, s := range d.Slots {
		id := services.SlotID(s.Slot)
		if !id.Valid() || !s.Enabled {
			continue
		}
		t.Slots[id].Enabled = true
		t.Slots[id].Label = s.Label
	}
	return t
}

type responseDoc struct {
	ID          string         `bson:"_id"`
	TemplateID  string         `bson:"template_id"`
	SubmitterID string         `bson:"submitter_id"`
	Answers     map[string]any `bson:"answers"`
	Score       *int           `bson:"score,omitempty"`
	MaxScore    *int           `bson:"max_score,omitempty"`
	ScoreViewed bool           `bson:"score_viewed"`
	Version     int            `bson:"version"`
	SubmittedAt time.Time      `bson:"submitted_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
}

func toResponseDoc(r *services.Response) responseDoc {
	answers := make(map[string]any, len(r.Answers))
	for id, a := range r.Answers {
		answers[id.String()] = a.Value()
	}
	return responseDoc{
		ID:          r.ID,
		TemplateID:  r.TemplateID,
		SubmitterID: r.SubmitterID,
		Answers:     answers,
		Score:       r.Score,
		MaxScore:    r.MaxScore,
		ScoreViewed: r.ScoreViewed,
		Version:     r.Version,
		SubmittedAt: r.SubmittedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

// response decodes answers through their JSON form so the slot kind drives the value type
// the same way it does for submissions.
func (d responseDoc) response() (*services.Response, error) {
	r := &services.Response{
		ID:          d.ID,
		TemplateID:  d.TemplateID,
		SubmitterID: d.SubmitterID,
		Score:       d.Score,
		MaxScore:    d.MaxScore,
		ScoreViewed: d.ScoreViewed,
		Version:     d.Version,
		SubmittedAt: d.SubmittedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	b, err := json.Marshal(d.Answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers of %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(b, &r.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of %s: %w", d.ID, err)
	}
	return r, nil
}

type userDoc struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	Name      string    `bson:"name"`
	PassHash  []byte    `bson:"pass_hash"`
	IsAdmin   bool      `bson:"is_admin"`
	Blocked   bool      `bson:"blocked"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d userDoc) user() *services.User {
	return &services.User{
		ID: d.ID, Email: d.Email, Name: d.Name, PassHash: d.PassHash,
		IsAdmin: d.IsAdmin, Blocked: d.Blocked, CreatedAt: d.CreatedAt.UTC(),
	}
}

type topicDoc struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	NameLower string `bson:"name_lower"`
}

type commentDoc struct {
	ID         string    `bson:"_id"`
	TemplateID string    `bson:"template_id"`
	AuthorID   string    `bson:"author_id"`
	Body       string    `bson:"body"`
	CreatedAt  time.Time `bson:"created_at"`
}

type auditDoc struct {
	Time   time.Time `bson:"time"`
	Actor  string    `bson:"actor"`
	Action string    `bson:"action"`
	Target string    `bson:"target"`
	Note   string    `bson:"note,omitempty"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
