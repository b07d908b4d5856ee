package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/soaringjerry/Formly/internal/services"
)

type State int

const (
	Idle State = iota
	Loading
	Ready
	Submitting
	Success
	Error
)

var stateNames = [...]string{"idle", "loading", "ready", "submitting", "success", "error"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ErrNotReady is returned by edits and submissions attempted outside the Ready state.
var ErrNotReady = errors.New("editor is not ready")

// ErrNoFields is returned by Submit while no slot is enabled.
var ErrNoFields = errors.New("enable at least one field before saving")

// ErrKindFull is returned by AddField when every slot of the kind is already in use.
var ErrKindFull = errors.New("no free field of this kind")

// EditorAPI is the part of Client the editor talks to.
type EditorAPI interface {
	GetTemplate(ctx context.Context, id string) (*services.Template, error)
	CreateTemplate(ctx context.Context, p services.TemplatePayload) (*services.Template, error)
	UpdateTemplate(ctx context.Context, id string, expectedVersion int, p services.TemplatePayload) (*services.Template, error)
	SaveDraft(ctx context.Context, templateID string, payload any, baseVersion int) error
}

// Form is the editable state of one template.
type Form struct {
	Title                string
	Description          string
	TopicID              string
	IsPublic             bool
	Tags                 []string
	Slots                services.Slots
	Order                []services.SlotID
	IsQuiz               bool
	ShowScoreImmediately bool
	ScoringCriteria      string
}

func blankForm() Form {
	return Form{Slots: services.EmptySlots(), Order: []services.SlotID{}}
}

func formOf(t *services.Template) Form {
	return Form{
		Title:                t.Title,
		Description:          t.Description,
		TopicID:              t.TopicID,
		IsPublic:             t.IsPublic,
		Tags:                 append([]string(nil), t.Tags...),
		Slots:                t.Slots,
		Order:                services.Reconcile(t.Order, t.Slots.Enabled()),
		IsQuiz:               t.IsQuiz,
		ShowScoreImmediately: t.ShowScoreImmediately,
		ScoringCriteria:      t.ScoringCriteria,
	}
}

// Payload renders the form as a full replacement of the template's editable fields.
func (f Form) Payload() services.TemplatePayload {
	slots := make(map[string]services.SlotChange, services.SlotCount)
	for i, s := range f.Slots {
		slots[services.SlotID(i).String()] = services.SlotChange{Enabled: s.Enabled, Label: s.Label}
	}
	tags := append([]string{}, f.Tags...)
	return services.TemplatePayload{
		Title:                &f.Title,
		Description:          &f.Description,
		TopicID:              &f.TopicID,
		IsPublic:             &f.IsPublic,
		Tags:                 &tags,
		Slots:                slots,
		Order:                services.OrderStrings(f.Order),
		IsQuiz:               &f.IsQuiz,
		ShowScoreImmediately: &f.ShowScoreImmediately,
		ScoringCriteria:      &f.ScoringCriteria,
	}
}

// Editor drives the create/edit screen of one template:
//
//	Idle -> Loading -> Ready -> Submitting -> Success
//	           |                   |
//	           v                   v
//	         Error -> Idle       Error -> Ready
//
// An Editor is not safe for concurrent use.
type Editor struct {
	api   EditorAPI
	state State
	form  Form
	id    string
	ver   int
	err   error

	// OnTransition observes every state change.
	OnTransition func(from, to State)
	// Navigate is called with the template id after a successful save.
	Navigate func(templateID string)
}

func NewEditor(api EditorAPI) *Editor {
	return &Editor{api: api, form: blankForm()}
}

func (e *Editor) State() State { return e.state }

// Err is the error of the last failed load or submit; it is cleared by the next attempt.
func (e *Editor) Err() error { return e.err }

func (e *Editor) TemplateID() string { return e.id }

func (e *Editor) Version() int { return e.ver }

// Form returns a copy of the current form.
func (e *Editor) Form() Form {
	f := e.form
	f.Tags = append([]string(nil), e.form.Tags...)
	f.Order = append([]services.SlotID(nil), e.form.Order...)
	return f
}

func (e *Editor) to(s State) {
	from := e.state
	e.state = s
	if e.OnTransition != nil && from != s {
		e.OnTransition(from, s)
	}
}

// New starts a blank template.
func (e *Editor) New() error {
	if e.state != Idle {
		return fmt.Errorf("new: %w", ErrNotReady)
	}
	e.form, e.id, e.ver, e.err = blankForm(), "", 0, nil
	e.to(Ready)
	return nil
}

// Load fetches an existing template for editing. A failed load passes through Error back to Idle.
func (e *Editor) Load(ctx context.Context, id string) error {
	if e.state != Idle {
		return fmt.Errorf("load: %w", ErrNotReady)
	}
	e.err = nil
	e.to(Loading)
	t, err := e.api.GetTemplate(ctx, id)
	if err != nil {
		e.err = err
		e.to(Error)
		e.to(Idle)
		return err
	}
	e.form, e.id, e.ver = formOf(t), t.ID, t.Version
	e.to(Ready)
	return nil
}

// Reset returns a finished or idle editor to Idle.
func (e *Editor) Reset() {
	if e.state == Loading || e.state == Submitting {
		return
	}
	e.form, e.id, e.ver, e.err = blankForm(), "", 0, nil
	e.to(Idle)
}

// Edit applies fn to the form. Slot and order edits should go through SetSlot and Move.
func (e *Editor) Edit(fn func(*Form)) error {
	if e.state != Ready {
		return ErrNotReady
	}
	fn(&e.form)
	e.form.Order = services.Reconcile(e.form.Order, e.form.Slots.Enabled())
	return nil
}

// SetSlot enables or disables a slot. Newly enabled slots go to the end of the order;
// a disabled slot loses its label.
func (e *Editor) SetSlot(id services.SlotID, enabled bool, label string) error {
	if e.state != Ready {
		return ErrNotReady
	}
	if !id.Valid() {
		return fmt.Errorf("set slot: invalid slot %d", int(id))
	}
	e.form.Slots[id].Enabled = enabled
	if enabled {
		e.form.Slots[id].Label = label
	} else {
		e.form.Slots[id].Label = ""
	}
	e.form.Order = services.Reconcile(e.form.Order, e.form.Slots.Enabled())
	return nil
}

// Move moves the question at position from to position to.
func (e *Editor) Move(from, to int) error {
	if e.state != Ready {
		return ErrNotReady
	}
	next, err := services.Reorder(e.form.Order, from, to)
	if err != nil {
		return err
	}
	e.form.Order = next
	return nil
}

// CanAdd reports whether AddField can enable another field of kind.
func (e *Editor) CanAdd(kind services.SlotKind) bool {
	return e.state == Ready && e.form.Slots.Summary().CanAdd(kind)
}

// AddField enables the lowest free slot of kind and appends it to the question order.
func (e *Editor) AddField(kind services.SlotKind, label string) (services.SlotID, error) {
	if e.state != Ready {
		return 0, ErrNotReady
	}
	if !e.CanAdd(kind) {
		return 0, ErrKindFull
	}
	for n := 1; n <= services.SlotsPerKind; n++ {
		id := services.NewSlotID(kind, n)
		if !e.form.Slots[id].Enabled {
			return id, e.SetSlot(id, true, label)
		}
	}
	return 0, ErrKindFull
}

// CanSubmit is false unless the editor is Ready and at least one slot is enabled.
func (e *Editor) CanSubmit() bool {
	return e.state == Ready && e.form.Slots.Summary().Total > 0
}

// Submit creates or updates the template. On failure the editor returns to Ready with Err set
// and the form untouched; a conflict shows up as an *APIError with IsConflict.
func (e *Editor) Submit(ctx context.Context) error {
	if e.state != Ready {
		return ErrNotReady
	}
	if !e.CanSubmit() {
		return ErrNoFields
	}
	e.err = nil
	e.to(Submitting)
	var (
		t   *services.Template
		err error
	)
	if e.id == "" {
		t, err = e.api.CreateTemplate(ctx, e.form.Payload())
	} else {
		t, err = e.api.UpdateTemplate(ctx, e.id, e.ver, e.form.Payload())
	}
	if err != nil {
		e.err = err
		e.to(Error)
		e.to(Ready)
		return err
	}
	e.id, e.ver = t.ID, t.Version
	e.form = formOf(t)
	e.to(Success)
	if e.Navigate != nil {
		e.Navigate(t.ID)
	}
	return nil
}

// SaveDraft autosaves the form without changing state.
func (e *Editor) SaveDraft(ctx context.Context) error {
	if e.state != Ready {
		return ErrNotReady
	}
	id := e.id
	if id == "" {
		id = services.NewTemplateDraftID
	}
	return e.api.SaveDraft(ctx, id, e.form.Payload(), e.ver)
}
