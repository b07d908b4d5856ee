package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/Formly/internal/services"
)

type stubAPI struct {
	templates map[string]*services.Template
	getErr    error
	saveErr   error
	created   []services.TemplatePayload
	updated   []int
	drafts    map[string]any
}

func newStubAPI() *stubAPI {
	return &stubAPI{templates: map[string]*services.Template{}, drafts: map[string]any{}}
}

func (s *stubAPI) GetTemplate(_ context.Context, id string) (*services.Template, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	t, ok := s.templates[id]
	if !ok {
		return nil, &APIError{Status: http.StatusNotFound, Code: "not_found"}
	}
	return t.Clone(), nil
}

func (s *stubAPI) apply(t *services.Template, p services.TemplatePayload) {
	t.Title = *p.Title
	for key, ch := range p.Slots {
		id, _ := services.ParseSlotID(key)
		t.Slots[id] = services.Slot{Kind: id.Kind(), Enabled: ch.Enabled, Label: ch.Label}
	}
	t.Order = nil
	for _, key := range p.Order {
		id, _ := services.ParseSlotID(key)
		t.Order = append(t.Order, id)
	}
}

func (s *stubAPI) CreateTemplate(_ context.Context, p services.TemplatePayload) (*services.Template, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	s.created = append(s.created, p)
	t := &services.Template{ID: "t-new", Version: 1, Slots: services.EmptySlots(), CreatedAt: time.Now()}
	s.apply(t, p)
	s.templates[t.ID] = t
	return t.Clone(), nil
}

func (s *stubAPI) UpdateTemplate(_ context.Context, id string, expectedVersion int, p services.TemplatePayload) (*services.Template, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	s.updated = append(s.updated, expectedVersion)
	t := s.templates[id]
	if t.Version != expectedVersion {
		return nil, &APIError{Status: http.StatusConflict, Code: "conflict", ExpectedVersion: expectedVersion, CurrentVersion: t.Version}
	}
	s.apply(t, p)
	t.Version++
	return t.Clone(), nil
}

func (s *stubAPI) SaveDraft(_ context.Context, templateID string, payload any, _ int) error {
	s.drafts[templateID] = payload
	return nil
}

type recorder struct{ seen []State }

func (r *recorder) hook(_, to State) { r.seen = append(r.seen, to) }

func TestNewEditorCannotSubmitWithoutFields(t *testing.T) {
	api := newStubAPI()
	e := NewEditor(api)
	rec := &recorder{}
	e.OnTransition = rec.hook

	require.NoError(t, e.New())
	assert.Equal(t, Ready, e.State())
	assert.False(t, e.CanSubmit())
	assert.ErrorIs(t, e.Submit(context.Background()), ErrNoFields)
	assert.Equal(t, Ready, e.State())
	assert.Equal(t, []State{Ready}, rec.seen)
	assert.Empty(t, api.created)
}

func TestAddFieldCapsEachKind(t *testing.T) {
	e := NewEditor(newStubAPI())
	_, err := e.AddField(services.KindInteger, "Age")
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, e.New())
	require.NoError(t, e.SetSlot(services.NewSlotID(services.KindInteger, 2), true, "Taken"))
	var added []services.SlotID
	for e.CanAdd(services.KindInteger) {
		id, err := e.AddField(services.KindInteger, "n")
		require.NoError(t, err)
		added = append(added, id)
	}
	assert.Equal(t, []services.SlotID{
		services.NewSlotID(services.KindInteger, 1),
		services.NewSlotID(services.KindInteger, 3),
		services.NewSlotID(services.KindInteger, 4),
	}, added)
	_, err = e.AddField(services.KindInteger, "fifth")
	assert.ErrorIs(t, err, ErrKindFull)
	assert.True(t, e.CanAdd(services.KindCheckbox))
	assert.Len(t, e.Form().Order, services.SlotsPerKind)
}

func TestSubmitNavigatesOnSuccess(t *testing.T) {
	api := newStubAPI()
	e := NewEditor(api)
	rec := &recorder{}
	e.OnTransition = rec.hook
	var navigated string
	e.Navigate = func(id string) { navigated = id }

	require.NoError(t, e.New())
	require.NoError(t, e.Edit(func(f *Form) { f.Title = "Party RSVP" }))
	require.NoError(t, e.SetSlot(services.NewSlotID(services.KindShortText, 1), true, "Name"))
	require.NoError(t, e.SetSlot(services.NewSlotID(services.KindCheckbox, 1), true, "Coming?"))
	require.NoError(t, e.Move(1, 0))
	require.True(t, e.CanSubmit())

	require.NoError(t, e.Submit(context.Background()))
	assert.Equal(t, Success, e.State())
	assert.Equal(t, "t-new", navigated)
	assert.Equal(t, 1, e.Version())
	assert.Equal(t, []State{Ready, Submitting, Success}, rec.seen)
	require.Len(t, api.created, 1)
	assert.Equal(t, []string{"checkbox#1", "shortText#1"}, api.created[0].Order)
}

func TestFailedSubmitPreservesEdits(t *testing.T) {
	api := newStubAPI()
	api.saveErr = errors.New("network down")
	e := NewEditor(api)
	rec := &recorder{}
	e.OnTransition = rec.hook

	require.NoError(t, e.New())
	require.NoError(t, e.Edit(func(f *Form) { f.Title = "Draft title" }))
	require.NoError(t, e.SetSlot(services.NewSlotID(services.KindLongText, 2), true, "Story"))
	before := e.Form()

	err := e.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, Ready, e.State())
	assert.Equal(t, err, e.Err())
	if diff := cmp.Diff(before, e.Form()); diff != "" {
		t.Fatalf("form changed after failed submit (-want +got):\n%s", diff)
	}
	assert.Equal(t, []State{Ready, Submitting, Error, Ready}, rec.seen)

	api.saveErr = nil
	require.NoError(t, e.Submit(context.Background()))
	assert.Nil(t, e.Err())
}

func TestDisablingLastFieldBlocksSubmit(t *testing.T) {
	e := NewEditor(newStubAPI())
	require.NoError(t, e.New())
	id := services.NewSlotID(services.KindInteger, 3)
	require.NoError(t, e.SetSlot(id, true, "Age"))
	require.True(t, e.CanSubmit())
	require.NoError(t, e.SetSlot(id, false, "ignored"))
	assert.False(t, e.CanSubmit())
	assert.Empty(t, e.Form().Order)
	assert.Empty(t, e.Form().Slots[id].Label)
}

func TestLoadAndConflictingUpdate(t *testing.T) {
	api := newStubAPI()
	slots := services.EmptySlots()
	slots[0] = services.Slot{Kind: services.KindShortText, Enabled: true, Label: "Name"}
	api.templates["t1"] = &services.Template{ID: "t1", Title: "Old", Version: 3, Slots: slots, Order: []services.SlotID{0}}

	e := NewEditor(api)
	require.NoError(t, e.Load(context.Background(), "t1"))
	assert.Equal(t, Ready, e.State())
	assert.Equal(t, 3, e.Version())

	api.templates["t1"].Version = 4
	require.NoError(t, e.Edit(func(f *Form) { f.Title = "Mine" }))
	err := e.Submit(context.Background())
	ae, ok := AsAPIError(err)
	require.True(t, ok)
	assert.True(t, ae.IsConflict())
	assert.Equal(t, 4, ae.CurrentVersion)
	assert.Equal(t, "Mine", e.Form().Title)
	assert.Equal(t, []int{3}, api.updated)
}

func TestFailedLoadReturnsToIdle(t *testing.T) {
	e := NewEditor(newStubAPI())
	rec := &recorder{}
	e.OnTransition = rec.hook
	err := e.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, Idle, e.State())
	assert.Equal(t, []State{Loading, Error, Idle}, rec.seen)
	assert.ErrorIs(t, e.SetSlot(0, true, "x"), ErrNotReady)
}

func TestSaveDraftUsesNewForUnsaved(t *testing.T) {
	api := newStubAPI()
	e := NewEditor(api)
	require.NoError(t, e.New())
	require.NoError(t, e.SaveDraft(context.Background()))
	assert.Contains(t, api.drafts, services.NewTemplateDraftID)
	assert.Equal(t, Ready, e.State())
}

func TestMoveOutOfRange(t *testing.T) {
	e := NewEditor(newStubAPI())
	require.NoError(t, e.New())
	require.NoError(t, e.SetSlot(0, true, ""))
	var ie *services.IndexError
	assert.ErrorAs(t, e.Move(0, 3), &ie)
}
