package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap/zaptest"

	"github.com/soaringjerry/Formly/internal/services"
)

func sampleTemplate() *services.Template {
	slots := services.EmptySlots()
	slots[1] = services.Slot{Kind: services.KindShortText, Enabled: true, Label: "City"}
	slots[13] = services.Slot{Kind: services.KindCheckbox, Enabled: true}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return &services.Template{
		ID: "t1", OwnerID: "u1", Title: "Trip", IsPublic: true, Slots: slots,
		Order: []services.SlotID{13, 1}, Version: 3, CreatedAt: now, UpdatedAt: now,
	}
}

func TestTemplateDocRoundTrip(t *testing.T) {
	in := sampleTemplate()
	raw, err := bson.Marshal(toTemplateDoc(in))
	require.NoError(t, err)
	var d templateDoc
	require.NoError(t, bson.Unmarshal(raw, &d))
	out := d.template()

	assert.Equal(t, in.Slots, out.Slots)
	assert.Equal(t, []string{"checkbox#2", "shortText#2"}, out.StoredOrder)
	assert.Nil(t, out.Order)
	assert.Equal(t, 3, out.Version)
	assert.Empty(t, out.Tags)
}

func TestTemplateDocIgnoresBadSlots(t *testing.T) {
	d := templateDoc{ID: "t", Slots: []slotDoc{{Slot: 99, Enabled: true}, {Slot: 2, Enabled: false, Label: "x"}, {Slot: 4, Enabled: true, Label: "Story"}}}
	out := d.template()
	assert.Equal(t, []services.SlotID{4}, out.Slots.Enabled())
	assert.Equal(t, "Story", out.Slots[4].Label)
}

func TestResponseDocRoundTrip(t *testing.T) {
	score := 2
	in := &services.Response{
		ID: "r1", TemplateID: "t1", SubmitterID: "u2", Score: &score, Version: 1,
		Answers: services.Answers{
			1:  {Kind: services.KindShortText, Text: "Oslo"},
			9:  {Kind: services.KindInteger, Number: 12},
			13: {Kind: services.KindCheckbox, Checked: true},
		},
		SubmittedAt: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
	}
	raw, err := bson.Marshal(toResponseDoc(in))
	require.NoError(t, err)
	var d responseDoc
	require.NoError(t, bson.Unmarshal(raw, &d))
	out, err := d.response()
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

// TestStoreAgainstServer runs only when FORMLY_TEST_MONGO_URI points at a disposable server.
func TestStoreAgainstServer(t *testing.T) {
	uri := os.Getenv("FORMLY_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("FORMLY_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	dbName := "formly_test_" + uuid.NewString()[:8]
	store, err := Connect(ctx, uri, dbName, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.db.Drop(context.Background())
		_ = store.Close(context.Background())
	})
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))

	tpl := sampleTemplate()
	require.NoError(t, store.InsertTemplate(ctx, tpl))

	next := tpl.Clone()
	next.Title = "Trip v4"
	next.Version = 4
	require.NoError(t, store.UpdateTemplate(ctx, next, 3))
	assert.ErrorIs(t, store.UpdateTemplate(ctx, next, 3), services.ErrVersionMismatch)

	got, err := store.GetTemplate(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Trip v4", got.Title)

	topic, err := store.FindTopicByName(ctx, "QUIZ")
	require.NoError(t, err)
	require.NotNil(t, topic)

	require.NoError(t, store.SetLike(ctx, "t1", "u2", true))
	require.NoError(t, store.SetLike(ctx, "t1", "u2", true))
	n, err := store.CountLikes(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	first := &services.User{ID: "u1", Email: "a@example.com", PassHash: []byte("h"), CreatedAt: time.Now()}
	require.NoError(t, store.CreateUser(ctx, first))
	assert.True(t, first.IsAdmin)
	second := &services.User{ID: "u2", Email: "b@example.com", PassHash: []byte("h"), CreatedAt: time.Now()}
	require.NoError(t, store.CreateUser(ctx, second))
	assert.False(t, second.IsAdmin)
	dup := &services.User{ID: "u3", Email: "a@example.com", PassHash: []byte("h"), CreatedAt: time.Now()}
	assert.ErrorIs(t, store.CreateUser(ctx, dup), services.ErrEmailTaken)
	require.NoError(t, store.Migrate(ctx))

	require.NoError(t, store.DeleteTemplate(ctx, "t1"))
	gone, err := store.GetTemplate(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
