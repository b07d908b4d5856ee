package cache

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/Formly/internal/services"
)

func TestMemoryDraftsExpire(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryDrafts()
	m.now = func() time.Time { return clock }

	require.NoError(t, m.Put(ctx, "u1", "new", &services.Draft{Payload: json.RawMessage(`{"title":"x"}`)}))
	d, err := m.Get(ctx, "u1", "new")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.JSONEq(t, `{"title":"x"}`, string(d.Payload))

	other, err := m.Get(ctx, "u2", "new")
	require.NoError(t, err)
	assert.Nil(t, other, "drafts are per user")

	clock = clock.Add(DraftTTL - time.Second)
	d, err = m.Get(ctx, "u1", "new")
	require.NoError(t, err)
	assert.NotNil(t, d)

	clock = clock.Add(time.Second)
	d, err = m.Get(ctx, "u1", "new")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestMemoryDraftsSweep(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(0, 0)
	m := NewMemoryDrafts()
	m.now = func() time.Time { return clock }
	require.NoError(t, m.Put(ctx, "u1", "a", &services.Draft{Payload: json.RawMessage(`1`)}))
	clock = clock.Add(time.Hour)
	require.NoError(t, m.Put(ctx, "u1", "b", &services.Draft{Payload: json.RawMessage(`2`)}))

	clock = clock.Add(DraftTTL - 30*time.Minute)
	assert.Equal(t, 1, m.Sweep())
	require.NoError(t, m.Delete(ctx, "u1", "b"))
	assert.Empty(t, m.items)
}

func redisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("FORMLY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FORMLY_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestRedisDraftsAndTemplateCache(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()

	drafts := NewRedisDrafts(client)
	require.NoError(t, drafts.Put(ctx, "u1", "t1", &services.Draft{Payload: json.RawMessage(`{"a":1}`), BaseVersion: 3}))
	d, err := drafts.Get(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, d.BaseVersion)
	ttl, err := client.TTL(ctx, draftKey("u1", "t1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, DraftTTL-time.Minute)
	require.NoError(t, drafts.Delete(ctx, "u1", "t1"))
	d, err = drafts.Get(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Nil(t, d)

	cache := NewTemplateCache(client)
	slots := services.EmptySlots()
	slots[0].Enabled = true
	tpl := &services.Template{ID: "cache-test", Title: "T", Slots: slots, Order: []services.SlotID{0}, Version: 2}
	require.NoError(t, cache.Set(ctx, tpl))
	got, err := cache.Get(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, tpl.Order, got.Order)
	assert.Equal(t, 2, got.Version)
	require.NoError(t, cache.Invalidate(ctx, tpl.ID))
	got, err = cache.Get(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
