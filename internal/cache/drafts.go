package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soaringjerry/Formly/internal/services"
)

// DraftTTL is how long an autosaved editor draft survives without being touched.
const DraftTTL = 24 * time.Hour

type RedisDrafts struct {
	client *redis.Client
}

var _ services.DraftStore = (*RedisDrafts)(nil)

func NewRedisDrafts(client *redis.Client) *RedisDrafts {
	return &RedisDrafts{client: client}
}

func (r *RedisDrafts) Get(ctx context.Context, userID, templateID string) (*services.Draft, error) {
	v, err := r.client.Get(ctx, draftKey(userID, templateID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var d services.Draft
	if err := json.Unmarshal(v, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *RedisDrafts) Put(ctx context.Context, userID, templateID string, d *services.Draft) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, draftKey(userID, templateID), b, DraftTTL).Err()
}

func (r *RedisDrafts) Delete(ctx context.Context, userID, templateID string) error {
	return r.client.Del(ctx, draftKey(userID, templateID)).Err()
}

func draftKey(userID, templateID string) string {
	return fmt.Sprintf("formly:draft:%s:%s", userID, templateID)
}

// MemoryDrafts is the in-process draft store used when Redis is not configured.
// Expired entries are dropped lazily on access and by Sweep.
type MemoryDrafts struct {
	mu    sync.Mutex
	items map[string]memoryDraft
	ttl   time.Duration
	now   func() time.Time
}

type memoryDraft struct {
	draft   services.Draft
	expires time.Time
}

var _ services.DraftStore = (*MemoryDrafts)(nil)

func NewMemoryDrafts() *MemoryDrafts {
	return &MemoryDrafts{items: map[string]memoryDraft{}, ttl: DraftTTL, now: time.Now}
}

func (m *MemoryDrafts) Get(_ context.Context, userID, templateID string) (*services.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := draftKey(userID, templateID)
	it, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(it.expires) {
		delete(m.items, key)
		return nil, nil
	}
	d := it.draft
	d.Payload = append(json.RawMessage(nil), it.draft.Payload...)
	return &d, nil
}

func (m *MemoryDrafts) Put(_ context.Context, userID, templateID string, d *services.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	cp.Payload = append(json.RawMessage(nil), d.Payload...)
	m.items[draftKey(userID, templateID)] = memoryDraft{draft: cp, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryDrafts) Delete(_ context.Context, userID, templateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, draftKey(userID, templateID))
	return nil
}

// Sweep removes expired drafts and reports how many were dropped.
func (m *MemoryDrafts) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, it := range m.items {
		if !now.Before(it.expires) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *MemoryDrafts) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}
