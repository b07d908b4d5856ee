// Package cache holds the Redis-backed template read cache and the editor draft stores.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soaringjerry/Formly/internal/services"
)

const templateTTL = 10 * time.Minute

type TemplateCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ services.TemplateCache = (*TemplateCache)(nil)

func NewTemplateCache(client *redis.Client) *TemplateCache {
	return &TemplateCache{client: client, ttl: templateTTL}
}

// Get returns nil, nil on a miss.
func (c *TemplateCache) Get(ctx context.Context, id string) (*services.Template, error) {
	data, err := c.client.Get(ctx, templateKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t services.Template
	if err := json.Unmarshal(data, &t); err != nil {
		// A corrupt entry is dropped and treated as a miss.
		_ = c.client.Del(ctx, templateKey(id)).Err()
		return nil, nil
	}
	return &t, nil
}

func (c *TemplateCache) Set(ctx context.Context, t *services.Template) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, templateKey(t.ID), data, c.ttl).Err()
}

func (c *TemplateCache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, templateKey(id)).Err()
}

func templateKey(id string) string {
	return "formly:template:" + id
}
