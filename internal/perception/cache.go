package perception

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"symphony/internal/logging"
	"symphony/internal/types"
)

// CachingClient wraps an LLMClient with a bounded LRU response cache.
// Identical prompts against the same provider and model are served from
// memory, which matters when a refinement pass replays phase prompts.
type CachingClient struct {
	inner  types.LLMClient
	cache  *lru.Cache[string, string]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingClient wraps inner with an LRU cache of the given size.
func NewCachingClient(inner types.LLMClient, size int) (*CachingClient, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &CachingClient{inner: inner, cache: cache}, nil
}

// Name returns the wrapped client's provider identifier.
func (c *CachingClient) Name() string { return c.inner.Name() }

// Model returns the wrapped client's model.
func (c *CachingClient) Model() string { return c.inner.Model() }

// Complete serves from cache when possible, otherwise delegates.
func (c *CachingClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem serves from cache when possible, otherwise delegates.
func (c *CachingClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	key := c.cacheKey(systemPrompt, userPrompt)

	if cached, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		logging.APIDebug("[Cache] hit (hits=%d misses=%d)", c.hits.Load(), c.misses.Load())
		return cached, nil
	}
	c.misses.Add(1)

	response, err := c.inner.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}

	c.cache.Add(key, response)
	return response, nil
}

// Hits returns the number of cache hits.
func (c *CachingClient) Hits() int64 { return c.hits.Load() }

// Misses returns the number of cache misses.
func (c *CachingClient) Misses() int64 { return c.misses.Load() }

// Len returns the number of cached responses.
func (c *CachingClient) Len() int { return c.cache.Len() }

func (c *CachingClient) cacheKey(systemPrompt, userPrompt string) string {
	h := sha256.New()
	h.Write([]byte(c.inner.Name()))
	h.Write([]byte{0})
	h.Write([]byte(c.inner.Model()))
	h.Write([]byte{0})
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(userPrompt))
	return hex.EncodeToString(h.Sum(nil))
}
