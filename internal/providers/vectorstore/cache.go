package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sandevgo/ragline/internal/core"
	"github.com/sandevgo/ragline/pkg/log"
)

const sweepInterval = time.Minute

// openFunc loads a store from disk. Swapped out in tests.
type openFunc func(ctx context.Context, embedder core.Embedder, dir string) (core.VectorSearcher, error)

// Cache keeps loaded vector stores in memory, keyed by cleaned store
// directory, and evicts entries idle past the TTL. Concurrent first
// queries for the same directory share one load.
type Cache struct {
	embedder core.Embedder
	ttl      time.Duration

	mu      sync.Mutex
	entries map[string]*cacheEntry

	open openFunc
	now  func() time.Time

	done chan struct{}
}

type cacheEntry struct {
	ready chan struct{}

	// Set exactly once, before ready is closed.
	store core.VectorSearcher
	err   error

	// Guarded by Cache.mu.
	lastUsed time.Time
	inUse    int
}

func NewCache(embedder core.Embedder, ttl time.Duration) *Cache {
	return &Cache{
		embedder: embedder,
		ttl:      ttl,
		entries:  make(map[string]*cacheEntry),
		open: func(ctx context.Context, embedder core.Embedder, dir string) (core.VectorSearcher, error) {
			return Open(ctx, embedder, dir)
		},
		now:  time.Now,
		done: make(chan struct{}),
	}
}

// Query searches the store under storeDir, loading it on first use. The
// returned retrieval carries both the ranked results and their joined
// context block.
func (c *Cache) Query(ctx context.Context, storeDir, text string, topK int) (core.Retrieval, error) {
	if storeDir == "" {
		return core.Retrieval{}, fmt.Errorf("%w: empty store directory", core.ErrValidation)
	}
	if topK < 1 {
		return core.Retrieval{}, fmt.Errorf("%w: topK must be at least 1, got %d", core.ErrValidation, topK)
	}

	key := filepath.Clean(storeDir)

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{ready: make(chan struct{}), lastUsed: c.now()}
		c.entries[key] = e
		c.mu.Unlock()

		store, err := c.open(ctx, c.embedder, key)
		c.mu.Lock()
		if err != nil {
			// Do not cache failures; the next caller retries the load.
			delete(c.entries, key)
			e.err = fmt.Errorf("%w: %v", core.ErrCacheLoad, err)
		} else {
			e.store = store
		}
		close(e.ready)
		if err != nil {
			c.mu.Unlock()
			return core.Retrieval{}, e.err
		}
	}
	e.inUse++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		e.inUse--
		e.lastUsed = c.now()
		c.mu.Unlock()
	}()

	select {
	case <-e.ready:
	case <-ctx.Done():
		return core.Retrieval{}, ctx.Err()
	}
	if e.err != nil {
		return core.Retrieval{}, e.err
	}

	results, err := e.store.Search(ctx, text, topK)
	if err != nil {
		return core.Retrieval{}, fmt.Errorf("%w: %v", core.ErrRetrieval, err)
	}
	return core.Retrieval{Results: results, Context: BuildContext(results)}, nil
}

// Start runs the eviction sweep until Shutdown.
func (c *Cache) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Dur("ttl", c.ttl).Msg("vector store cache sweep started")

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep(ctx)
		case <-c.done:
			return nil
		}
	}
}

func (c *Cache) Shutdown(ctx context.Context) error {
	close(c.done)

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		c.closeEntry(ctx, key, e)
	}
	return nil
}

func (c *Cache) sweep(ctx context.Context) {
	cutoff := c.now().Add(-c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		select {
		case <-e.ready:
		default:
			continue // still loading
		}
		if e.inUse > 0 || e.lastUsed.After(cutoff) {
			continue
		}
		c.closeEntry(ctx, key, e)
		log.FromCtx(ctx).Debug().Str("store", key).Msg("evicted idle vector store")
	}
}

// closeEntry must be called with c.mu held.
func (c *Cache) closeEntry(ctx context.Context, key string, e *cacheEntry) {
	delete(c.entries, key)
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("store", key).Msg("failed to close vector store")
		}
	}
}
