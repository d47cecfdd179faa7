package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/meridianbi/gatekeeper/internal/model"
)

// SchemaCache holds per-table schema metadata with a time-based expiry. It
// is safe for concurrent use across batches.
type SchemaCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	columns map[string]columnsEntry
	keys    map[string]keysEntry
}

type columnsEntry struct {
	columns   []model.Column
	expiresAt time.Time
}

type keysEntry struct {
	values    map[string]struct{}
	expiresAt time.Time
}

// NewSchemaCache creates a cache whose entries expire after ttl.
func NewSchemaCache(ttl time.Duration) *SchemaCache {
	return &SchemaCache{
		ttl:     ttl,
		now:     time.Now,
		columns: make(map[string]columnsEntry),
		keys:    make(map[string]keysEntry),
	}
}

func (c *SchemaCache) getColumns(table string) ([]model.Column, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.columns[table]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.columns, true
}

func (c *SchemaCache) setColumns(table string, columns []model.Column) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.columns[table] = columnsEntry{columns: columns, expiresAt: c.now().Add(c.ttl)}
}

func (c *SchemaCache) getKeys(key string) (map[string]struct{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.keys[key]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.values, true
}

func (c *SchemaCache) setKeys(key string, values map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = keysEntry{values: values, expiresAt: c.now().Add(c.ttl)}
}

// CachedGateway wraps a Gateway with schema-metadata caching. Entity reads
// pass through uncached so resolution always sees the current master
// snapshot.
type CachedGateway struct {
	inner Gateway
	cache *SchemaCache
}

// NewCached wraps inner with the given cache.
func NewCached(inner Gateway, cache *SchemaCache) *CachedGateway {
	return &CachedGateway{inner: inner, cache: cache}
}

func (g *CachedGateway) FetchEntities(ctx context.Context, table, tenant string) ([]model.MasterEntity, error) {
	return g.inner.FetchEntities(ctx, table, tenant)
}

func (g *CachedGateway) FetchColumns(ctx context.Context, table string) ([]model.Column, error) {
	if columns, ok := g.cache.getColumns(table); ok {
		return columns, nil
	}
	columns, err := g.inner.FetchColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	g.cache.setColumns(table, columns)
	return columns, nil
}

func (g *CachedGateway) FetchForeignKeyValues(ctx context.Context, table, field, tenant string) (map[string]struct{}, error) {
	key := table + "." + field + "." + tenant
	if values, ok := g.cache.getKeys(key); ok {
		return values, nil
	}
	values, err := g.inner.FetchForeignKeyValues(ctx, table, field, tenant)
	if err != nil {
		return nil, err
	}
	g.cache.setKeys(key, values)
	return values, nil
}

func (g *CachedGateway) Close() error {
	return g.inner.Close()
}
