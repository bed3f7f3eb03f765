package translate

import (
	"context"
	"sync"
	"time"
)

// CacheProvider is the pluggable get/set capability backing the
// attribute classification cache, so it can live in any external store.
type CacheProvider interface {
	Get(ctx context.Context, key string) (any, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

const attributeCacheKeyPrefix = "translate:attributes:"

// classifier resolves the translatable attribute set for a translation
// table: an explicit declaration wins, otherwise the table's columns
// are introspected with the key columns removed. Results are memoized
// process-wide and mirrored into the external cache when one is
// registered. Entries are never invalidated automatically; schema
// changes require Invalidate.
type classifier struct {
	introspector SchemaIntrospector
	cache        CacheProvider
	log          Logger

	mu    sync.RWMutex
	attrs map[string][]string
}

func newClassifier(introspector SchemaIntrospector, cache CacheProvider, log Logger) *classifier {
	if log == nil {
		log = NoOp()
	}
	return &classifier{
		introspector: introspector,
		cache:        cache,
		log:          log,
		attrs:        map[string][]string{},
	}
}

// translatableAttributes returns the ordered translatable attribute set
// for table. The drop set (foreign key, locale column) is removed from
// introspected columns. Introspection failure degrades to an empty set
// so the entity behaves as having no translations.
func (c *classifier) translatableAttributes(ctx context.Context, table string, declared, drop []string) []string {
	if len(declared) > 0 {
		return dropColumns(declared, nil)
	}

	c.mu.RLock()
	cached, ok := c.attrs[table]
	c.mu.RUnlock()
	if ok {
		return cached
	}

	if attrs, ok := c.fromExternalCache(ctx, table); ok {
		c.store(table, attrs)
		return attrs
	}

	attrs := c.introspect(ctx, table, drop)
	c.store(table, attrs)
	c.toExternalCache(ctx, table, attrs)
	return attrs
}

// Invalidate evicts the classification for table from the in-process
// memo and the external cache.
func (c *classifier) Invalidate(ctx context.Context, table string) error {
	c.mu.Lock()
	delete(c.attrs, table)
	c.mu.Unlock()

	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, attributeCacheKeyPrefix+table)
}

func (c *classifier) introspect(ctx context.Context, table string, drop []string) []string {
	if c.introspector == nil {
		return []string{}
	}
	columns, err := c.introspector.ListColumns(ctx, table)
	if err != nil {
		c.log.Warn("translate: attribute introspection failed, treating table as untranslated",
			"table", table, "error", err)
		return []string{}
	}
	return dropColumns(columns, drop)
}

func (c *classifier) store(table string, attrs []string) {
	c.mu.Lock()
	c.attrs[table] = attrs
	c.mu.Unlock()
}

func (c *classifier) fromExternalCache(ctx context.Context, table string) ([]string, bool) {
	if c.cache == nil {
		return nil, false
	}
	value, err := c.cache.Get(ctx, attributeCacheKeyPrefix+table)
	if err != nil || value == nil {
		return nil, false
	}
	switch typed := value.(type) {
	case []string:
		return typed, true
	case []any:
		attrs := make([]string, 0, len(typed))
		for _, entry := range typed {
			name, ok := entry.(string)
			if !ok {
				return nil, false
			}
			attrs = append(attrs, name)
		}
		return attrs, true
	default:
		return nil, false
	}
}

func (c *classifier) toExternalCache(ctx context.Context, table string, attrs []string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, attributeCacheKeyPrefix+table, attrs, 0); err != nil {
		c.log.Warn("translate: attribute cache write failed", "table", table, "error", err)
	}
}

// dropColumns copies columns preserving order, removing duplicates,
// empties, and every name in drop.
func dropColumns(columns, drop []string) []string {
	dropped := make(map[string]struct{}, len(drop))
	for _, name := range drop {
		dropped[name] = struct{}{}
	}
	seen := make(map[string]struct{}, len(columns))
	out := make([]string, 0, len(columns))
	for _, name := range columns {
		if name == "" {
			continue
		}
		if _, ok := dropped[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
