// Package cache holds the shared source-config cache. Entries mirror
// the durable source record (including its sealed integration config)
// and are advisory: the metadata store stays authoritative, and a patch
// against a key nobody cached is silently dropped.
package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/ChasLui/nocodb/core"
)

const (
	sourceConfigCachePrefix  = "nocodb"
	sourceConfigCacheVersion = "v1"
	DefaultScope             = "source_config"
)

var errEntryAbsent = errors.New("cache: source config entry absent")

type Option func(*SourceConfigCache)

type SourceConfigCache struct {
	scope string
	cache repositorycache.CacheService
}

func WithScope(scope string) Option {
	return func(c *SourceConfigCache) {
		trimmed := strings.TrimSpace(scope)
		if trimmed != "" {
			c.scope = trimmed
		}
	}
}

func NewSourceConfigCache(cacheService repositorycache.CacheService, opts ...Option) (*SourceConfigCache, error) {
	if cacheService == nil {
		return nil, fmt.Errorf("cache: cache service is required")
	}
	sourceCache := &SourceConfigCache{
		scope: DefaultScope,
		cache: cacheService,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(sourceCache)
	}
	return sourceCache, nil
}

// Key returns the deterministic cache key contract for source config
// entries: nocodb::<scope>::v1::<source id> with each segment URL-path
// escaped after trimming.
func Key(scope string, sourceID string) (string, error) {
	trimmedScope := strings.TrimSpace(scope)
	if trimmedScope == "" {
		trimmedScope = DefaultScope
	}
	trimmedID := strings.TrimSpace(sourceID)
	if trimmedID == "" {
		return "", fmt.Errorf("cache: source id is required")
	}
	segments := []string{
		sourceConfigCachePrefix,
		url.PathEscape(trimmedScope),
		sourceConfigCacheVersion,
		url.PathEscape(trimmedID),
	}
	return strings.Join(segments, "::"), nil
}

// Patch merges fields into the cached entry for a source. When nothing
// is cached under the key the patch is dropped: the durable store is
// the source of truth and the next read repopulates the entry.
func (c *SourceConfigCache) Patch(ctx context.Context, sourceID string, fields map[string]any) error {
	if c == nil || c.cache == nil {
		return fmt.Errorf("cache: source config cache is not configured")
	}
	if len(fields) == 0 {
		return nil
	}
	cacheKey, err := Key(c.scope, sourceID)
	if err != nil {
		return err
	}

	current, err := repositorycache.GetOrFetch(ctx, c.cache, cacheKey, func(ctx context.Context) (map[string]any, error) {
		return nil, errEntryAbsent
	})
	if err != nil {
		if errors.Is(err, errEntryAbsent) {
			return nil
		}
		return err
	}

	merged := cloneEntry(current)
	for key, value := range fields {
		merged[key] = value
	}

	if err := c.cache.Delete(ctx, cacheKey); err != nil {
		return err
	}
	_, err = repositorycache.GetOrFetch(ctx, c.cache, cacheKey, func(ctx context.Context) (map[string]any, error) {
		return merged, nil
	})
	return err
}

// Drop removes the cached entry for a source.
func (c *SourceConfigCache) Drop(ctx context.Context, sourceID string) error {
	if c == nil || c.cache == nil {
		return fmt.Errorf("cache: source config cache is not configured")
	}
	cacheKey, err := Key(c.scope, sourceID)
	if err != nil {
		return err
	}
	return c.cache.Delete(ctx, cacheKey)
}

// Resolve returns the cached entry for a source, loading and caching it
// through the supplied loader on a miss.
func (c *SourceConfigCache) Resolve(ctx context.Context, sourceID string, load func(ctx context.Context) (map[string]any, error)) (map[string]any, error) {
	if c == nil || c.cache == nil {
		return nil, fmt.Errorf("cache: source config cache is not configured")
	}
	if load == nil {
		return nil, fmt.Errorf("cache: loader is required")
	}
	cacheKey, err := Key(c.scope, sourceID)
	if err != nil {
		return nil, err
	}
	entry, err := repositorycache.GetOrFetch(ctx, c.cache, cacheKey, func(ctx context.Context) (map[string]any, error) {
		loaded, loadErr := load(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		return cloneEntry(loaded), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneEntry(entry), nil
}

func cloneEntry(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ core.SourceConfigCache = (*SourceConfigCache)(nil)
