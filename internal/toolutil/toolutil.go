// Package toolutil provides shared helper functions for go_meetmap MCP tools.
package toolutil

import (
	"context"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
	"github.com/anatolykoptev/go_meetmap/internal/engine/sources"
)

// NormVideoIDs turns a mixed list of IDs and URLs into distinct video IDs,
// preserving order. Entries that are neither are dropped.
func NormVideoIDs(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		id := sources.ExtractVideoID(s)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ClampLimit returns def for non-positive limits and caps the rest at max.
func ClampLimit(limit, def, max int) int {
	switch {
	case limit <= 0:
		return def
	case limit > max:
		return max
	}
	return limit
}

// Cached returns the cached value for key, or calls fn and caches its result.
// Errors are not cached.
func Cached[T any](ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	return CachedIf(ctx, key, fn, nil)
}

// CachedIf is Cached with a keep predicate: results it rejects are returned
// but not stored. A nil keep stores every successful result.
func CachedIf[T any](ctx context.Context, key string, fn func(context.Context) (T, error), keep func(T) bool) (T, error) {
	if out, ok := engine.CacheLoadJSON[T](ctx, key); ok {
		return out, nil
	}
	out, err := fn(ctx)
	if err != nil {
		return out, err
	}
	if keep == nil || keep(out) {
		engine.CacheStoreJSON(ctx, key, out)
	}
	return out, nil
}
