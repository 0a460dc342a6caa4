// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package feedcache caches the community feed of published creations.

Entries are JSON documents kept in a compressing [LRU] with a short TTL.
Writers that change the feed call [Feed.Invalidate].
*/
package feedcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// PublishedKey is the cache key of the published creations list.
const PublishedKey = "published"

// sharedLoadTimeout bounds a load shared by concurrent callers. It runs
// detached from any single request.
const sharedLoadTimeout = 30 * time.Second

// Feed fronts slow feed queries. A nil *Feed caches nothing.
type Feed struct {
	lru   *LRU
	group singleflight.Group

	// generation is bumped by Invalidate. A load started under an older
	// generation does not write its result back.
	generation atomic.Uint64
}

// New returns a Feed holding up to size documents for ttl each.
func New(size int, ttl time.Duration) (*Feed, error) {
	lru, err := NewLRU(size, ttl)
	if err != nil {
		return nil, err
	}

	return &Feed{lru: lru}, nil
}

// Load returns the cached value for key, or calls load and caches its result.
// Concurrent misses for the same key share a single load.
func Load[T any](ctx context.Context, f *Feed, key string, load func(context.Context) (T, error)) (T, error) {
	if f == nil {
		return load(ctx)
	}

	if raw, ok := f.lru.Get(key); ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}

		f.lru.Remove(key)
	}

	gen := f.generation.Load()

	results := f.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()

		fresh, err := load(loadCtx)
		if err != nil {
			return fresh, err
		}

		if f.generation.Load() != gen {
			return fresh, nil
		}

		encoded, err := json.Marshal(fresh)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Failed to encode feed for cache")

			return fresh, nil
		}

		f.lru.Add(key, encoded)

		return fresh, nil
	})

	var zero T

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("loading %s feed: %w", key, context.Cause(ctx))
	case res := <-results:
		if res.Err != nil {
			return zero, fmt.Errorf("loading %s feed: %w", key, res.Err)
		}

		v, ok := res.Val.(T)
		if !ok {
			return zero, nil
		}

		return v, nil
	}
}

// Invalidate drops the cached documents for keys, or all of them when no
// key is given.
func (f *Feed) Invalidate(keys ...string) {
	if f == nil {
		return
	}

	f.generation.Add(1)

	for _, key := range keys {
		f.group.Forget(key)
	}

	if len(keys) == 0 {
		f.group.Forget(PublishedKey)
		f.lru.Purge()

		return
	}

	for _, key := range keys {
		f.lru.Remove(key)
	}
}
