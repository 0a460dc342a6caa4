// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package feedcache

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

var ErrInvalidSize = errors.New("must provide a positive size")

// LRU is a fixed-capacity, least-recently-used cache of byte slices that is
// safe for concurrent use. Entries expire after the TTL given to [NewLRU].
// Values are stored zstd-compressed when that makes them smaller.
type LRU struct {
	size      int
	ttl       time.Duration
	evictList *list.List
	items     map[string]*list.Element
	lock      sync.Mutex
	zstdEnc   *zstd.Encoder
	zstdDec   *zstd.Decoder

	now func() time.Time
}

type lruEntry struct {
	key        string
	value      []byte
	compressed bool
	expiresAt  time.Time
}

// NewLRU creates a cache holding at most size entries, each living for ttl.
// A zero ttl keeps entries until they are evicted.
func NewLRU(size int, ttl time.Duration) (*LRU, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	// A nil writer/reader lets us use EncodeAll/DecodeAll without streams.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, err
	}

	return &LRU{
		size:      size,
		ttl:       ttl,
		evictList: list.New(),
		items:     make(map[string]*list.Element),
		zstdEnc:   enc,
		zstdDec:   dec,
		now:       time.Now,
	}, nil
}

// Add adds or updates the value for key and resets its expiry.
//
// Add reports whether an eviction occurred.
func (c *LRU) Add(key string, value []byte) bool {
	// Compress before acquiring the lock; EncodeAll is safe for concurrent use.
	stored, compressed := c.prepareValue(value)

	c.lock.Lock()
	defer c.lock.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)

		entry := ent.Value.(*lruEntry)
		entry.value = stored
		entry.compressed = compressed
		entry.expiresAt = expiresAt

		return false
	}

	c.items[key] = c.evictList.PushFront(&lruEntry{
		key:        key,
		value:      stored,
		compressed: compressed,
		expiresAt:  expiresAt,
	})

	evicted := c.evictList.Len() > c.size
	if evicted {
		c.removeElement(c.evictList.Back())
	}

	return evicted
}

// Get returns a copy of the value for key and marks it as most recently used.
//
// Expired entries are dropped and reported as missing.
func (c *LRU) Get(key string) ([]byte, bool) {
	c.lock.Lock()

	ent, ok := c.items[key]
	if !ok {
		c.lock.Unlock()

		return nil, false
	}

	entry := ent.Value.(*lruEntry)

	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.removeElement(ent)
		c.lock.Unlock()

		return nil, false
	}

	c.evictList.MoveToFront(ent)

	stored := entry.value
	compressed := entry.compressed

	c.lock.Unlock()

	return c.decompressValue(stored, compressed)
}

// Remove deletes the entry associated with key from the cache.
//
// Remove reports whether the key was present and removed.
func (c *LRU) Remove(key string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)

		return true
	}

	return false
}

// Purge drops every entry.
func (c *LRU) Purge() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.evictList.Init()
	clear(c.items)
}

// Keys returns all keys in the cache, from the oldest to the newest.
func (c *LRU) Keys() []string {
	c.lock.Lock()
	defer c.lock.Unlock()

	keys := make([]string, 0, len(c.items))

	for ent := c.evictList.Back(); ent != nil; ent = ent.Prev() {
		keys = append(keys, ent.Value.(*lruEntry).key)
	}

	return keys
}

// Len returns the current number of items in the cache, expired ones included.
func (c *LRU) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.evictList.Len()
}

func (c *LRU) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	delete(c.items, e.Value.(*lruEntry).key)
}

// prepareValue compresses value when that reduces its size. Uncompressed
// values are copied so callers cannot mutate the cache.
func (c *LRU) prepareValue(value []byte) ([]byte, bool) {
	if len(value) == 0 {
		return []byte{}, false
	}

	if compressed := c.zstdEnc.EncodeAll(value, nil); len(compressed) < len(value) {
		return compressed, true
	}

	copied := make([]byte, len(value))
	copy(copied, value)

	return copied, false
}

// decompressValue returns a fresh slice the caller owns. A value that fails
// to decode is treated as missing.
func (c *LRU) decompressValue(stored []byte, compressed bool) ([]byte, bool) {
	if !compressed {
		copied := make([]byte, len(stored))
		copy(copied, stored)

		return copied, true
	}

	decoded, err := c.zstdDec.DecodeAll(stored, nil)
	if err != nil {
		return nil, false
	}

	return decoded, true
}
