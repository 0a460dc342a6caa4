// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package feedcache

import (
	"bytes"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestNewLRU(t *testing.T) {
	t.Parallel()

	if _, err := NewLRU(0, time.Minute); err == nil {
		t.Fatal("expected error when creating cache of size 0, got nil")
	}

	cache, err := NewLRU(3, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cache.Len() != 0 {
		t.Errorf("expected cache length to be 0, got %d", cache.Len())
	}
}

// TestLRU_AddAndGet verifies retrieval and eviction of the least recently used key.
func TestLRU_AddAndGet(t *testing.T) {
	t.Parallel()

	cache, _ := NewLRU(2, 0)

	if cache.Add("foo", []byte("bar")) {
		t.Error("eviction should not occur when the cache is not full")
	}

	value, ok := cache.Get("foo")
	if !ok || string(value) != "bar" {
		t.Errorf("expected 'bar', got %q (found=%v)", value, ok)
	}

	cache.Add("hello", []byte("world"))

	if !cache.Add("key3", []byte("value3")) {
		t.Error("expected eviction when adding third key to size 2 cache")
	}

	if _, ok := cache.Get("foo"); ok {
		t.Error("expected 'foo' to be evicted, but it still exists")
	}
}

func TestLRU_AddExistingKey(t *testing.T) {
	t.Parallel()

	cache, _ := NewLRU(2, 0)

	cache.Add("k1", []byte("v1"))
	cache.Add("k2", []byte("v2"))

	if cache.Add("k1", []byte("v1-updated")) {
		t.Error("re-adding an existing key should not evict anything")
	}

	val, _ := cache.Get("k1")
	if string(val) != "v1-updated" {
		t.Errorf("expected 'v1-updated', got %q", val)
	}

	if cache.Len() != 2 {
		t.Errorf("expected cache length 2, got %d", cache.Len())
	}
}

func TestLRU_Expiry(t *testing.T) {
	t.Parallel()

	cache, _ := NewLRU(2, 30*time.Second)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Add("published", []byte("[]"))

	now = now.Add(29 * time.Second)

	if _, ok := cache.Get("published"); !ok {
		t.Fatal("expected entry to be alive before its TTL")
	}

	now = now.Add(time.Second)

	if _, ok := cache.Get("published"); ok {
		t.Fatal("expected entry to expire once its TTL has passed")
	}

	if cache.Len() != 0 {
		t.Errorf("expected expired entry to be dropped, got length %d", cache.Len())
	}

	// re-adding resets the clock
	cache.Add("published", []byte("[1]"))
	now = now.Add(20 * time.Second)

	if val, ok := cache.Get("published"); !ok || string(val) != "[1]" {
		t.Errorf("expected fresh entry, got %q (found=%v)", val, ok)
	}
}

func TestLRU_RemoveAndPurge(t *testing.T) {
	t.Parallel()

	cache, _ := NewLRU(3, 0)
	cache.Add("a", []byte("1"))
	cache.Add("b", []byte("2"))

	if !cache.Remove("a") {
		t.Error("expected to remove existing key 'a'")
	}

	if cache.Remove("not-present") {
		t.Error("expected false when removing a non-existent key")
	}

	cache.Purge()

	if cache.Len() != 0 {
		t.Errorf("expected empty cache after Purge, got %d", cache.Len())
	}

	if _, ok := cache.Get("b"); ok {
		t.Error("expected 'b' to be gone after Purge")
	}
}

func TestLRU_Keys(t *testing.T) {
	t.Parallel()

	cache, _ := NewLRU(3, 0)
	cache.Add("first", []byte("1"))
	cache.Add("second", []byte("2"))
	cache.Add("third", []byte("3"))

	cache.Get("first")

	keys := cache.Keys()
	expected := []string{"second", "third", "first"}

	if len(keys) != len(expected) {
		t.Fatalf("expected %d keys, got %d", len(expected), len(keys))
	}

	for i, k := range keys {
		if k != expected[i] {
			t.Errorf("Keys() mismatch: expected %v at idx %d, got %v", expected[i], i, k)
		}
	}
}

// TestLRU_Compression checks that compressible payloads are stored compressed
// and come back intact.
func TestLRU_Compression(t *testing.T) {
	t.Parallel()

	cache, _ := NewLRU(2, 0)

	payload := bytes.Repeat([]byte(`{"id":1,"type":"image","publish":true},`), 2048)
	cache.Add("k", payload)

	cache.lock.Lock()
	entry := cache.items["k"].Value.(*lruEntry)
	cache.lock.Unlock()

	if !entry.compressed {
		t.Fatal("expected compressible payload to be stored compressed")
	}

	if len(entry.value) >= len(payload) {
		t.Errorf("expected stored size below %d, got %d", len(payload), len(entry.value))
	}

	got, ok := cache.Get("k")
	if !ok || !bytes.Equal(got, payload) {
		t.Fatal("decompressed payload does not match original")
	}
}

// TestLRU_CallerOwnsSlices ensures neither the input nor the output aliases cached data.
func TestLRU_CallerOwnsSlices(t *testing.T) {
	t.Parallel()

	cache, _ := NewLRU(2, 0)

	in := []byte("x")
	cache.Add("k", in)
	in[0] = 'y'

	out, _ := cache.Get("k")
	if string(out) != "x" {
		t.Fatalf("cache was mutated through input slice: %q", out)
	}

	out[0] = 'z'

	again, _ := cache.Get("k")
	if string(again) != "x" {
		t.Fatalf("cache was mutated through output slice: %q", again)
	}
}

func TestLRU_Concurrency(t *testing.T) {
	t.Parallel()

	cache, _ := NewLRU(16, time.Minute)

	var wg sync.WaitGroup

	for worker := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 200 {
				key := strconv.Itoa((worker + i) % 32)
				cache.Add(key, bytes.Repeat([]byte(key), 64))

				if v, ok := cache.Get(key); ok && !bytes.HasPrefix(v, []byte(key)) {
					t.Errorf("unexpected value for %s", key)
				}
			}
		}()
	}

	wg.Wait()

	if cache.Len() > 16 {
		t.Errorf("cache grew beyond capacity: %d", cache.Len())
	}
}
