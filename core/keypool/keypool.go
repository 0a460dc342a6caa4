// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package keypool rotates upstream API keys and benches the ones that fail.
*/
package keypool

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Possible Status values.
const (
	Good     Status = iota // Key is in a good state and can be used
	TimedOut               // Key is currently timed out and should not be used
)

// Load balancing methods.
const (
	RoundRobin        = "round-robin"
	Random            = "random"
	LeastRecentlyUsed = "least-recently-used"
)

// ErrExhausted is returned by Acquire when every key is timed out.
var ErrExhausted = errors.New("all API keys are timed out")

// Status represents the current state of a key.
type Status int

// Key is one API key with its health bookkeeping.
type Key struct {
	Value string

	status       Status
	timeoutUntil time.Time
	failureCount int
	lastUsed     time.Time
}

// Pool hands out keys according to a load balancing method.
type Pool struct {
	keys                []*Key
	maxRetries          int
	baseTimeout         time.Duration
	maxBackoffTime      time.Duration
	loadBalancingMethod string
	currentIndex        int
	mu                  sync.Mutex

	now func() time.Time
}

// New creates a Pool over values.
func New(
	values []string,
	maxRetries int,
	baseTimeout, maxBackoffTime time.Duration,
	loadBalancingMethod string,
) *Pool {
	keys := make([]*Key, len(values))
	for i, value := range values {
		keys[i] = &Key{Value: value, status: Good}
	}

	return &Pool{
		keys:                keys,
		maxRetries:          maxRetries,
		baseTimeout:         baseTimeout,
		maxBackoffTime:      maxBackoffTime,
		loadBalancingMethod: loadBalancingMethod,
		now:                 time.Now,
	}
}

// Len returns the number of keys in the pool.
func (p *Pool) Len() int {
	return len(p.keys)
}

// MaxRetries is how many different keys a caller should try for one request.
func (p *Pool) MaxRetries() int {
	return max(p.maxRetries, 1)
}

// GetKey selects and returns a key, or nil when every key is still timed out.
func (p *Pool) GetKey() *Key {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	healthy := p.getHealthyKeys()

	if len(healthy) == 0 {
		return p.getFallbackKey(now)
	}

	var selected *Key

	switch p.loadBalancingMethod {
	case Random:
		selected = healthy[rand.IntN(len(healthy))] // #nosec:G404 - key selection doesn't need to be cryptographically secure.
	case LeastRecentlyUsed:
		selected = leastRecentlyUsed(healthy)
	default:
		selected = p.roundRobin(healthy)
	}

	selected.lastUsed = now

	return selected
}

// Acquire is GetKey for callers that want an error. When the pool is
// exhausted it is reset so the next request can try again.
func (p *Pool) Acquire() (*Key, error) {
	if key := p.GetKey(); key != nil {
		return key, nil
	}

	p.ResetAll()

	return nil, fmt.Errorf("%w (%d keys); the pool has been reset", ErrExhausted, len(p.keys))
}

// MarkKeyStatus updates the status of a key and handles timeout logic.
func (p *Pool) MarkKeyStatus(key *Key, status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key.status = status
	if status == TimedOut {
		key.failureCount++

		const exponentialBase = 2

		timeoutDuration := time.Duration(math.Min(
			float64(p.baseTimeout)*math.Pow(exponentialBase, float64(key.failureCount-1)),
			float64(p.maxBackoffTime),
		))

		key.timeoutUntil = p.now().Add(timeoutDuration)
	} else {
		key.failureCount = 0
	}
}

// MarkResponse benches key when statusCode says the key itself is the problem.
func (p *Pool) MarkResponse(key *Key, statusCode int) {
	p.MarkKeyStatus(key, StatusForCode(statusCode))
}

// ResetAll resets all keys to their initial good state.
func (p *Pool) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, key := range p.keys {
		key.status = Good
		key.failureCount = 0
	}
}

// StatusForCode maps an upstream status to the key status it implies:
// throttling, auth failures and server errors bench the key.
func StatusForCode(statusCode int) Status {
	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode >= http.StatusInternalServerError:
		return TimedOut
	default:
		return Good
	}
}

func (p *Pool) getHealthyKeys() []*Key {
	healthy := make([]*Key, 0, len(p.keys))

	for _, key := range p.keys {
		if key.status == Good {
			healthy = append(healthy, key)
		}
	}

	return healthy
}

// getFallbackKey revives the timed-out key whose timeout ends first, if it
// has already ended.
func (p *Pool) getFallbackKey(now time.Time) *Key {
	var best *Key

	for _, key := range p.keys {
		if key.status == TimedOut && (best == nil || key.timeoutUntil.Before(best.timeoutUntil)) {
			best = key
		}
	}

	if best == nil || now.Before(best.timeoutUntil) {
		return nil
	}

	best.status = Good
	best.lastUsed = now

	return best
}

func (p *Pool) roundRobin(healthy []*Key) *Key {
	if p.currentIndex >= len(healthy) {
		p.currentIndex = 0
	}

	selected := healthy[p.currentIndex]
	p.currentIndex++

	return selected
}

func leastRecentlyUsed(healthy []*Key) *Key {
	sort.SliceStable(healthy, func(i, j int) bool {
		return healthy[i].lastUsed.Before(healthy[j].lastUsed)
	})

	return healthy[0]
}
