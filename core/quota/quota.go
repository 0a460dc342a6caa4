// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package quota decides whether a caller may use a feature and charges
free-tier generations.
*/
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"codeberg.org/quickai/quickai/core/identity"
)

// Rejections shown to the user as is.
var (
	ErrLimitReached = errors.New("Limit reached. Upgrade to continue.")
	ErrPremiumOnly  = errors.New("This feature is only available for premium subscriptions.")
)

// Usage is a caller with the free usage counter resolved for this request.
type Usage struct {
	identity.Principal

	FreeUsage int
}

// Service applies the free limit on top of an identity provider's counters.
type Service struct {
	provider identity.Provider
	limit    int
	locks    keyedMutex
}

// New returns a Service allowing limit free generations per user.
func New(provider identity.Provider, limit int) *Service {
	return &Service{provider: provider, limit: limit}
}

// Limit is the number of free generations.
func (s *Service) Limit() int {
	return s.limit
}

// Resolve loads the caller's counter. Premium callers have a leftover
// counter from their free days cleared.
func (s *Service) Resolve(ctx context.Context, p identity.Principal) (Usage, error) {
	n, err := s.provider.FreeUsage(ctx, p.UserID)
	if err != nil {
		return Usage{}, fmt.Errorf("resolving usage: %w", err)
	}

	if p.IsPremium() {
		if n != 0 {
			if err := s.provider.SetFreeUsage(ctx, p.UserID, 0); err != nil {
				return Usage{}, fmt.Errorf("clearing usage of premium user: %w", err)
			}

			log.Ctx(ctx).Debug().
				Str("user_id", p.UserID).
				Int("previous", n).
				Msg("Cleared free usage of premium user")
		}

		n = 0
	}

	return Usage{Principal: p, FreeUsage: n}, nil
}

// CheckFreeFeature allows premium callers and free callers under the limit.
func (s *Service) CheckFreeFeature(u Usage) error {
	if !u.IsPremium() && u.FreeUsage >= s.limit {
		return ErrLimitReached
	}

	return nil
}

// CheckPremiumFeature allows premium callers only.
func (s *Service) CheckPremiumFeature(u Usage) error {
	if !u.IsPremium() {
		return ErrPremiumOnly
	}

	return nil
}

// Refund gives back a reserved free generation.
type Refund func(ctx context.Context) error

func noRefund(context.Context) error { return nil }

// Reserve charges one free generation before it runs. The stored counter is
// re-read under the user's lock, so concurrent requests cannot take the
// counter past the limit; the loser gets ErrLimitReached. Premium callers
// are never charged.
//
// The returned Refund must be called when the generation is not delivered.
func (s *Service) Reserve(ctx context.Context, u Usage) (Refund, error) {
	if u.IsPremium() {
		return noRefund, nil
	}

	unlock := s.locks.lock(u.UserID)
	defer unlock()

	n, err := s.provider.FreeUsage(ctx, u.UserID)
	if err != nil {
		return noRefund, fmt.Errorf("reserving usage: %w", err)
	}

	if n >= s.limit {
		log.Ctx(ctx).Info().
			Str("user_id", u.UserID).
			Int("stored", n).
			Int("seen", u.FreeUsage).
			Msg("Free usage limit reached by a concurrent request")

		return noRefund, ErrLimitReached
	}

	if err := s.provider.SetFreeUsage(ctx, u.UserID, n+1); err != nil {
		return noRefund, fmt.Errorf("reserving usage: %w", err)
	}

	return func(ctx context.Context) error {
		return s.refund(ctx, u.UserID)
	}, nil
}

func (s *Service) refund(ctx context.Context, userID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	n, err := s.provider.FreeUsage(ctx, userID)
	if err != nil {
		return fmt.Errorf("refunding usage: %w", err)
	}

	if n == 0 {
		return nil
	}

	if err := s.provider.SetFreeUsage(ctx, userID, n-1); err != nil {
		return fmt.Errorf("refunding usage: %w", err)
	}

	return nil
}

type usageKeyType struct{}

var usageKey = usageKeyType{}

// WithUsage attaches the caller's resolved usage to ctx.
func WithUsage(ctx context.Context, u Usage) context.Context {
	return context.WithValue(ctx, usageKey, u)
}

// FromContext returns the usage attached by WithUsage.
func FromContext(ctx context.Context) (Usage, bool) {
	u, ok := ctx.Value(usageKey).(Usage)

	return u, ok
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex

	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()

	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}

	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}

	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--

		if m.refs == 0 {
			delete(k.locks, key)
		}

		k.mu.Unlock()
	}
}
