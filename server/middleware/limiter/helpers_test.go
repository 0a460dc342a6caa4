// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package limiter

import (
	"sync"
	"testing"
	"time"

	"codeberg.org/quickai/quickai/config"
)

// testConfigMutex serializes tests that mutate global package state.
var testConfigMutex sync.Mutex

// mockTimeProvider maintains a controllable current time for testing.
type mockTimeProvider struct {
	mu          sync.Mutex
	currentTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.currentTime
}

// Sleep advances the mock current time by d.
func (m *mockTimeProvider) Sleep(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentTime = m.currentTime.Add(d)
}

// setupLimiterTest takes the package test lock, installs a test config and
// a mock clock, and clears all buckets. Everything is restored when the
// test completes.
//
// Do not call it again from subtests; re-entering the lock would deadlock.
func setupLimiterTest(t *testing.T) *mockTimeProvider {
	t.Helper()

	testConfigMutex.Lock()

	origConfig := config.Global
	origTimeNow := timeNow

	config.Global.Limiter.Enabled = true
	config.Global.Limiter.IPv4Prefix = 24
	config.Global.Limiter.IPv6Prefix = 48
	config.Global.Limiter.PassIPs = []string{"203.0.113.7"}
	config.Global.Limiter.BlockIPs = []string{"198.51.100.0/24"}
	config.Global.Limiter.FilterLocal = false
	config.Global.Limiter.Rate = 0.01
	config.Global.Limiter.Burst = 3

	mockTime := &mockTimeProvider{currentTime: time.Now()}
	timeNow = mockTime.Now

	buckets.Clear()

	t.Cleanup(func() {
		timeNow = origTimeNow
		buckets.Clear()
		config.Global = origConfig

		testConfigMutex.Unlock()
	})

	return mockTime
}
