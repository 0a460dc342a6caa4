// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package identity authenticates API callers and stores their free-tier usage.

Two providers exist. [Clerk] verifies Clerk session tokens and keeps the
usage counter in the user's private metadata. [Local] verifies PASETO
tokens minted by cmd/devtoken and keeps counters in the database.
*/
package identity

import (
	"context"
	"errors"
	"strings"
)

// Plan is a subscription tier.
type Plan string

// Known plans.
const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

var (
	// ErrUnauthenticated means the request carried no usable credentials.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrInvalidToken means the credentials were present but failed verification.
	ErrInvalidToken = errors.New("invalid session token")
)

// Principal is a verified caller.
type Principal struct {
	UserID string
	Plan   Plan
}

// IsPremium reports whether p is on the premium plan.
func (p Principal) IsPremium() bool {
	return p.Plan == PlanPremium
}

// Provider verifies bearer tokens and stores per-user free usage.
type Provider interface {
	Authenticate(ctx context.Context, bearer string) (Principal, error)
	FreeUsage(ctx context.Context, userID string) (int, error)
	SetFreeUsage(ctx context.Context, userID string, n int) error
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}

// ParsePlan maps a plan claim onto a Plan. Clerk prefixes user plans with
// "u:" and organization plans with "o:"; only the user plan counts.
func ParsePlan(claim string) Plan {
	claim = strings.TrimSpace(claim)

	if rest, ok := strings.CutPrefix(claim, "u:"); ok {
		claim = rest
	} else if strings.HasPrefix(claim, "o:") {
		return PlanFree
	}

	if strings.EqualFold(claim, string(PlanPremium)) {
		return PlanPremium
	}

	return PlanFree
}

type principalKeyType struct{}

var principalKey = principalKeyType{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext returns the Principal attached by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)

	return p, ok
}
