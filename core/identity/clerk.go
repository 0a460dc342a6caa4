// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"codeberg.org/quickai/quickai/core/audit"
	"codeberg.org/quickai/quickai/core/requests"
	"codeberg.org/quickai/quickai/server/utils"
)

const clerkLeeway = 5 * time.Second

var errUnauthorizedParty = errors.New("token was issued for another origin")

// ClerkOptions configure a Clerk provider.
type ClerkOptions struct {
	SecretKey string
	// APIURL is the Backend API root, e.g. https://api.clerk.com/v1.
	APIURL  string
	JWKSURL string
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	// AuthorizedParties, when set, lists the origins allowed in the azp claim.
	AuthorizedParties []string
}

// Clerk verifies Clerk session tokens.
type Clerk struct {
	opts ClerkOptions
	keys *jwks
	now  func() time.Time
}

type clerkClaims struct {
	jwt.RegisteredClaims

	AuthorizedParty string `json:"azp,omitempty"`
	Plan            string `json:"pla,omitempty"`
}

// NewClerk returns a Clerk provider.
func NewClerk(opts ClerkOptions) *Clerk {
	opts.APIURL = strings.TrimSuffix(opts.APIURL, "/")

	c := &Clerk{opts: opts, now: time.Now}
	c.keys = &jwks{
		url:    opts.JWKSURL,
		bearer: opts.SecretKey,
		now:    func() time.Time { return c.now() },
	}

	return c
}

// Authenticate implements Provider.
func (c *Clerk) Authenticate(ctx context.Context, bearer string) (Principal, error) {
	if bearer == "" {
		return Principal{}, ErrUnauthenticated
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(clerkLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}

	if c.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.opts.Issuer))
	}

	claims := &clerkClaims{}

	_, err := jwt.ParseWithClaims(bearer, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)

		return c.keys.key(ctx, kid)
	}, parserOpts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	if len(c.opts.AuthorizedParties) > 0 && claims.AuthorizedParty != "" &&
		!slices.Contains(c.opts.AuthorizedParties, strings.ToLower(claims.AuthorizedParty)) {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, errUnauthorizedParty)
	}

	return Principal{UserID: claims.Subject, Plan: ParsePlan(claims.Plan)}, nil
}

// FreeUsage implements Provider by reading private_metadata.free_usage.
func (c *Clerk) FreeUsage(ctx context.Context, userID string) (int, error) {
	result, err := requests.JSON(ctx, requests.RequestOptions{
		Method:      http.MethodGet,
		URL:         utils.JoinURL(c.opts.APIURL, "users", userID),
		Destination: audit.ToIdentity,
		Header:      c.authHeader(),
	})
	if err != nil {
		return 0, fmt.Errorf("reading Clerk user %s: %w", userID, err)
	}

	return int(result.Get("private_metadata.free_usage").Int()), nil
}

// SetFreeUsage implements Provider. Clerk deep-merges metadata, so other
// private keys are kept.
func (c *Clerk) SetFreeUsage(ctx context.Context, userID string, n int) error {
	_, err := requests.JSON(ctx, requests.RequestOptions{
		Method:      http.MethodPatch,
		URL:         utils.JoinURL(c.opts.APIURL, "users", userID, "metadata"),
		Destination: audit.ToIdentity,
		Header:      c.authHeader(),
		JSON: map[string]any{
			"private_metadata": map[string]any{"free_usage": n},
		},
	})
	if err != nil {
		return fmt.Errorf("updating Clerk user %s: %w", userID, err)
	}

	return nil
}

func (c *Clerk) authHeader() http.Header {
	return http.Header{"Authorization": []string{"Bearer " + c.opts.SecretKey}}
}
