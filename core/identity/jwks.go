// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"codeberg.org/quickai/quickai/core/audit"
	"codeberg.org/quickai/quickai/core/requests"
)

const jwksMinRefresh = time.Minute

var errUnknownKey = errors.New("unknown signing key")

// jwks caches the RSA keys of a JSON Web Key Set, refetching when a token
// names a key it has not seen, at most once per jwksMinRefresh.
type jwks struct {
	url    string
	bearer string

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	lastFetched time.Time

	now func() time.Time
}

func (j *jwks) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	j.mu.RLock()
	key, ok := j.keys[kid]
	j.mu.RUnlock()

	if ok {
		return key, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	// another goroutine may have refreshed while we waited
	if key, ok := j.keys[kid]; ok {
		return key, nil
	}

	if !j.lastFetched.IsZero() && j.now().Sub(j.lastFetched) < jwksMinRefresh {
		return nil, fmt.Errorf("%w %q", errUnknownKey, kid)
	}

	keys, err := j.fetch(ctx)
	if err != nil {
		return nil, err
	}

	j.keys = keys
	j.lastFetched = j.now()

	if key, ok := j.keys[kid]; ok {
		return key, nil
	}

	return nil, fmt.Errorf("%w %q", errUnknownKey, kid)
}

func (j *jwks) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	opts := requests.RequestOptions{
		Method:      http.MethodGet,
		URL:         j.url,
		Destination: audit.ToIdentity,
	}

	if j.bearer != "" {
		opts.Header = http.Header{"Authorization": []string{"Bearer " + j.bearer}}
	}

	result, err := requests.JSON(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)

	for _, k := range result.Get("keys").Array() {
		if k.Get("kty").String() != "RSA" {
			continue
		}

		pub, err := rsaKey(k)
		if err != nil {
			return nil, fmt.Errorf("parsing JWK %q: %w", k.Get("kid").String(), err)
		}

		keys[k.Get("kid").String()] = pub
	}

	return keys, nil
}

func rsaKey(k gjson.Result) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.Get("n").String())
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}

	e, err := base64.RawURLEncoding.DecodeString(k.Get("e").String())
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}

	exponent := new(big.Int).SetBytes(e)
	if !exponent.IsInt64() || exponent.Int64() < 3 {
		return nil, errors.New("exponent out of range")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(exponent.Int64()),
	}, nil
}
