// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package idgen

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Make makes a short ID with a 6 character timestamp and 3 bytes of entropy.
//
// IDs are only unique enough to correlate log lines of a single instance.
func Make() string {
	var entropy [3]byte

	_, _ = rand.Read(entropy[:])

	return maketime(time.Now()) + base64.RawURLEncoding.EncodeToString(entropy[:])
}

// Child derives the ID of an outbound call made while serving the request parent.
func Child(parent string) string {
	if parent == "" {
		return Make()
	}

	return parent + "-" + Make()
}

func maketime(t time.Time) string {
	return t.Format("150405")
}
