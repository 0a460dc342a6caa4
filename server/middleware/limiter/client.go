// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package limiter

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"

	"codeberg.org/quickai/quickai/config"
)

var (
	errMissingClientIP = errors.New("missing client IP")
	errInvalidIPFormat = errors.New("invalid IP format")
)

// ClientInfo is the network view of a single request.
type ClientInfo struct {
	ip      netip.Addr
	network netip.Prefix
}

// newClientInfo resolves the client address of r and the network it
// belongs to.
func newClientInfo(r *http.Request) (*ClientInfo, error) {
	raw := remoteAddr(r)
	if raw == "" {
		return nil, errMissingClientIP
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errInvalidIPFormat, raw)
	}

	addr = addr.Unmap().WithZone("")

	network, err := networkOf(addr, config.Global.Limiter.IPv4Prefix, config.Global.Limiter.IPv6Prefix)
	if err != nil {
		return nil, fmt.Errorf("masking %s: %w", addr, err)
	}

	return &ClientInfo{ip: addr, network: network}, nil
}

// checkIPLists returns (allowed, blocked). The pass list wins, so at most
// one is true.
func (c *ClientInfo) checkIPLists() (bool, bool) {
	if matchesAny(c.ip, config.Global.Limiter.PassIPs) {
		return true, false
	}

	return false, matchesAny(c.ip, config.Global.Limiter.BlockIPs)
}

// isLocal reports whether the IP is loopback or link-local.
func (c *ClientInfo) isLocal() bool {
	return c.ip.IsLoopback() || c.ip.IsLinkLocalUnicast()
}
