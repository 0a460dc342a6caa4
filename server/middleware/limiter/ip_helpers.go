// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package limiter

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// remoteAddr returns the address of the peer, or of the client named by a
// proxy header when the peer is a private or loopback address.
func remoteAddr(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}

	addr, err := netip.ParseAddr(peer)
	if err != nil || !(addr.IsPrivate() || addr.IsLoopback()) {
		return peer
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	// the last hop was appended by the proxy we trust
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		if last := strings.TrimSpace(hops[len(hops)-1]); last != "" {
			return last
		}
	}

	return peer
}

// matchesAny reports whether addr equals one of entries or lies in one of
// them. Entries are addresses or CIDR prefixes; malformed ones are skipped.
func matchesAny(addr netip.Addr, entries []string) bool {
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err == nil && prefix.Contains(addr) {
				return true
			}

			continue
		}

		if other, err := netip.ParseAddr(entry); err == nil && other.Unmap() == addr {
			return true
		}
	}

	return false
}

// networkOf masks addr down to the network its requests are counted
// against.
func networkOf(addr netip.Addr, ipv4Bits, ipv6Bits int) (netip.Prefix, error) {
	if addr.Is4() {
		return addr.Prefix(ipv4Bits)
	}

	return addr.Prefix(ipv6Bits)
}
