// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseURL parses a URL string and returns a *url.URL.
//
// Both scheme and host are required. A trailing slash on the path is dropped.
func ParseURL(urlStr, urlType string) (*url.URL, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s URL: %w", urlType, err)
	}

	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf(
			"%s URL is invalid: %s. Please specify a complete URL with scheme and host, e.g. https://example.com",
			urlType,
			urlStr)
	}

	parsedURL.Path = strings.TrimSuffix(parsedURL.Path, "/")

	return parsedURL, nil
}

// GetOriginFromURL extracts the scheme and host from a URL to form its origin.
//
// Examples:
// -	"https://example.com/path" returns "https://example.com"
//
// Returns an empty string if either scheme or host is missing.
func GetOriginFromURL(u url.URL) string {
	if u.Scheme == "" || u.Host == "" {
		return ""
	}

	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// JoinURL appends path segments to base, escaping each segment.
func JoinURL(base string, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}

	return strings.TrimSuffix(base, "/") + "/" + strings.Join(escaped, "/")
}
