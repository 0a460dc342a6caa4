// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package limiter is a middleware that rate limits API requests per client network
and, once a caller is authenticated, per user.
*/
package limiter
