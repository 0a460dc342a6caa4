// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package middleware provides the HTTP middleware chain of the QuickAI API:
server timing, response headers with CORS, authentication, and JSON error
rendering with request logging.

Routes are defined in the router package.
*/
package middleware
