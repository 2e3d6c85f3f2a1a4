// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package jwks resolves identity provider signing keys by key id.
//
// Three strategies are available: a plain Fetcher that downloads the key set on
// every lookup, a CachedResolver that keeps individual keys for a TTL, and a
// RefreshingResolver that keeps the whole set in memory and refreshes it in the
// background. All of them report failures through ErrKeyNotFound, ErrMalformed
// and ErrUnavailable so callers can map them independently of the strategy.
package jwks
