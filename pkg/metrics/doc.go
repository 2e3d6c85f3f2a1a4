// Package metrics defines Prometheus metrics for the authy gateway, covering
// the login flow, session validation, JWKS fetches, proxied requests, rate
// limiting, and audit delivery.
package metrics
