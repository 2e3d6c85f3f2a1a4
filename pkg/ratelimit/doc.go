// Package ratelimit provides keyed token-bucket rate limiting middleware for Gin,
// with separate limits for validated sessions and anonymous traffic.
package ratelimit
