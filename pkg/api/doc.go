// Package api wires the gateway's Gin engine: the login, callback and logout routes, the
// session gate in front of the proxy fallback, and the shared middleware (request logging,
// access log, panic recovery, CORS and rate limiting).
package api
