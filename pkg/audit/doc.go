// Package audit records gateway security events (logins, rejected sessions, logouts,
// rate limiting) and forwards them asynchronously to log, webhook or Kafka sinks.
package audit
