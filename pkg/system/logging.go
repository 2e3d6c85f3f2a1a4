// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ReqLoggerKey is the context key used to store request-scoped logger in gin context.
const ReqLoggerKey = "reqLogger"

// Context keys the session gate populates after a successful validation.
const (
	SubjectKey  = "subject"
	UsernameKey = "username"
)

// NewLogger builds the process logger. debug selects the development config.
// Stacktraces are disabled for every level and timestamps are RFC3339 UTC under "ts".
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return logger, nil
}

// GetReqLogger returns the request-scoped sugared logger from gin.Context if present,
// otherwise returns fallback.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}

// EnrichReqLoggerWithSession annotates the request-scoped logger with the session identity
// stored in the Gin context.
func EnrichReqLoggerWithSession(c *gin.Context, reqLogger *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil || reqLogger == nil {
		return reqLogger
	}
	if subject := c.GetString(SubjectKey); subject != "" {
		reqLogger = reqLogger.With("subject", subject)
	}
	if username := c.GetString(UsernameKey); username != "" {
		reqLogger = reqLogger.With("username", username)
	}
	return reqLogger
}

// RequestFields returns key/value pairs identifying a request for SugaredLogger.With or *w calls.
func RequestFields(clientIP, method, path string) []interface{} {
	return []interface{}{"clientIP", clientIP, "method", method, "path", path}
}
