package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/telekom/authy/pkg/config"
	"github.com/telekom/authy/pkg/system"
)

func TestAccessLogLevels(t *testing.T) {
	logger, logs := system.NewObservedLogger(zapcore.DebugLevel)
	r := gin.New()
	r.Use(accessLog(logger.Sugar()))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/redirect", func(c *gin.Context) { c.Redirect(http.StatusFound, "/ok") })
	r.GET("/denied", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	for _, path := range []string{"/ok", "/redirect", "/denied"} {
		req := httptest.NewRequest(http.MethodGet, path+"?q=1", nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.4")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)

	fields := entries[2].ContextMap()
	assert.Equal(t, "198.51.100.4", fields["clientIP"])
	assert.Equal(t, "/denied?q=1", fields["uri"])
	assert.Equal(t, int64(http.StatusUnauthorized), fields["status"])
	assert.Equal(t, "HTTP/1.1", fields["proto"])
}

func TestCORSWildcardEchoesOrigin(t *testing.T) {
	r := gin.New()
	r.Use(corsMiddleware([]string{"*"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://anywhere.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORSAllowList(t *testing.T) {
	r := gin.New()
	r.Use(corsMiddleware([]string{"https://app.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	allowed := httptest.NewRequest(http.MethodGet, "/x", nil)
	allowed.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, allowed)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	denied := httptest.NewRequest(http.MethodGet, "/x", nil)
	denied.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, denied)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequestLoggerStoresLogger(t *testing.T) {
	g := newGateway(t, nil, nil)
	var captured interface{}
	r := gin.New()
	r.Use(g.server.requestLogger())
	r.GET("/x", func(c *gin.Context) {
		captured, _ = c.Get(system.ReqLoggerKey)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotNil(t, captured)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestListenServesUntilCancelled(t *testing.T) {
	addr, metricsAddr := freeAddr(t), freeAddr(t)
	g := newGateway(t, nil, func(c *config.Config) {
		c.Server.ListenAddress = addr
		c.Server.MetricsAddress = metricsAddr
		c.Server.ShutdownTimeout = "2s"
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.server.Listen(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + metricsAddr + "/metrics")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after cancellation")
	}
}

func TestListenReportsBindFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	g := newGateway(t, nil, func(c *config.Config) {
		c.Server.ListenAddress = l.Addr().String()
	})
	err = g.server.Listen(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
}
