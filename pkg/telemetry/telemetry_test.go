// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

func keepGlobalProvider(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		otel.SetTextMapPropagator(prevProp)
	})
}

func TestInitDisabled(t *testing.T) {
	keepGlobalProvider(t)

	tp, shutdown, err := Init(context.Background(), Options{Enabled: false})
	require.NoError(t, err)
	_, ok := tp.(noop.TracerProvider)
	assert.True(t, ok, "expected noop provider, got %T", tp)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitExporters(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "none", opts: Options{Exporter: "none", SamplingRate: 1.0}},
		{name: "stdout", opts: Options{Exporter: "stdout", SamplingRate: 0.5}},
		// The OTLP exporter connects lazily, so an unroutable endpoint still initializes.
		{name: "otlp", opts: Options{Exporter: "otlp", Endpoint: "localhost:0", Insecure: true}},
		{name: "default is otlp", opts: Options{Endpoint: "localhost:0", Insecure: true}},
		{name: "negative sampling clamped", opts: Options{Exporter: "none", SamplingRate: -0.5}},
		{name: "sampling above one clamped", opts: Options{Exporter: "none", SamplingRate: 2.0}},
		{name: "unknown exporter", opts: Options{Exporter: "jaeger"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keepGlobalProvider(t)
			tt.opts.Enabled = true
			tt.opts.Logger = zap.NewNop().Sugar()

			tp, shutdown, err := Init(context.Background(), tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown OTel exporter")
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = shutdown(context.Background()) })
			_, isSDK := tp.(*sdktrace.TracerProvider)
			assert.True(t, isSDK)
			assert.Equal(t, tp, otel.GetTracerProvider())
		})
	}
}

func TestShutdownTwice(t *testing.T) {
	keepGlobalProvider(t)

	_, shutdown, err := Init(context.Background(), Options{Enabled: true, Exporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	_ = shutdown(context.Background())
}

func newRecordingProvider() (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	return sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)), recorder
}

func TestMiddlewareNamesSpansByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tp, recorder := newRecordingProvider()

	r := gin.New()
	r.Use(Middleware(tp))
	r.GET("/callback", func(c *gin.Context) { c.Status(http.StatusFound) })
	r.NoRoute(func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?code=x", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/orders/42", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /callback", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "POST proxy", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestMiddlewareContinuesIncomingTrace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	keepGlobalProvider(t)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp, recorder := newRecordingProvider()

	r := gin.New()
	r.Use(Middleware(tp))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	r.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
}

func TestTransportInjectsTraceContext(t *testing.T) {
	keepGlobalProvider(t)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp, recorder := newRecordingProvider()

	var traceparent string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(backend.Close)

	ctx, parent := tp.Tracer("test").Start(context.Background(), "parent")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, backend.URL, nil)
	require.NoError(t, err)
	resp, err := (&http.Client{Transport: Transport(nil, tp)}).Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	parent.End()

	assert.Contains(t, traceparent, parent.SpanContext().TraceID().String())
	assert.Len(t, recorder.Ended(), 2)
}
