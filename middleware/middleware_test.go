package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/tokmz/huddle"
)

func newEngine(middlewares ...huddle.HandlerFunc) *huddle.Engine {
	e := huddle.New(huddle.WithMode(gin.TestMode))
	e.Use(middlewares...)
	e.RouterGroup().GET("/ok", func(c *huddle.Context) { c.Nil() })
	e.RouterGroup().OPTIONS("/ok", func(c *huddle.Context) { c.Nil() })
	return e
}

func serve(e *huddle.Engine, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, r)
	return w
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(&RateLimiterConfig{RequestsPerSecond: 0.001, Burst: 2})
	defer rl.Stop()
	e := newEngine(rl.Handler())

	req := func(ip string) int {
		r := httptest.NewRequest(http.MethodGet, "/ok", nil)
		r.RemoteAddr = ip + ":1234"
		return serve(e, r).Code
	}

	assert.Equal(t, http.StatusOK, req("10.0.0.1"))
	assert.Equal(t, http.StatusOK, req("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, req("10.0.0.1"))
	// 每个 IP 独立计数
	assert.Equal(t, http.StatusOK, req("10.0.0.2"))
}

func TestRateLimiterExcludePaths(t *testing.T) {
	rl := NewRateLimiter(&RateLimiterConfig{RequestsPerSecond: 0.001, Burst: 1, ExcludePaths: []string{"/ok"}})
	defer rl.Stop()
	e := newEngine(rl.Handler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, httptest.NewRequest(http.MethodGet, "/ok", nil)).Code)
	}
}

func TestRateLimiterRefillAndCleanup(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rl := NewRateLimiter(&RateLimiterConfig{RequestsPerSecond: 1, Burst: 1, BucketExpiry: time.Minute})
	defer rl.Stop()

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("k"))

	now = now.Add(2 * time.Minute)
	rl.cleanup()
	assert.Equal(t, 0, rl.size())

	rl.Stop()
	rl.Stop()
}

func TestCORS(t *testing.T) {
	e := newEngine(CORS(&CORSConfig{
		AllowOrigins: []string{"https://app.example.com", "https://*.example.org"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization"},
		MaxAge:       time.Hour,
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"no origin", http.MethodGet, "", "", http.StatusOK},
		{"exact", http.MethodGet, "https://app.example.com", "https://app.example.com", http.StatusOK},
		{"wildcard", http.MethodGet, "https://tutor.example.org", "https://tutor.example.org", http.StatusOK},
		{"wildcard needs subdomain", http.MethodGet, "https://.example.org", "", http.StatusOK},
		{"denied", http.MethodGet, "https://evil.test", "", http.StatusOK},
		{"preflight", http.MethodOptions, "https://app.example.com", "https://app.example.com", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/ok", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			w := serve(e, r)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.method == http.MethodOptions {
				assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}

func TestCORSCredentialsWithWildcardPanics(t *testing.T) {
	assert.Panics(t, func() {
		CORS(&CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true})
	})
}

func TestTracing(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	}()

	var traceID string
	e := huddle.New(huddle.WithMode(gin.TestMode))
	e.Use(Tracing())
	e.RouterGroup().GET("/rooms/:roomId", func(c *huddle.Context) {
		traceID = huddle.GetContextTraceID(c)
		c.Nil()
	})
	e.RouterGroup().GET("/fail", func(c *huddle.Context) { c.AbortWithStatus(http.StatusInternalServerError) })
	e.RouterGroup().GET("/healthz", func(c *huddle.Context) { c.Nil() })

	w := serve(e, httptest.NewRequest(http.MethodGet, "/rooms/algebra", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Traceparent"))

	serve(e, httptest.NewRequest(http.MethodGet, "/fail", nil))
	serve(e, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /rooms/:roomId", spans[0].Name())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), traceID)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
