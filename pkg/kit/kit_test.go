package kit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestIPRateLimiter_Window(t *testing.T) {
	l := NewIPRateLimiter(2, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	h := l.Middleware(http.HandlerFunc(okHandler))

	call := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1235"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1236"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1234"), "other clients are not affected")

	now = now.Add(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1234"))
}

func TestClientIP_PrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:999"
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")

	assert.Equal(t, "203.0.113.7", clientIP(req))
}

func TestMetricsAuth(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{name: "no token configured", token: "", header: "Bearer x", want: http.StatusForbidden},
		{name: "missing header", token: "s3cret", header: "", want: http.StatusForbidden},
		{name: "wrong token", token: "s3cret", header: "Bearer nope", want: http.StatusForbidden},
		{name: "ok", token: "s3cret", header: "Bearer s3cret", want: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			MetricsAuth(tc.token)(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware("catalog", ChiRoutePattern))
	r.Get("/products/{pid}", okHandler)

	for _, p := range []string{"/products/1", "/products/2", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("catalog", "GET", "/products/{pid}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("catalog", "GET", unmatchedRoute, "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight.WithLabelValues("catalog")))
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	h := chimw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"request_id":`)
}

func TestWriteMessage_BareBody(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteMessage(rec, http.StatusNotFound, "missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"missing"}`, rec.Body.String())
}

func TestRunHTTPServer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- RunHTTPServer(ctx, ServerOptions{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, http.HandlerFunc(okHandler), zap.NewNop())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
