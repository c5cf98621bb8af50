package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ai-pro-cosmic-go/internal/config"
	"github.com/ai-pro-cosmic-go/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2}, logger.NewDiscard())
	defer rl.Stop()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: false}, logger.NewDiscard())
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("k"))
	}
	rl.Stop()
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}, logger.NewDiscard())
	defer rl.Stop()

	reject := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}
	handler := RateLimit(rl, NewMetrics(), reject)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestClientIPIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", ClientIP(req, nil))

	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "192.0.2.7", ClientIP(req, nil))

	trusted := ParseTrustedProxies([]string{"10.0.0.0/8"}, logger.NewDiscard())
	assert.Equal(t, "192.0.2.7", ClientIP(req, trusted))
}

func TestClientIPBehindTrustedProxy(t *testing.T) {
	trusted := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"}, logger.NewDiscard())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 203.0.113.9, 192.0.2.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req, trusted))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "10.1.2.3", ClientIP(req, trusted))

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	assert.Equal(t, "10.1.2.3", ClientIP(req, trusted))
}

func TestParseTrustedProxies(t *testing.T) {
	nets := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1", "::1", "bogus"}, logger.NewDiscard())
	require.Len(t, nets, 3)
	assert.True(t, nets[1].Contains(net.ParseIP("192.0.2.1")))
	assert.False(t, nets[1].Contains(net.ParseIP("192.0.2.2")))
	assert.True(t, nets[2].Contains(net.ParseIP("::1")))
}

func TestRateLimitCannotBeBypassedWithForwardedFor(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}, logger.NewDiscard())
	defer rl.Stop()

	handler := RateLimit(rl, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestRateLimitKeysOnForwardedClientBehindProxy(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 1,
		Burst:             1,
		TrustedProxies:    []string{"10.0.0.1"},
	}, logger.NewDiscard())
	defer rl.Stop()

	send := func(client string) bool {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:8080"
		req.Header.Set("X-Forwarded-For", client)
		return rl.Allow(rl.ClientKey(req))
	}

	assert.True(t, send("203.0.113.1"))
	assert.False(t, send("203.0.113.1"))
	assert.True(t, send("203.0.113.2"))
}

func TestValidateInput(t *testing.T) {
	s := NewSecurityMiddleware(logger.NewDiscard())

	assert.NoError(t, s.ValidateInput(strings.Repeat("a", MaxMessageLength)))

	err := s.ValidateInput(strings.Repeat("a", MaxMessageLength+1))
	var tooLong *ErrMessageTooLong
	require.ErrorAs(t, err, &tooLong)
	assert.Equal(t, MaxMessageLength+1, tooLong.Length)

	assert.NoError(t, s.ValidateRole("user"))
	assert.NoError(t, s.ValidateRole("assistant"))
	assert.Error(t, s.ValidateRole("system"))
}

func TestHTTPMetricsPassesThrough(t *testing.T) {
	router := mux.NewRouter()
	router.Use(HTTPMetrics(NewMetrics()))
	router.HandleFunc("/api/users/{slug}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/ada", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordStoreOperation("get_users", StatusOK, 0)
		m.RecordCacheHit("home")
		m.RecordRateLimitExceeded()
	})
}

func TestMetricsServerServesHealth(t *testing.T) {
	srv := NewMetricsServer(0, "/metrics")

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
