package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ai-pro-cosmic-go/internal/config"
	"github.com/ai-pro-cosmic-go/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// MaxMessageLength caps message content in bytes.
const MaxMessageLength = 4096

// RateLimiter interface for rate limiting
type RateLimiter interface {
	Allow(key string) bool
	ClientKey(req *http.Request) string
}

// ClientRateLimiter implements per-client rate limiting
type ClientRateLimiter struct {
	enabled         bool
	trusted         []*net.IPNet
	limiters        map[string]*clientLimiter
	mu              sync.RWMutex
	rpm             int
	burst           int
	logger          *logrus.Logger
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.RateLimitConfig, logger *logrus.Logger) *ClientRateLimiter {
	trusted := ParseTrustedProxies(cfg.TrustedProxies, logger)
	if !cfg.Enabled {
		return &ClientRateLimiter{enabled: false, trusted: trusted}
	}

	rl := &ClientRateLimiter{
		enabled:         true,
		trusted:         trusted,
		limiters:        make(map[string]*clientLimiter),
		rpm:             cfg.RequestsPerMinute,
		burst:           cfg.Burst,
		logger:          logger,
		cleanupInterval: 10 * time.Minute,
		stop:            make(chan struct{}),
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Allow checks if a client is allowed to make a request
func (r *ClientRateLimiter) Allow(key string) bool {
	if !r.enabled {
		return true
	}

	allowed := r.getLimiter(key).Allow()
	if !allowed {
		r.logger.WithFields(logrus.Fields{
			"client": key,
		}).Warn("Rate limit exceeded")
	}

	return allowed
}

// ClientKey identifies the client behind req for rate limiting.
func (r *ClientRateLimiter) ClientKey(req *http.Request) string {
	return ClientIP(req, r.trusted)
}

// Stop ends the cleanup goroutine.
func (r *ClientRateLimiter) Stop() {
	if !r.enabled {
		return
	}
	r.stopOnce.Do(func() { close(r.stop) })
}

// getLimiter gets or creates a rate limiter for a client
func (r *ClientRateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.limiters[key]
	if !exists {
		// Rate per second = RPM / 60
		rps := float64(r.rpm) / 60.0
		entry = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), r.burst)}
		r.limiters[key] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter
}

// cleanup drops limiters idle for longer than the cleanup interval
func (r *ClientRateLimiter) cleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.mu.Lock()
			for key, entry := range r.limiters {
				if now.Sub(entry.lastSeen) > r.cleanupInterval {
					delete(r.limiters, key)
				}
			}
			r.mu.Unlock()
		}
	}
}

// ParseTrustedProxies turns IPs and CIDRs into networks. Invalid entries
// are skipped with a warning.
func ParseTrustedProxies(entries []string, logger *logrus.Logger) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			if logger != nil {
				logger.WithField("proxy", entry).Warn("Ignoring invalid trusted proxy")
			}
			continue
		}
		bits := 8 * net.IPv6len
		if ip4 := ip.To4(); ip4 != nil {
			ip, bits = ip4, 8*net.IPv4len
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// ClientIP returns the peer address of req. When the peer is a trusted
// proxy, X-Forwarded-For is walked from the right and the first hop that
// is not itself a trusted proxy is returned.
func ClientIP(req *http.Request, trusted []*net.IPNet) string {
	peer, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		peer = req.RemoteAddr
	}
	if !isTrusted(peer, trusted) {
		return peer
	}

	hops := strings.Split(req.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if net.ParseIP(hop) == nil {
			break
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
	}
	return peer
}

func isTrusted(addr string, trusted []*net.IPNet) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// RateLimit rejects requests over the client's budget by calling reject.
func RateLimit(limiter RateLimiter, metrics *Metrics, reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow(limiter.ClientKey(req)) {
				metrics.RecordRateLimitExceeded()
				reject(w, req)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// SecurityMiddleware provides security checks
type SecurityMiddleware struct {
	logger *logrus.Logger
}

// NewSecurityMiddleware creates security middleware
func NewSecurityMiddleware(logger *logrus.Logger) *SecurityMiddleware {
	return &SecurityMiddleware{
		logger: logger,
	}
}

// ErrMessageTooLong reports content over MaxMessageLength.
type ErrMessageTooLong struct {
	Length int
}

func (e *ErrMessageTooLong) Error() string {
	return fmt.Sprintf("message too long: %d bytes", e.Length)
}

// ValidateInput checks message content length
func (s *SecurityMiddleware) ValidateInput(text string) error {
	if len(text) > MaxMessageLength {
		s.logger.WithField("length", len(text)).Warn("Rejected oversized message")
		return &ErrMessageTooLong{Length: len(text)}
	}
	return nil
}

// ValidateRole accepts only roles a conversation can store.
func (s *SecurityMiddleware) ValidateRole(role string) error {
	if !models.MessageRole(role).Valid() {
		return fmt.Errorf("invalid role: %q", role)
	}
	return nil
}
