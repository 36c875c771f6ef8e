package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/SoftwareDev-01/6.vybe/internal/metrics"
	"github.com/SoftwareDev-01/6.vybe/internal/store"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int64
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiter implements fixed-window rate limiting backed by Redis.
type RateLimiter struct {
	redis        *store.RedisStore
	limits       map[string]RateLimit
	logger       zerolog.Logger
	whitelist    []*net.IPNet
	whitelistIPs map[string]bool
}

// NewRateLimiter creates a new rate limiter. Whitelist entries are single
// IPs or CIDRs exempt from limiting.
func NewRateLimiter(rs *store.RedisStore, logger zerolog.Logger, whitelist []string) *RateLimiter {
	rl := &RateLimiter{
		redis:        rs,
		logger:       logger,
		whitelistIPs: make(map[string]bool),
		limits: map[string]RateLimit{
			"POST /send/":            {60, time.Minute, userKey},
			"GET /messages/":         {120, time.Minute, userKey},
			"GET /conversationPeers": {60, time.Minute, userKey},
			"POST /delete":           {60, time.Minute, userKey},
			"GET /ws":                {30, time.Minute, ipKey},
		},
	}

	for _, entry := range whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	return rl
}

// Middleware enforces the per-endpoint limits.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, pattern, ok := rl.match(r)
		if !ok || rl.isWhitelisted(realIP(r)) {
			next.ServeHTTP(w, r)
			return
		}

		bucket := pattern + ":" + limit.KeyFunc(r)
		count, err := rl.redis.IncrRateLimit(r.Context(), bucket, limit.Window)
		if err != nil {
			// Redis trouble should not take the API down.
			rl.logger.Warn().Err(err).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		if count > limit.Requests {
			metrics.RateLimitHits.WithLabelValues(pattern).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// match finds the limit config for a request, prefix-matched on method+path.
func (rl *RateLimiter) match(r *http.Request) (RateLimit, string, bool) {
	key := r.Method + " " + r.URL.Path
	for pattern, limit := range rl.limits {
		if strings.HasPrefix(key, pattern) {
			return limit, pattern, true
		}
	}
	return RateLimit{}, "", false
}

// isWhitelisted checks if an IP is in the whitelist.
func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// userKey buckets by the authenticated user, falling back to IP.
func userKey(r *http.Request) string {
	if userID, ok := UserFromContext(r.Context()); ok {
		return "user:" + userID.String()
	}
	return "ip:" + realIP(r)
}

// ipKey buckets by client IP.
func ipKey(r *http.Request) string {
	return "ip:" + realIP(r)
}

// realIP returns the client address, trusting chi's RealIP middleware to
// have rewritten RemoteAddr from forwarding headers.
func realIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
