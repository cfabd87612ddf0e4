package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"masterhand/internal/config"
	"masterhand/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// rateLimiter applies a token bucket per client in process and, when a key
// store is configured, a per-minute counter shared by every instance.
type rateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	cfg      config.APIRateLimitConfig
	keys     domain.KeyStore
	log      *zerolog.Logger
}

func newRateLimiter(cfg config.APIRateLimitConfig, keys domain.KeyStore, log *zerolog.Logger) *rateLimiter {
	return &rateLimiter{cfg: cfg, keys: keys, log: log}
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(l.cfg.RPS), burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}

// perMinute is the shared budget: one minute of sustained rate plus the burst.
func (l *rateLimiter) perMinute() int {
	return int(math.Ceil(l.cfg.RPS*60)) + l.cfg.Burst
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.cfg.RPS <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := clientKey(r)
		if !l.getLimiter(key).Allow() {
			writeMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if l.keys != nil {
			allowed, err := l.keys.CheckRateLimit(r.Context(), key, l.perMinute(), time.Minute)
			switch {
			case err != nil:
				l.log.Warn().Err(err).Str("client", key).Msg("shared rate limit unavailable")
			case !allowed:
				writeMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if p, ok := PrincipalFrom(r.Context()); ok {
		return p.Role + ":" + strconv.FormatInt(p.UserID, 10)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
