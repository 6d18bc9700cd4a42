package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/staybook/hotel-server-go/internal/audit"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/service"
)

const rateLimitWindow = 60 * time.Second

type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) service.RateLimitDecision
}

// KeyFunc names the bucket a request counts against.
type KeyFunc func(r *http.Request) string

// ByClientIP buckets requests by remote address. Run chi's RealIP first when
// behind a proxy.
func ByClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// ByUser buckets authenticated requests by user and the rest by client IP.
func ByUser(r *http.Request) string {
	if user := GetUser(r.Context()); user != nil {
		return "user:" + user.ID
	}
	return ByClientIP(r)
}

// RedisRateLimitMiddleware enforces a per-minute budget on the routes it wraps.
type RedisRateLimitMiddleware struct {
	limiter Limiter
	scope   string
	limit   int
	key     KeyFunc
}

func NewRedisRateLimitMiddleware(limiter Limiter, scope string, limitPerMin int, key KeyFunc) *RedisRateLimitMiddleware {
	return &RedisRateLimitMiddleware{
		limiter: limiter,
		scope:   scope,
		limit:   limitPerMin,
		key:     key,
	}
}

func (m *RedisRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := m.scope + ":" + m.key(r)
		decision := m.limiter.CheckLimit(r.Context(), key, m.limit, rateLimitWindow)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			log.Warn().Str("key", key).Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"scope": m.scope},
			})

			retry := int(time.Until(decision.ResetAt).Seconds())
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
