// internal/mw/ratelimit.go
package mw

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RateLimiter struct {
	Rdb    *redis.Client
	RPS    int
	Burst  int
	logger zerolog.Logger
	now    func() time.Time
}

func NewRateLimiter(rdb *redis.Client, rps, burst int, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{Rdb: rdb, RPS: rps, Burst: burst, logger: logger, now: time.Now}
}

// Allow counts hits per user in one-second windows (INCR + EXPIRE) and admits
// up to RPS+Burst per window. A redis failure admits the request.
func (rl *RateLimiter) Allow(ctx context.Context, userID string) bool {
	sec := rl.now().Unix()
	key := "rl:" + userID + ":" + strconv.FormatInt(sec, 10)
	cnt, err := rl.Rdb.Incr(ctx, key).Result()
	if err != nil {
		rl.logger.Warn().Err(err).Msg("rate limiter unavailable, allowing")
		return true
	}
	_ = rl.Rdb.Expire(ctx, key, 2*time.Second).Err()
	return int(cnt) <= rl.RPS+rl.Burst
}

// Middleware must run after AuthMiddleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(r.Context(), UserID(r.Context())) {
			ErrorResponse(w, http.StatusTooManyRequests, "rate limit")
			return
		}
		next.ServeHTTP(w, r)
	})
}
