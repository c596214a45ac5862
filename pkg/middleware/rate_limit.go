package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "agenda/pkg/errors"
	"agenda/pkg/logger"

	"golang.org/x/time/rate"
)

// HeaderUser carries the caller identity on every reservation request.
const HeaderUser = "X-User-ID"

type UserExtractor func(r *http.Request) string

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter gives every user a token bucket of limit requests refilled over window.
type UserRateLimiter struct {
	mu        sync.Mutex
	users     map[string]*userLimiter
	limit     int
	window    time.Duration
	extractor UserExtractor
	log       *logger.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewUserRateLimiter(limit int, window time.Duration, extractor UserExtractor, log *logger.Logger) *UserRateLimiter {
	if extractor == nil {
		extractor = DefaultUserExtractor
	}
	limiter := &UserRateLimiter{
		users:     make(map[string]*userLimiter),
		limit:     limit,
		window:    window,
		extractor: extractor,
		log:       log,
		stopCh:    make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *UserRateLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// evictIdle drops users whose bucket has been full for a whole window.
func (rl *UserRateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for user, ul := range rl.users {
		if now.Sub(ul.lastSeen) > rl.window {
			delete(rl.users, user)
		}
	}
}

func (rl *UserRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *UserRateLimiter) Allow(user string) bool {
	return rl.allowAt(user, time.Now())
}

func (rl *UserRateLimiter) allowAt(user string, now time.Time) bool {
	if user == "" {
		return true
	}

	rl.mu.Lock()
	ul, ok := rl.users[user]
	if !ok {
		ul = &userLimiter{
			limiter: rate.NewLimiter(rate.Every(rl.window/time.Duration(rl.limit)), rl.limit),
		}
		rl.users[user] = ul
	}
	ul.lastSeen = now
	rl.mu.Unlock()

	return ul.limiter.AllowN(now, 1)
}

func (rl *UserRateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.users)
}

func UserRateLimit(limiter *UserRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := limiter.extractor(r)

			if user == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(user) {
				rejectRateLimited(w, limiter, r, user)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(w http.ResponseWriter, limiter *UserRateLimiter, r *http.Request, user string) {
	// one token refills every window/limit
	retry := int(math.Ceil((limiter.window / time.Duration(limiter.limit)).Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(retry))

	limiter.log.Warn("Rate limit exceeded",
		"request_id", requestIDFrom(r),
		"user_id", user,
		"path", r.URL.Path,
	)

	reject(w, apperrors.TooManyRequests("Rate limit exceeded, try again later"))
}

func DefaultUserExtractor(r *http.Request) string {
	return r.Header.Get(HeaderUser)
}
