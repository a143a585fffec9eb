package auth

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/brightline-electric/servicesite/internal/httputil"
)

const visitorIdle = 10 * time.Minute

// LoginLimiter throttles login attempts per client address with a token
// bucket of perMinute attempts.
type LoginLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginLimiter returns a limiter allowing perMinute attempts per client.
func NewLoginLimiter(perMinute int) *LoginLimiter {
	if perMinute <= 0 {
		perMinute = 5
	}
	return &LoginLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Allow reports whether key may attempt a login now and spends one attempt.
// A nil limiter allows everything.
func (l *LoginLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	return l.visitorLocked(key, now).AllowN(now, 1)
}

// Blocked reports whether key has no attempts left, without spending one.
func (l *LoginLimiter) Blocked(key string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	return l.visitorLocked(key, now).TokensAt(now) < 1
}

func (l *LoginLimiter) visitorLocked(key string, now time.Time) *rate.Limiter {
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdle {
			delete(l.visitors, k)
		}
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Middleware answers 429 once a client exceeds its login budget.
func (l *LoginLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r)) {
			l.reject(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *LoginLimiter) reject(w http.ResponseWriter, r *http.Request) {
	retryAfter := int(time.Minute.Seconds()) / l.burst
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	httputil.RespondProblem(w, r, http.StatusTooManyRequests, ErrTooManyAttempts.Error())
}

// clientKey identifies the client of r by the host part of RemoteAddr.
// RemoteAddr is only rewritten from forwarding headers when the router is
// configured to trust a proxy.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
