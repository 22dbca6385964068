package auth

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = time.Minute
)

// LoginRateLimiter keeps one token bucket per client IP for the credential
// endpoints. Close stops the background sweeper.
type LoginRateLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	trustedHops int
	buckets     map[string]*ipBucket
	now         func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginRateLimiter keys buckets on the connection's remote address. With
// trustedHops > 0, that many proxies in front of the server are trusted to
// append to X-Forwarded-For and the client is read from that header.
func NewLoginRateLimiter(perMinute, burst, trustedHops int) *LoginRateLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 5
	}
	if trustedHops < 0 {
		trustedHops = 0
	}

	l := &LoginRateLimiter{
		limit:       rate.Limit(float64(perMinute) / 60),
		burst:       burst,
		trustedHops: trustedHops,
		buckets:     make(map[string]*ipBucket),
		now:         time.Now,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go l.sweep()
	return l
}

func (l *LoginRateLimiter) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	<-l.done
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(clientIP(r, l.trustedHops))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
			writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *LoginRateLimiter) allow(ip string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, delay
}

func (l *LoginRateLimiter) sweep() {
	defer close(l.done)

	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle(l.now())
		}
	}
}

func (l *LoginRateLimiter) evictIdle(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.buckets, ip)
		}
	}
}

func (l *LoginRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func retryAfterSeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// clientIP ignores X-Forwarded-For unless trustedHops proxies sit in front.
// Each trusted proxy appends the address it saw, so the client is the entry
// trustedHops positions from the right; anything left of it is caller input.
func clientIP(r *http.Request, trustedHops int) string {
	if trustedHops > 0 {
		var hops []string
		for _, value := range r.Header.Values("X-Forwarded-For") {
			for _, hop := range strings.Split(value, ",") {
				if hop = strings.TrimSpace(hop); hop != "" {
					hops = append(hops, hop)
				}
			}
		}
		if len(hops) >= trustedHops {
			return hops[len(hops)-trustedHops]
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
	return host
}
