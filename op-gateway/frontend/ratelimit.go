package frontend

import (
	"net"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the number of per-IP limiters kept in memory.
const maxTrackedClients = 10_000

// ipLimiter is a token bucket per client IP.
type ipLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *lru.Cache[string, *rate.Limiter]
}

func newIPLimiter(limit float64, burst int) *ipLimiter {
	limiters, err := lru.New[string, *rate.Limiter](maxTrackedClients)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &ipLimiter{limit: rate.Limit(limit), burst: burst, limiters: limiters}
}

func (l *ipLimiter) Allow(ip string) bool {
	lim, ok := l.limiters.Get(ip)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		if prev, loaded, _ := l.limiters.PeekOrAdd(ip, lim); loaded {
			lim = prev
		}
	}
	return lim.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
