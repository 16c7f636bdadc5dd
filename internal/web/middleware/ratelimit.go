package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused camera limiter is kept.
const limiterIdle = 10 * time.Minute

// CameraLimiter hands out one token bucket per camera.
type CameraLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	rate     rate.Limit
	burst    int
}

// NewCameraLimiter creates a limiter allowing perSecond frames per camera
// with the given burst.
func NewCameraLimiter(perSecond float64, burst int) *CameraLimiter {
	if perSecond <= 0 {
		perSecond = constants.DefaultIngestRate
	}
	if burst <= 0 {
		burst = constants.DefaultIngestBurst
	}
	return &CameraLimiter{
		limiters: cache.New(limiterIdle, limiterIdle),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether camera may submit another frame now.
func (l *CameraLimiter) Allow(camera string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lim *rate.Limiter
	if v, ok := l.limiters.Get(camera); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(l.rate, l.burst)
	}
	// Refresh the expiry on every use.
	l.limiters.SetDefault(camera, lim)
	return lim.Allow()
}

// cameraKey identifies the caller by camera header, falling back to the client IP.
func cameraKey(r *http.Request) string {
	if id := r.Header.Get(constants.CameraHeader); id != "" {
		return "camera:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

// RateLimit is middleware that rejects frames over the per-camera rate with 429.
// onLimited, if set, is called for every rejected request.
func RateLimit(l *CameraLimiter, onLimited func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(cameraKey(r)) {
				if onLimited != nil {
					onLimited()
				}
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error": "rate limit exceeded"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
