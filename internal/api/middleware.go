package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestLog tags every request with a generated request id and logs the
// method, path, status and duration. The id is echoed in the X-Request-Id
// header so operators can correlate log lines with client-side reports.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)
		log.Printf("[HTTP] %s %s %s %d %s", requestID, r.Method, r.URL.Path, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// RateLimiter provides simple in-memory rate limiting
type RateLimiter struct {
	requests   map[string][]time.Time
	mu         sync.Mutex
	limit      int
	window     time.Duration
	maxEntries int
	stopChan   chan struct{}
}

// NewRateLimiter creates a rate limiter with specified limit per window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return NewRateLimiterWithMax(limit, window, 10000) // Default 10k max entries
}

// NewRateLimiterWithMax creates a rate limiter with configurable max entries.
// The cap keeps the per-IP map bounded between cleanup ticks.
func NewRateLimiterWithMax(limit int, window time.Duration, maxEntries int) *RateLimiter {
	rl := &RateLimiter{
		requests:   make(map[string][]time.Time),
		limit:      limit,
		window:     window,
		maxEntries: maxEntries,
		stopChan:   make(chan struct{}),
	}
	// Cleanup old entries periodically
	go rl.cleanup()
	return rl
}

// Stop stops the cleanup goroutine. Should be called on graceful shutdown.
func (rl *RateLimiter) Stop() {
	close(rl.stopChan)
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for ip, times := range rl.requests {
				valid := times[:0]
				for _, t := range times {
					if now.Sub(t) < rl.window {
						valid = append(valid, t)
					}
				}
				if len(valid) == 0 {
					delete(rl.requests, ip)
				} else {
					rl.requests[ip] = valid
				}
			}
			rl.mu.Unlock()
		case <-rl.stopChan:
			return
		}
	}
}

// Allow checks if a request from the given IP is allowed
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	var valid []time.Time
	for _, t := range rl.requests[ip] {
		if now.Sub(t) < rl.window {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[ip] = valid
		return false
	}

	// New IPs may not grow the map past maxEntries; evict the entry with
	// the oldest first request to make room.
	if _, exists := rl.requests[ip]; !exists && len(rl.requests) >= rl.maxEntries {
		var oldestIP string
		var oldestTime time.Time
		first := true
		for entryIP, entryTimes := range rl.requests {
			if len(entryTimes) > 0 && (first || entryTimes[0].Before(oldestTime)) {
				oldestIP = entryIP
				oldestTime = entryTimes[0]
				first = false
			}
		}
		if oldestIP != "" {
			delete(rl.requests, oldestIP)
			log.Printf("[RATE_LIMIT] Evicted oldest entry for %s to stay under max entries", oldestIP)
		}
	}

	rl.requests[ip] = append(valid, now)
	return true
}

// Wrap adds rate limiting to a handler
func (rl *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Use RemoteAddr directly: the surface sits behind the deployment's
		// own gateway, and trusting X-Forwarded-For here would let callers
		// spoof their way past the limiter.
		ip := r.RemoteAddr

		if !rl.Allow(ip) {
			log.Printf("[RATE_LIMIT] Blocked request from %s", ip)
			w.Header().Set("Retry-After", "60")
			http.Error(w, `{"success":false,"error":{"code":"RATE_LIMIT","message":"Too many requests"}}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LimitBodySize wraps a handler with request body size limiting
func LimitBodySize(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}
