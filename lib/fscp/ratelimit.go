package fscp

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// rateLimiter bounds the number of allow() calls per endpoint within
// a window, reset wholesale by resetAll on the rate-limit timer tick —
// this is the "reset every 10 seconds" discipline rather than a
// sliding window, matching the timer-driven reset the spec describes
// for hello and presentation rate limiting.
type rateLimiter struct {
	cache *lru.Cache[string, *atomic.Int32]
	max   int
}

func newRateLimiter(max int) *rateLimiter {
	cache, err := lru.New[string, *atomic.Int32](4096)
	if err != nil {
		// lru.New only fails for a non-positive size, which 4096 never is.
		panic(err)
	}
	return &rateLimiter{cache: cache, max: max}
}

// allow increments the endpoint's counter and reports whether it is
// still within the configured limit for the current window.
func (r *rateLimiter) allow(endpoint string) bool {
	counter, ok := r.cache.Get(endpoint)
	if !ok {
		counter = &atomic.Int32{}
		r.cache.Add(endpoint, counter)
	}
	return int(counter.Add(1)) <= r.max
}

// resetAll clears every endpoint's counter, starting a fresh window.
func (r *rateLimiter) resetAll() {
	r.cache.Purge()
}
