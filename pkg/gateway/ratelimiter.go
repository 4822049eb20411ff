package gateway

import (
	"sync"
	"time"
)

// Limiter bounds RPC traffic with a sliding one-minute request window and a
// cap on requests in flight. A zero limit disables that bound.
type Limiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	maxConcurrent     int
	requests          []time.Time
	inFlight          int
	now               func() time.Time
}

// NewLimiter creates a limiter with the given bounds.
func NewLimiter(requestsPerMinute, maxConcurrent int) *Limiter {
	return &Limiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		now:               time.Now,
	}
}

// Acquire admits one request. On success the returned release func must be
// called when the request finishes; on rejection it returns the RPC error
// to send back.
func (l *Limiter) Acquire() (release func(), rpcErr *RPCError) {
	if l == nil {
		return func() {}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxConcurrent > 0 && l.inFlight >= l.maxConcurrent {
		return nil, &RPCError{Code: TooManyConcurrent, Message: "too many concurrent requests"}
	}

	now := l.now()
	l.prune(now)
	if l.requestsPerMinute > 0 && len(l.requests) >= l.requestsPerMinute {
		return nil, &RPCError{Code: RateLimitExceeded, Message: "rate limit exceeded"}
	}

	l.requests = append(l.requests, now)
	l.inFlight++

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.inFlight > 0 {
				l.inFlight--
			}
			l.mu.Unlock()
		})
	}, nil
}

// Stats returns the requests in the current window and those in flight.
func (l *Limiter) Stats() (windowCount, inFlight int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.requests), l.inFlight
}

// prune drops requests older than one minute. Callers hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	keep := l.requests[:0]
	for _, at := range l.requests {
		if at.After(cutoff) {
			keep = append(keep, at)
		}
	}
	l.requests = keep
}
