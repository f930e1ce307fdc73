// Package ratelimit paces outbound requests to the alert aggregation service.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket. A nil *Limiter never blocks, so callers can
// hold an optional limiter without branching.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	perSecond  float64
	lastRefill time.Time
	now        func() time.Time
}

// New returns a limiter that admits perSecond requests on average with
// bursts of up to burst. A non-positive rate yields nil (unlimited).
func New(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		tokens:    float64(burst),
		burst:     float64(burst),
		perSecond: perSecond,
		now:       time.Now,
	}
	l.lastRefill = l.now()
	return l
}

func (l *Limiter) refillLocked() {
	now := l.now()
	l.tokens += now.Sub(l.lastRefill).Seconds() * l.perSecond
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastRefill = now
}

// Allow takes a token if one is available right now
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is taken or ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	for {
		l.mu.Lock()
		l.refillLocked()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - l.tokens) / l.perSecond * float64(time.Second))
		l.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
