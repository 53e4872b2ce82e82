package session

import (
	"sync"
	"time"

	"github.com/jpillora/backoff"
)

// DefaultReconnectDelay is the fixed delay between reconnect attempts.
const DefaultReconnectDelay = time.Second

// ReconnectPolicy decides how long to wait before the next reconnect.
type ReconnectPolicy interface {
	// Next returns the delay before the next attempt.
	Next() time.Duration
	// Reset is called after a connection opens.
	Reset()
}

// FixedPolicy waits the same delay before every attempt.
type FixedPolicy time.Duration

// Next implements ReconnectPolicy.
func (p FixedPolicy) Next() time.Duration { return time.Duration(p) }

// Reset implements ReconnectPolicy.
func (p FixedPolicy) Reset() {}

// BackoffPolicy doubles the delay after each failed attempt up to a ceiling.
type BackoffPolicy struct {
	mu sync.Mutex
	b  *backoff.Backoff
}

// NewBackoffPolicy returns an exponential policy between min and max.
func NewBackoffPolicy(min, max time.Duration) *BackoffPolicy {
	return &BackoffPolicy{
		b: &backoff.Backoff{
			Min:    min,
			Max:    max,
			Factor: 2,
			Jitter: true,
		},
	}
}

// Next implements ReconnectPolicy.
func (p *BackoffPolicy) Next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.b.Duration()
}

// Reset implements ReconnectPolicy.
func (p *BackoffPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.b.Reset()
}

// Attempts returns the number of delays handed out since the last reset.
func (p *BackoffPolicy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.b.Attempt())
}
