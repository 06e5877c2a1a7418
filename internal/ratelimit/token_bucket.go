// Package ratelimit throttles terminal input with a token bucket.
package ratelimit

import "time"

// Default input budget: 100 bytes per second with bursts of 500.
const (
	DefaultRate  = 100.0
	DefaultBurst = 500.0
)

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock, which carries Go's monotonic reading.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Config sets the refill rate in tokens per second and the bucket size.
type Config struct {
	Rate  float64
	Burst float64
}

// DefaultConfig returns 100 tokens per second with a burst of 500.
func DefaultConfig() Config {
	return Config{Rate: DefaultRate, Burst: DefaultBurst}
}

// TokenBucket is not safe for concurrent use. Each connection owns one.
type TokenBucket struct {
	cfg        Config
	clock      Clock
	tokens     float64
	lastRefill time.Time
}

// New returns a full bucket. Non-positive rate or burst fall back to
// the defaults; a nil clock uses SystemClock.
func New(cfg Config, clock Clock) *TokenBucket {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenBucket{
		cfg:        cfg,
		clock:      clock,
		tokens:     cfg.Burst,
		lastRefill: clock.Now(),
	}
}

func (b *TokenBucket) refill() {
	now := b.clock.Now()
	if elapsed := now.Sub(b.lastRefill).Seconds(); elapsed > 0 {
		b.tokens = min(b.cfg.Burst, b.tokens+elapsed*b.cfg.Rate)
	}
	b.lastRefill = now
}

// TryAcquire takes n tokens if all of them are available. On failure the
// bucket is left unchanged.
func (b *TokenBucket) TryAcquire(n int) bool {
	b.refill()
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// Reset refills the bucket to Burst.
func (b *TokenBucket) Reset() {
	b.tokens = b.cfg.Burst
	b.lastRefill = b.clock.Now()
}

// Tokens returns the current token count after refilling.
func (b *TokenBucket) Tokens() float64 {
	b.refill()
	return b.tokens
}
