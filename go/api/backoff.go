package api

import "time"

// backoff computes exponential retry delays: attempt n waits
// min(base * factor^n, max).
type backoff struct {
	base    time.Duration
	max     time.Duration
	factor  float64
	attempt int
}

func (b *backoff) next() time.Duration {
	var d = time.Duration(float64(b.base) * pow(b.factor, b.attempt))
	b.attempt++
	if d > b.max || d < 0 {
		return b.max
	}
	return d
}

func (b *backoff) reset() { b.attempt = 0 }

func pow(f float64, n int) float64 {
	var out = 1.0
	for i := 0; i < n; i++ {
		out *= f
	}
	return out
}
