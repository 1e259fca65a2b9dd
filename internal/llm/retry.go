package llm

import (
	"math/rand/v2"
	"time"
)

// maxBackoff caps the delay between attempts regardless of the configured
// base delay.
const maxBackoff = 30 * time.Second

// backoff returns exponential backoff with jitter for the given attempt.
// The base delay doubles each attempt, capped at maxBackoff, with random
// jitter of ±25%.
func backoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	// Double step by step, stopping at the cap so large base delays or
	// attempt counts cannot overflow into a negative duration.
	d := baseDelay
	for i := 0; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	if d < 4 {
		return d
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2)) - d/4
	return d + jitter
}
